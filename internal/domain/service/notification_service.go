package service

import (
	"context"
	"strings"
	"text/template"

	"scrapmart/internal/domain/entity"
	"scrapmart/pkg/logger"
)

// OfflineNotifier delivers a best-effort "you have a new message" notice to a
// user who is not connected. Implementations do not retry.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, recipient entity.Contact, recipientName, senderName string) error
}

// NotificationParams are the values every notification template can use.
type NotificationParams struct {
	RecipientName string
	SenderName    string
}

var (
	titleTemplate = template.Must(template.New("title").Parse(`New message from {{.SenderName}}`))
	bodyTemplate  = template.Must(template.New("body").Parse(
		`Hi {{.RecipientName}}, {{.SenderName}} sent you a message on ScrapMart. Open the app to reply.`))
)

func renderNotification(params NotificationParams) (title, body string, err error) {
	var b strings.Builder
	if err := titleTemplate.Execute(&b, params); err != nil {
		return "", "", err
	}
	title = b.String()

	b.Reset()
	if err := bodyTemplate.Execute(&b, params); err != nil {
		return "", "", err
	}
	return title, b.String(), nil
}

// Deliver calls notifier and logs the outcome. Errors are dropped: offline
// notices are best effort and never retried here.
func Deliver(ctx context.Context, notifier OfflineNotifier, recipient entity.Contact, recipientName, senderName string) {
	if notifier == nil {
		return
	}
	if err := notifier.NotifyOffline(ctx, recipient, recipientName, senderName); err != nil {
		logger.Warn("Offline notification to %s failed: %v", recipient.UserID, err)
		return
	}
	logger.Debug("Offline notification sent to %s", recipient.UserID)
}

// LogNotifier only logs. Used in development.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyOffline(ctx context.Context, recipient entity.Contact, recipientName, senderName string) error {
	title, _, err := renderNotification(NotificationParams{RecipientName: recipientName, SenderName: senderName})
	if err != nil {
		return err
	}
	logger.Info("Offline notification for %s (%s): %s", recipient.UserID, recipientName, title)
	return nil
}
