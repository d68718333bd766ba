package service

import (
	"context"
	"fmt"
	"net"

	"github.com/wneessen/go-mail"

	"scrapmart/internal/domain/entity"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier emails the recipient.
type SMTPNotifier struct {
	config SMTPConfig
	send   func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	n := &SMTPNotifier{config: config}
	n.send = n.dialAndSend
	return n
}

func (n *SMTPNotifier) NotifyOffline(ctx context.Context, recipient entity.Contact, recipientName, senderName string) error {
	if recipient.Email == "" {
		return fmt.Errorf("user %s has no email address", recipient.UserID)
	}

	title, body, err := renderNotification(NotificationParams{RecipientName: recipientName, SenderName: senderName})
	if err != nil {
		return fmt.Errorf("render notification: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(n.config.From); err != nil {
		return fmt.Errorf("invalid sender address %q: %w", n.config.From, err)
	}
	if err := msg.To(recipient.Email); err != nil {
		return fmt.Errorf("invalid email for user %s: %w", recipient.UserID, err)
	}
	msg.Subject(title)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient.UserID, err)
	}
	return nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(n.config.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(contextDialer(ctx)),
	}
	if n.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.Username),
			mail.WithPassword(n.config.Password),
		)
	}

	client, err := mail.NewClient(n.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// contextDialer binds each SMTP connection to ctx for the whole session, not
// just the dial: reads and writes stop at ctx's deadline and the connection
// closes when ctx is cancelled.
func contextDialer(ctx context.Context) mail.DialContextFunc {
	return func(dialCtx context.Context, network, address string) (net.Conn, error) {
		var dialer net.Dialer
		conn, err := dialer.DialContext(dialCtx, network, address)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetDeadline(deadline); err != nil {
				conn.Close()
				return nil, err
			}
		}
		context.AfterFunc(ctx, func() { conn.Close() })
		return conn, nil
	}
}
