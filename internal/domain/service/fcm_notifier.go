package service

import (
	"context"
	"fmt"

	"scrapmart/internal/domain/entity"
)

type pushSender interface {
	SendPush(ctx context.Context, deviceToken, title, body string, data map[string]string) (string, error)
}

// FCMNotifier pushes to the recipient's registered device.
type FCMNotifier struct {
	sender pushSender
}

func NewFCMNotifier(sender pushSender) *FCMNotifier {
	return &FCMNotifier{sender: sender}
}

func (n *FCMNotifier) NotifyOffline(ctx context.Context, recipient entity.Contact, recipientName, senderName string) error {
	if recipient.PushToken == "" {
		return fmt.Errorf("user %s has no push token", recipient.UserID)
	}

	title, body, err := renderNotification(NotificationParams{RecipientName: recipientName, SenderName: senderName})
	if err != nil {
		return fmt.Errorf("render notification: %w", err)
	}

	_, err = n.sender.SendPush(ctx, recipient.PushToken, title, body, map[string]string{
		"type":    "chat_message",
		"user_id": recipient.UserID,
	})
	if err != nil {
		return fmt.Errorf("send push to %s: %w", recipient.UserID, err)
	}
	return nil
}
