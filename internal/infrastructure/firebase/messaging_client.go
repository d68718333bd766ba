package firebase

import (
	"context"

	"firebase.google.com/go/v4/messaging"
)

// PushClient sends FCM notifications to a single device token.
type PushClient struct {
	client *messaging.Client
}

func NewPushClient(client *messaging.Client) *PushClient {
	return &PushClient{
		client: client,
	}
}

func (p *PushClient) SendPush(ctx context.Context, deviceToken, title, body string, data map[string]string) (string, error) {
	msg := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	id, err := p.client.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	return id, nil
}
