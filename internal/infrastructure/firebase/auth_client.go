package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type FirebaseAuthClient struct {
	client *auth.Client
}

var _ TokenVerifier = (*FirebaseAuthClient)(nil)

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}

	return result.UID, nil
}
