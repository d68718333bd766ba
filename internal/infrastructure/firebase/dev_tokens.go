package firebase

import (
	"context"
	"errors"
	"strings"

	"scrapmart/internal/domain/entity"
)

const devTokenPrefix = "dev:"

var ErrInvalidToken = errors.New("invalid or expired token")

// DevTokenVerifier accepts "dev:<uid>" tokens for local development and
// passes everything else to next. next may be nil when Firebase is not configured.
type DevTokenVerifier struct {
	next TokenVerifier
}

var _ TokenVerifier = (*DevTokenVerifier)(nil)

func NewDevTokenVerifier(next TokenVerifier) *DevTokenVerifier {
	return &DevTokenVerifier{next: next}
}

func (v *DevTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if uid, ok := strings.CutPrefix(token, devTokenPrefix); ok {
		if entity.ValidateID(uid) != nil {
			return "", ErrInvalidToken
		}
		return uid, nil
	}
	if v.next == nil {
		return "", ErrInvalidToken
	}
	return v.next.VerifyToken(ctx, token)
}

// DevToken builds a token DevTokenVerifier accepts.
func DevToken(uid string) string {
	return devTokenPrefix + uid
}
