package repository

import (
	"context"

	"scrapmart/internal/domain/entity"
)

type ChatRepository interface {
	// FindOrCreateSession returns the session for the triple, creating it when absent.
	// created reports whether this call inserted it. Safe under concurrent first contact.
	FindOrCreateSession(ctx context.Context, buyerID, sellerID, productID string) (session *entity.ChatSession, created bool, err error)
	GetSession(ctx context.Context, id string) (*entity.ChatSession, error)
	// ListSessionsByUser returns sessions the user takes part in, most recently active first.
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*entity.ChatSession, error)

	// AppendMessage stores a message and touches the owning session in one atomic write.
	AppendMessage(ctx context.Context, sessionID, senderID string, role entity.SenderRole, body string) (*entity.Message, error)
	// ListMessages returns the whole history of a session in commit order.
	ListMessages(ctx context.Context, sessionID string) ([]*entity.Message, error)
	// ListMessagesAfter pages the history: messages with seq > afterSeq, at most limit of them.
	ListMessagesAfter(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]*entity.Message, error)
}
