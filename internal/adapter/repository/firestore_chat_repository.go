package repository

import (
	"context"
	stderrors "errors"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"scrapmart/internal/domain/entity"
	"scrapmart/internal/domain/repository"
	"scrapmart/pkg/errors"
)

const (
	sessionsCollection = "chat_sessions"
	messagesCollection = "messages"
)

// Sessions live at chat_sessions/{sessionID}; the document id is derived from the
// (buyer, seller, product) triple, so the id itself is the uniqueness constraint.
// Messages live at chat_sessions/{sessionID}/messages/{messageID}.
type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) sessionRef(id string) *firestore.DocumentRef {
	return r.client.Collection(sessionsCollection).Doc(id)
}

func (r *firestoreChatRepository) FindOrCreateSession(ctx context.Context, buyerID, sellerID, productID string) (*entity.ChatSession, bool, error) {
	ref := r.sessionRef(entity.SessionID(buyerID, sellerID, productID))

	session, err := r.readSession(ctx, ref)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, false, err
	}

	session = entity.NewChatSession(buyerID, sellerID, productID, time.Now())
	_, err = ref.Create(ctx, session)
	if err == nil {
		return session, true, nil
	}

	// Lost the first-contact race: another writer created the same document.
	if status.Code(err) == codes.AlreadyExists {
		log.Printf("FindOrCreateSession: session %s created concurrently, re-reading", ref.ID)
		existing, err := r.readSession(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, false, errors.Internal("Failed to create session", err)
}

func (r *firestoreChatRepository) GetSession(ctx context.Context, id string) (*entity.ChatSession, error) {
	return r.readSession(ctx, r.sessionRef(id))
}

func (r *firestoreChatRepository) readSession(ctx context.Context, ref *firestore.DocumentRef) (*entity.ChatSession, error) {
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Session", err)
		}
		return nil, errors.Internal("Failed to get session", err)
	}

	var session entity.ChatSession
	if err := doc.DataTo(&session); err != nil {
		return nil, errors.Internal("Failed to parse session data", err)
	}
	if session.ID == "" {
		session.ID = doc.Ref.ID
	}
	return &session, nil
}

func (r *firestoreChatRepository) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*entity.ChatSession, error) {
	query := r.client.Collection(sessionsCollection).
		Where("participants", "array-contains", userID).
		OrderBy("updatedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var sessions []*entity.ChatSession
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while listing sessions for user %s: %v", userID, err)
			return nil, errors.Internal("Failed to list sessions", err)
		}

		var session entity.ChatSession
		if err := doc.DataTo(&session); err != nil {
			log.Printf("Error parsing session %s for user %s: %v", doc.Ref.ID, userID, err)
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func (r *firestoreChatRepository) AppendMessage(ctx context.Context, sessionID, senderID string, role entity.SenderRole, body string) (*entity.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errors.BadRequest("Message body is required", nil)
	}

	sessionRef := r.sessionRef(sessionID)
	var stored *entity.Message

	// The transaction serializes appends per session: seq is allocated from the
	// session document, and the message write and session touch commit together.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(sessionRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Session", err)
			}
			return err
		}

		var session entity.ChatSession
		if err := doc.DataTo(&session); err != nil {
			return errors.Internal("Failed to parse session data", err)
		}

		createdAt := time.Now()
		if createdAt.Before(session.LastMessageAt) {
			createdAt = session.LastMessageAt
		}

		message := &entity.Message{
			ID:         uuid.New().String(),
			SessionID:  sessionID,
			SenderID:   senderID,
			SenderRole: role,
			Body:       body,
			Seq:        session.MessageCount + 1,
			CreatedAt:  createdAt,
		}

		if err := tx.Create(sessionRef.Collection(messagesCollection).Doc(message.ID), message); err != nil {
			return err
		}
		if err := tx.Update(sessionRef, []firestore.Update{
			{Path: "messageCount", Value: message.Seq},
			{Path: "lastMessage", Value: body},
			{Path: "lastMessageAt", Value: createdAt},
			{Path: "updatedAt", Value: createdAt},
		}); err != nil {
			return err
		}

		stored = message
		return nil
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, appErr
		}
		if stderrors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded {
			return nil, errors.Unavailable("Message write timed out", err)
		}
		return nil, errors.Internal("Failed to append message", err)
	}

	return stored, nil
}

func (r *firestoreChatRepository) ListMessages(ctx context.Context, sessionID string) ([]*entity.Message, error) {
	return r.ListMessagesAfter(ctx, sessionID, 0, 0)
}

func (r *firestoreChatRepository) ListMessagesAfter(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]*entity.Message, error) {
	sessionRef := r.sessionRef(sessionID)
	if _, err := r.readSession(ctx, sessionRef); err != nil {
		return nil, err
	}

	query := sessionRef.Collection(messagesCollection).OrderBy("seq", firestore.Asc)
	if afterSeq > 0 {
		query = query.StartAfter(afterSeq)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for session %s: %v", sessionID, err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for session %s: %v", sessionID, err)
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	return messages, nil
}
