package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scrapmart/internal/domain/entity"
	"scrapmart/internal/domain/repository"
	"scrapmart/pkg/errors"
)

// memoryChatRepository keeps sessions and messages in process memory.
// Used for local development and tests; contents vanish on restart.
type memoryChatRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entity.ChatSession
	messages map[string][]*entity.Message
	now      func() time.Time
}

func NewMemoryChatRepository() repository.ChatRepository {
	return newMemoryChatRepository(time.Now)
}

func newMemoryChatRepository(now func() time.Time) *memoryChatRepository {
	return &memoryChatRepository{
		sessions: make(map[string]*entity.ChatSession),
		messages: make(map[string][]*entity.Message),
		now:      now,
	}
}

func (r *memoryChatRepository) FindOrCreateSession(ctx context.Context, buyerID, sellerID, productID string) (*entity.ChatSession, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errors.Unavailable("Session lookup cancelled", err)
	}
	id := entity.SessionID(buyerID, sellerID, productID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[id]; ok {
		return cloneSession(existing), false, nil
	}

	session := entity.NewChatSession(buyerID, sellerID, productID, r.now())
	r.sessions[id] = session
	return cloneSession(session), true, nil
}

func (r *memoryChatRepository) GetSession(ctx context.Context, id string) (*entity.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, errors.NotFound("Session", nil)
	}
	return cloneSession(session), nil
}

func (r *memoryChatRepository) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*entity.ChatSession, error) {
	r.mu.RLock()
	var sessions []*entity.ChatSession
	for _, s := range r.sessions {
		if s.HasParticipant(userID) {
			sessions = append(sessions, cloneSession(s))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (r *memoryChatRepository) AppendMessage(ctx context.Context, sessionID, senderID string, role entity.SenderRole, body string) (*entity.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errors.BadRequest("Message body is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Unavailable("Message write cancelled", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, errors.NotFound("Session", nil)
	}

	createdAt := r.now()
	if createdAt.Before(session.LastMessageAt) {
		createdAt = session.LastMessageAt
	}

	session.MessageCount++
	message := &entity.Message{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		SenderID:   senderID,
		SenderRole: role,
		Body:       body,
		Seq:        session.MessageCount,
		CreatedAt:  createdAt,
	}
	r.messages[sessionID] = append(r.messages[sessionID], message)

	session.LastMessage = body
	session.LastMessageAt = createdAt
	session.UpdatedAt = createdAt

	copied := *message
	return &copied, nil
}

func (r *memoryChatRepository) ListMessages(ctx context.Context, sessionID string) ([]*entity.Message, error) {
	return r.ListMessagesAfter(ctx, sessionID, 0, 0)
}

func (r *memoryChatRepository) ListMessagesAfter(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return nil, errors.NotFound("Session", nil)
	}

	var out []*entity.Message
	for _, m := range r.messages[sessionID] {
		if m.Seq <= afterSeq {
			continue
		}
		copied := *m
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneSession(s *entity.ChatSession) *entity.ChatSession {
	copied := *s
	copied.Participants = append([]string(nil), s.Participants...)
	return &copied
}
