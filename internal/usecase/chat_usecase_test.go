package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapmart/internal/adapter/repository"
	"scrapmart/internal/domain/entity"
	"scrapmart/internal/infrastructure/ratelimit"
	"scrapmart/pkg/errors"
)

func newTestUseCase(t *testing.T, limiter *ratelimit.RateLimiter) *ChatUseCase {
	t.Helper()
	users := repository.NewMemoryUserRepository(
		&entity.User{ID: "b1", Username: "budi", Email: "budi@example.com"},
		&entity.User{ID: "b2", Username: "bayu"},
		&entity.User{ID: "s1", Username: "sari", Email: "sari@example.com"},
	)
	products := repository.NewMemoryProductRepository(
		&entity.Product{ID: "p1", SellerID: "s1", Title: "Copper wire 20kg", Price: 1250000},
		&entity.Product{ID: "p2", SellerID: "s1", Title: "Aluminium cans 50kg", Price: 600000},
		&entity.Product{ID: "orphan", SellerID: "ghost", Title: "No seller"},
	)
	return NewChatUseCase(repository.NewMemoryChatRepository(), users, products, limiter)
}

func buyerDraft(body string) entity.MessageDraft {
	return entity.MessageDraft{BuyerID: "b1", SellerID: "s1", ProductID: "p1", SenderRole: entity.RoleBuyer, Body: body}
}

func TestResolveSessionConcurrentFirstContact(t *testing.T) {
	uc := newTestUseCase(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := uc.ResolveSession(ctx, "b1", "s1", "p1")
			require.NoError(t, err)
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	sessions, err := uc.ListUserSessions(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestResolveSessionErrors(t *testing.T) {
	uc := newTestUseCase(t, nil)
	ctx := context.Background()

	tests := []struct {
		name                string
		buyer, seller, prod string
		code                string
	}{
		{"empty buyer", "", "s1", "p1", errors.CodeBadRequest},
		{"malformed product", "b1", "s1", "p_1", errors.CodeBadRequest},
		{"buyer is seller", "s1", "s1", "p1", errors.CodeBadRequest},
		{"unknown buyer", "nobody", "s1", "p1", errors.CodeNotFound},
		{"unknown product", "b1", "s1", "p404", errors.CodeNotFound},
		{"seller mismatch", "b1", "b2", "p1", errors.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.ResolveSession(ctx, tt.buyer, tt.seller, tt.prod)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestPostMessageFirstContact(t *testing.T) {
	uc := newTestUseCase(t, nil)
	ctx := context.Background()

	session, msg, err := uc.PostMessage(ctx, "b1", buyerDraft("Hello"))
	require.NoError(t, err)
	assert.Equal(t, entity.SessionActive, session.Status)
	assert.Equal(t, "Hello", msg.Body)
	assert.Equal(t, entity.RoleBuyer, msg.SenderRole)
	assert.Equal(t, "b1", msg.SenderID)
	assert.Equal(t, session.ID, msg.SessionID)

	reply := entity.MessageDraft{BuyerID: "b1", SellerID: "s1", ProductID: "p1", SenderRole: entity.RoleSeller, Body: "Hi, still available"}
	again, replyMsg, err := uc.PostMessage(ctx, "s1", reply)
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)
	assert.Equal(t, "s1", replyMsg.SenderID)
}

func TestPostMessageRejectsBadDrafts(t *testing.T) {
	uc := newTestUseCase(t, nil)
	ctx := context.Background()

	_, _, err := uc.PostMessage(ctx, "b1", buyerDraft("   "))
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))

	_, _, err = uc.PostMessage(ctx, "b1", buyerDraft(strings.Repeat("a", MaxMessageLength+1)))
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))

	noRole := buyerDraft("Hi")
	noRole.SenderRole = ""
	_, _, err = uc.PostMessage(ctx, "b1", noRole)
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))

	// b2 cannot post as b1.
	_, _, err = uc.PostMessage(ctx, "b2", buyerDraft("Hi"))
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))

	// The buyer cannot claim the seller role.
	asSeller := buyerDraft("Hi")
	asSeller.SenderRole = entity.RoleSeller
	_, _, err = uc.PostMessage(ctx, "b1", asSeller)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))
}

func TestBackToBackMessagesKeepOrder(t *testing.T) {
	uc := newTestUseCase(t, nil)
	ctx := context.Background()

	session, _, err := uc.PostMessage(ctx, "b1", buyerDraft("Hi"))
	require.NoError(t, err)
	_, _, err = uc.PostMessage(ctx, "b1", buyerDraft("How are you?"))
	require.NoError(t, err)

	messages, err := uc.ListMessages(ctx, "s1", session.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hi", messages[0].Body)
	assert.Equal(t, "How are you?", messages[1].Body)

	page, err := uc.ListMessages(ctx, "b1", session.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "How are you?", page[0].Body)

	_, err = uc.ListMessages(ctx, "b2", session.ID, 0, 0)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))
	_, err = uc.ListMessages(ctx, "b1", session.ID, -1, 0)
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))
}

func TestPostMessageRateLimited(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Policy{
		ratelimit.ActionSendMessage: {Burst: 2, Refill: 1, Interval: time.Hour},
	})
	uc := newTestUseCase(t, limiter)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := uc.PostMessage(ctx, "b1", buyerDraft("Hi"))
		require.NoError(t, err)
	}
	_, _, err := uc.PostMessage(ctx, "b1", buyerDraft("Hi"))
	assert.Equal(t, errors.CodeTooManyRequests, errors.CodeOf(err))
}

func TestStartSession(t *testing.T) {
	uc := newTestUseCase(t, nil)
	ctx := context.Background()

	result, err := uc.StartSession(ctx, "b1", "p1")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, entity.RoomKey("b1_s1_p1"), result.Room)
	assert.Equal(t, "Copper wire 20kg", result.Product.Title)
	assert.Equal(t, "sari", result.Seller.Username)

	again, err := uc.StartSession(ctx, "b1", "p1")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, result.Session.ID, again.Session.ID)

	_, err = uc.StartSession(ctx, "s1", "p1")
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))
	_, err = uc.StartSession(ctx, "b1", "p404")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
	_, err = uc.StartSession(ctx, "b1", "orphan")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestGetSessionParticipantsOnly(t *testing.T) {
	uc := newTestUseCase(t, nil)
	ctx := context.Background()

	session, err := uc.ResolveSession(ctx, "b1", "s1", "p2")
	require.NoError(t, err)

	got, err := uc.GetSession(ctx, "s1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, "p2", got.ProductID)

	_, err = uc.GetSession(ctx, "b2", session.ID)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))
	_, err = uc.GetSession(ctx, "b1", "missing")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}
