package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"scrapmart/internal/domain/entity"
	"scrapmart/internal/domain/repository"
	"scrapmart/internal/infrastructure/ratelimit"
	"scrapmart/pkg/errors"
)

const (
	MaxMessageLength    = 4000
	DefaultMessagePage  = 50
	MaxMessagePage      = 200
	DefaultSessionsPage = 50
)

type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	productRepo repository.ProductRepository
	rateLimiter *ratelimit.RateLimiter
}

// NewChatUseCase builds the use case. rateLimiter may be nil to disable limits.
func NewChatUseCase(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	productRepo repository.ProductRepository,
	rateLimiter *ratelimit.RateLimiter,
) *ChatUseCase {
	return &ChatUseCase{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		productRepo: productRepo,
		rateLimiter: rateLimiter,
	}
}

// StartSessionResult is everything a client needs to open a conversation view.
type StartSessionResult struct {
	Session *entity.ChatSession   `json:"session"`
	Room    entity.RoomKey        `json:"room"`
	Product entity.ProductSummary `json:"product"`
	Seller  entity.UserSummary    `json:"seller"`
	Created bool                  `json:"created"`
}

// ResolveSession finds or creates the session for the triple after checking
// that the buyer exists and the product belongs to the seller.
func (uc *ChatUseCase) ResolveSession(ctx context.Context, buyerID, sellerID, productID string) (*entity.ChatSession, error) {
	session, _, err := uc.resolve(ctx, buyerID, sellerID, productID)
	return session, err
}

func (uc *ChatUseCase) resolve(ctx context.Context, buyerID, sellerID, productID string) (*entity.ChatSession, bool, error) {
	if err := validateTriple(buyerID, sellerID, productID); err != nil {
		return nil, false, err
	}

	if _, err := uc.userRepo.GetByID(ctx, buyerID); err != nil {
		log.Printf("ResolveSession Error: Buyer %s not found: %v", buyerID, err)
		return nil, false, asNotFound("Buyer", err)
	}

	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		log.Printf("ResolveSession Error: Product %s not found: %v", productID, err)
		return nil, false, asNotFound("Product", err)
	}
	if product.SellerID != sellerID {
		log.Printf("ResolveSession Error: Product %s is sold by %s, not %s", productID, product.SellerID, sellerID)
		return nil, false, errors.BadRequest("Product does not belong to this seller", nil)
	}

	session, created, err := uc.chatRepo.FindOrCreateSession(ctx, buyerID, sellerID, productID)
	if err != nil {
		log.Printf("ResolveSession Error: Failed to find or create session for %s/%s/%s: %v", buyerID, sellerID, productID, err)
		return nil, false, err
	}
	if created {
		log.Printf("ResolveSession: Created session %s for product %s", session.ID, productID)
	}
	return session, created, nil
}

// StartSession is the REST bootstrap: the seller is taken from the product.
func (uc *ChatUseCase) StartSession(ctx context.Context, buyerID, productID string) (*StartSessionResult, error) {
	if err := uc.allow(buyerID, ratelimit.ActionStartSession); err != nil {
		return nil, err
	}
	if err := entity.ValidateID(productID); err != nil {
		return nil, errors.BadRequest("Invalid product id", err)
	}

	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		log.Printf("StartSession Error: Product %s not found: %v", productID, err)
		return nil, asNotFound("Product", err)
	}
	if buyerID == product.SellerID {
		log.Printf("StartSession Error: User %s attempted to chat about their own product %s", buyerID, productID)
		return nil, errors.BadRequest("You cannot start a chat about your own product", nil)
	}

	seller, err := uc.userRepo.GetByID(ctx, product.SellerID)
	if err != nil {
		log.Printf("StartSession Error: Seller %s not found: %v", product.SellerID, err)
		return nil, asNotFound("Seller", err)
	}

	session, created, err := uc.resolve(ctx, buyerID, product.SellerID, productID)
	if err != nil {
		return nil, err
	}

	return &StartSessionResult{
		Session: session,
		Room:    session.Room(),
		Product: product.Summary(),
		Seller:  seller.Summary(),
		Created: created,
	}, nil
}

// PostMessage persists a realtime send. senderID is the authenticated identity
// of the connection and must match the side named by the draft's role.
func (uc *ChatUseCase) PostMessage(ctx context.Context, senderID string, draft entity.MessageDraft) (*entity.ChatSession, *entity.Message, error) {
	if err := validateTriple(draft.BuyerID, draft.SellerID, draft.ProductID); err != nil {
		return nil, nil, err
	}
	if draft.SenderRole != entity.RoleBuyer && draft.SenderRole != entity.RoleSeller {
		return nil, nil, errors.BadRequest("Sender role must be Buyer or Seller", nil)
	}
	body := strings.TrimSpace(draft.Body)
	if body == "" {
		return nil, nil, errors.BadRequest("Message body is required", nil)
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, nil, errors.BadRequest(fmt.Sprintf("Message is longer than %d characters", MaxMessageLength), nil)
	}
	if draft.SenderID() != senderID {
		log.Printf("PostMessage Error: User %s tried to send as %s %s", senderID, draft.SenderRole, draft.SenderID())
		return nil, nil, errors.Forbidden("You can only send messages as yourself", nil)
	}
	if err := uc.allow(senderID, ratelimit.ActionSendMessage); err != nil {
		return nil, nil, err
	}

	session, err := uc.ResolveSession(ctx, draft.BuyerID, draft.SellerID, draft.ProductID)
	if err != nil {
		return nil, nil, err
	}

	message, err := uc.chatRepo.AppendMessage(ctx, session.ID, senderID, draft.SenderRole, body)
	if err != nil {
		log.Printf("PostMessage Error: Failed to append message to session %s: %v", session.ID, err)
		return nil, nil, err
	}
	return session, message, nil
}

func (uc *ChatUseCase) GetSession(ctx context.Context, userID, sessionID string) (*entity.ChatSession, error) {
	session, err := uc.chatRepo.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("GetSession Error: Session %s not found: %v", sessionID, err)
		return nil, err
	}
	if !session.HasParticipant(userID) {
		log.Printf("GetSession Error: User %s is not a participant in session %s", userID, sessionID)
		return nil, errors.Forbidden("User is not a participant in this session", nil)
	}
	return session, nil
}

// ListMessages returns history in commit order. afterSeq 0 starts from the first message.
func (uc *ChatUseCase) ListMessages(ctx context.Context, userID, sessionID string, afterSeq int64, limit int) ([]*entity.Message, error) {
	if _, err := uc.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if afterSeq < 0 {
		return nil, errors.BadRequest("after_seq must not be negative", nil)
	}
	if limit <= 0 {
		limit = DefaultMessagePage
	}
	if limit > MaxMessagePage {
		limit = MaxMessagePage
	}

	messages, err := uc.chatRepo.ListMessagesAfter(ctx, sessionID, afterSeq, limit)
	if err != nil {
		log.Printf("ListMessages Error: Failed to get messages for session %s: %v", sessionID, err)
		return nil, err
	}
	if messages == nil {
		messages = []*entity.Message{}
	}
	return messages, nil
}

func (uc *ChatUseCase) ListUserSessions(ctx context.Context, userID string, limit int) ([]*entity.ChatSession, error) {
	if limit <= 0 || limit > DefaultSessionsPage {
		limit = DefaultSessionsPage
	}
	sessions, err := uc.chatRepo.ListSessionsByUser(ctx, userID, limit)
	if err != nil {
		log.Printf("ListUserSessions Error: Failed to list sessions for user %s: %v", userID, err)
		return nil, err
	}
	if sessions == nil {
		sessions = []*entity.ChatSession{}
	}
	return sessions, nil
}

func (uc *ChatUseCase) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	return uc.userRepo.GetByID(ctx, userID)
}

func (uc *ChatUseCase) allow(userID, action string) error {
	if uc.rateLimiter == nil {
		return nil
	}
	if allowed, wait := uc.rateLimiter.Allow(userID, action); !allowed {
		log.Printf("Rate Limited: User %s action %s must wait %v", userID, action, wait)
		return errors.TooManyRequests(fmt.Sprintf("Rate limit exceeded, retry in %s", wait.Round(time.Second)))
	}
	return nil
}

func validateTriple(buyerID, sellerID, productID string) error {
	fields := []struct{ name, id string }{
		{"buyer_id", buyerID},
		{"seller_id", sellerID},
		{"product_id", productID},
	}
	for _, f := range fields {
		if err := entity.ValidateID(f.id); err != nil {
			return errors.BadRequest("Invalid "+f.name, err)
		}
	}
	if buyerID == sellerID {
		return errors.BadRequest("Buyer and seller must be different users", nil)
	}
	return nil
}

func asNotFound(resource string, err error) error {
	if errors.Is(err, errors.CodeNotFound) {
		return errors.NotFound(resource, err)
	}
	return err
}
