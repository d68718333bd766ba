package entity

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// sessionNamespace seeds the deterministic session ids.
var sessionNamespace = uuid.MustParse("6f1c9a8e-3d52-4b7e-9a41-5c0de2b7f913")

// ChatSession threads every message exchanged by one buyer and one seller about one product.
type ChatSession struct {
	ID            string        `json:"id" firestore:"id"`
	BuyerID       string        `json:"buyer_id" firestore:"buyerId"`
	SellerID      string        `json:"seller_id" firestore:"sellerId"`
	ProductID     string        `json:"product_id" firestore:"productId"`
	Participants  []string      `json:"participants" firestore:"participants"`
	Status        SessionStatus `json:"status" firestore:"status"`
	MessageCount  int64         `json:"message_count" firestore:"messageCount"`
	LastMessage   string        `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt time.Time     `json:"last_message_at,omitempty" firestore:"lastMessageAt,omitempty"`
	CreatedAt     time.Time     `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time     `json:"updated_at" firestore:"updatedAt"`
}

// SessionID derives the id of the session for a (buyer, seller, product) triple.
// The same triple always yields the same id, which lets the store enforce uniqueness.
func SessionID(buyerID, sellerID, productID string) string {
	key := buyerID + "\x00" + sellerID + "\x00" + productID
	return uuid.NewSHA1(sessionNamespace, []byte(key)).String()
}

// NewChatSession builds an active, unsaved session for the triple.
func NewChatSession(buyerID, sellerID, productID string, now time.Time) *ChatSession {
	return &ChatSession{
		ID:           SessionID(buyerID, sellerID, productID),
		BuyerID:      buyerID,
		SellerID:     sellerID,
		ProductID:    productID,
		Participants: []string{buyerID, sellerID},
		Status:       SessionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *ChatSession) HasParticipant(userID string) bool {
	return userID != "" && (userID == s.BuyerID || userID == s.SellerID)
}

// RoleOf reports which side of the session userID is on.
func (s *ChatSession) RoleOf(userID string) (SenderRole, bool) {
	switch userID {
	case "":
		return "", false
	case s.BuyerID:
		return RoleBuyer, true
	case s.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// Room returns the broadcast address of the session.
func (s *ChatSession) Room() RoomKey {
	return RoomKey(s.BuyerID + roomSeparator + s.SellerID + roomSeparator + s.ProductID)
}
