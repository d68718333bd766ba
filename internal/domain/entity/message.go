package entity

import (
	"strings"
	"time"
)

type SenderRole string

const (
	RoleBuyer  SenderRole = "Buyer"
	RoleSeller SenderRole = "Seller"
)

// ParseSenderRole accepts the role names clients send ("Buyer", "seller", ...).
func ParseSenderRole(s string) (SenderRole, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buyer":
		return RoleBuyer, true
	case "seller":
		return RoleSeller, true
	}
	return "", false
}

type Message struct {
	ID         string     `json:"id" firestore:"id"`
	SessionID  string     `json:"session_id" firestore:"sessionId"`
	SenderID   string     `json:"sender_id" firestore:"senderId"`
	SenderRole SenderRole `json:"sender_role" firestore:"senderRole"`
	Body       string     `json:"body" firestore:"body"`
	Read       bool       `json:"read" firestore:"read"`
	Seq        int64      `json:"seq" firestore:"seq"`
	CreatedAt  time.Time  `json:"created_at" firestore:"createdAt"`
}

// MessageDraft is a message addressed by its (buyer, seller, product) triple
// as it arrives from a realtime client, before a session has been resolved.
type MessageDraft struct {
	BuyerID    string
	SellerID   string
	ProductID  string
	SenderRole SenderRole
	Body       string
}

// SenderID is the seller for Seller-role drafts and the buyer otherwise.
func (d MessageDraft) SenderID() string {
	if d.SenderRole == RoleSeller {
		return d.SellerID
	}
	return d.BuyerID
}

// CounterpartID is the other side of the conversation.
func (d MessageDraft) CounterpartID() string {
	if d.SenderRole == RoleSeller {
		return d.BuyerID
	}
	return d.SellerID
}
