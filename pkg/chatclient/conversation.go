// Package chatclient is the client side of the realtime chat: an optimistic
// message list that reconciles with server confirmations, and a websocket
// client that feeds it.
package chatclient

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scrapmart/internal/domain/entity"
	"scrapmart/pkg/chatproto"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Message is one entry of the rendered conversation. ID is empty until the
// server confirms the message.
type Message struct {
	ID         string
	TempID     string
	SenderID   string
	SenderRole string
	Body       string
	Seq        int64
	CreatedAt  time.Time
	Status     Status
	Error      *chatproto.ErrorData
}

func (m Message) Mine(selfID string) bool {
	return m.SenderID == selfID
}

type ConversationConfig struct {
	SelfID    string
	Role      entity.SenderRole
	BuyerID   string
	SellerID  string
	ProductID string
}

// Conversation is one buyer/seller/product thread as seen by one participant.
type Conversation struct {
	mu sync.Mutex

	self      string
	role      entity.SenderRole
	buyerID   string
	sellerID  string
	productID string
	room      entity.RoomKey

	messages          []*Message
	counterpartOnline *bool

	now       func() time.Time
	newTempID func() string
}

func NewConversation(cfg ConversationConfig) (*Conversation, error) {
	room, err := entity.NewRoomKey(cfg.BuyerID, cfg.SellerID, cfg.ProductID)
	if err != nil {
		return nil, err
	}
	switch cfg.Role {
	case entity.RoleBuyer:
		if cfg.SelfID != cfg.BuyerID {
			return nil, fmt.Errorf("user %s is not the buyer of room %s", cfg.SelfID, room)
		}
	case entity.RoleSeller:
		if cfg.SelfID != cfg.SellerID {
			return nil, fmt.Errorf("user %s is not the seller of room %s", cfg.SelfID, room)
		}
	default:
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}

	return &Conversation{
		self:      cfg.SelfID,
		role:      cfg.Role,
		buyerID:   cfg.BuyerID,
		sellerID:  cfg.SellerID,
		productID: cfg.ProductID,
		room:      room,
		now:       time.Now,
		newTempID: func() string { return "tmp-" + uuid.NewString() },
	}, nil
}

func (c *Conversation) Room() entity.RoomKey { return c.room }

func (c *Conversation) SelfID() string { return c.self }

// CounterpartID is the other participant.
func (c *Conversation) CounterpartID() string {
	if c.role == entity.RoleSeller {
		return c.buyerID
	}
	return c.sellerID
}

// Submit renders body immediately as a pending message and returns the
// payload to send for it.
func (c *Conversation) Submit(body string) (Message, chatproto.SendMessageData, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, chatproto.SendMessageData{}, fmt.Errorf("message is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msg := &Message{
		TempID:     c.newTempID(),
		SenderID:   c.self,
		SenderRole: string(c.role),
		Body:       body,
		CreatedAt:  c.now(),
		Status:     StatusPending,
	}
	c.messages = append(c.messages, msg)
	return *msg, c.sendData(msg), nil
}

// Retry puts a failed message back to pending and returns its payload again.
func (c *Conversation) Retry(tempID string) (chatproto.SendMessageData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.messages {
		if m.TempID == tempID && m.Status == StatusFailed {
			m.Status = StatusPending
			m.Error = nil
			return c.sendData(m), nil
		}
	}
	return chatproto.SendMessageData{}, fmt.Errorf("no failed message %s", tempID)
}

func (c *Conversation) sendData(m *Message) chatproto.SendMessageData {
	return chatproto.SendMessageData{
		BuyerID:     c.buyerID,
		SellerID:    c.sellerID,
		ProductID:   c.productID,
		Message:     m.Body,
		SenderModel: string(c.role),
		TempID:      m.TempID,
	}
}

// ApplyReceived merges a room broadcast. Reports whether the list changed.
func (c *Conversation) ApplyReceived(data chatproto.MessageData) bool {
	if data.Room != "" && data.Room != c.room.String() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconcile(data)
}

// ApplyAcknowledged merges the sender-only result of a send. A failed result
// marks the matching pending message failed.
func (c *Conversation) ApplyAcknowledged(ack chatproto.MessageSavedData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !ack.OK {
		return c.markFailedLocked(ack.TempID, ack.Error)
	}
	if ack.Message == nil || ack.Message.SenderID != c.self {
		return false
	}
	return c.reconcile(*ack.Message)
}

// MarkFailed flags a pending message that could not be sent at all.
func (c *Conversation) MarkFailed(tempID string, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markFailedLocked(tempID, &chatproto.ErrorData{Code: "UNAVAILABLE", Message: cause.Error()})
}

func (c *Conversation) markFailedLocked(tempID string, cause *chatproto.ErrorData) bool {
	if tempID == "" {
		return false
	}
	for _, m := range c.messages {
		if m.TempID == tempID && m.Status == StatusPending {
			m.Status = StatusFailed
			m.Error = cause
			return true
		}
	}
	return false
}

// reconcile matches a persisted message by id, then by temp id, then by
// sender and body against the oldest pending message. Unmatched messages are
// appended.
func (c *Conversation) reconcile(data chatproto.MessageData) bool {
	if data.ID == "" {
		return false
	}
	for _, m := range c.messages {
		if m.ID == data.ID {
			return false
		}
	}

	if data.TempID != "" {
		for _, m := range c.messages {
			if m.TempID == data.TempID && m.ID == "" {
				confirm(m, data)
				return true
			}
		}
	}

	if data.SenderID == c.self {
		body := strings.TrimSpace(data.Body)
		for _, m := range c.messages {
			if m.Status == StatusPending && m.SenderID == data.SenderID && m.Body == body {
				confirm(m, data)
				return true
			}
		}
	}

	m := &Message{TempID: data.TempID}
	confirm(m, data)
	c.messages = append(c.messages, m)
	return true
}

func confirm(m *Message, data chatproto.MessageData) {
	m.ID = data.ID
	m.SenderID = data.SenderID
	m.SenderRole = data.SenderRole
	m.Body = data.Body
	m.Seq = data.Seq
	m.CreatedAt = data.CreatedAt
	m.Status = StatusConfirmed
	m.Error = nil
}

// ApplyCounterpartStatus records the counterpart's presence and reports
// whether they are offline.
func (c *Conversation) ApplyCounterpartStatus(status chatproto.CounterpartStatusData) (offline bool) {
	if status.UserID != c.CounterpartID() {
		return false
	}
	c.mu.Lock()
	online := status.Online
	c.counterpartOnline = &online
	c.mu.Unlock()
	return !online
}

// CounterpartOnline is the last known presence of the counterpart.
func (c *Conversation) CounterpartOnline() (online, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counterpartOnline == nil {
		return false, false
	}
	return *c.counterpartOnline, true
}

// LoadHistory seeds the list with persisted messages, for example from the
// REST history endpoint. Already known messages are skipped.
func (c *Conversation) LoadHistory(history []chatproto.MessageData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, data := range history {
		c.reconcile(data)
	}
}

func (c *Conversation) Messages() []Message {
	return c.filter(func(*Message) bool { return true })
}

func (c *Conversation) Pending() []Message {
	return c.filter(func(m *Message) bool { return m.Status == StatusPending })
}

func (c *Conversation) Failed() []Message {
	return c.filter(func(m *Message) bool { return m.Status == StatusFailed })
}

func (c *Conversation) filter(keep func(*Message) bool) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		if keep(m) {
			out = append(out, *m)
		}
	}
	return out
}
