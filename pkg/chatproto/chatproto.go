// Package chatproto defines the realtime chat wire format shared by the
// server and pkg/chatclient. Every frame is a JSON WSMessage.
package chatproto

import (
	"encoding/json"
	"time"
)

// Client to server.
const (
	TypeJoinRoom          = "joinRoom"
	TypeLeaveRoom         = "leaveRoom"
	TypeSendMessage       = "sendMessage"
	TypeCheckSellerStatus = "checkSellerStatus"
	TypePing              = "ping"
)

// Server to client. checkSellerStatus replies reuse TypeCheckSellerStatus.
const (
	TypeReceiveMessage    = "receiveMessage"
	TypeMessageSaved      = "messageSaved"
	TypeCounterpartStatus = "counterpartStatus"
	TypeRoomJoined        = "roomJoined"
	TypeRoomLeft          = "roomLeft"
	TypeError             = "error"
	TypePong              = "pong"
)

// WSMessage is one frame. ID is chosen by the client and echoed on direct replies.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Encode builds a frame carrying data.
func Encode(msgType, id string, data interface{}) ([]byte, error) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// Decode parses a frame's envelope. Use DecodeData for its payload.
func Decode(frame []byte) (WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(frame, &msg)
	return msg, err
}

func (m WSMessage) DecodeData(v interface{}) error {
	if len(m.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m.Data, v)
}

type RoomData struct {
	Room string `json:"room"`
}

type SendMessageData struct {
	BuyerID     string `json:"buyer_id"`
	SellerID    string `json:"seller_id"`
	ProductID   string `json:"product_id"`
	Message     string `json:"message"`
	SenderModel string `json:"sender_model"`
	TempID      string `json:"temp_id,omitempty"`
}

// StatusQueryData asks whether a user is online. SellerID is the historical field name.
type StatusQueryData struct {
	SellerID string `json:"seller_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

func (q StatusQueryData) Target() string {
	if q.UserID != "" {
		return q.UserID
	}
	return q.SellerID
}

type StatusData struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// MessageData is a persisted message as delivered to clients.
type MessageData struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Room       string    `json:"room"`
	SenderID   string    `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	Seq        int64     `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
	Time       string    `json:"time"`
	TempID     string    `json:"temp_id,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageSavedData is the sender-only result of a sendMessage.
type MessageSavedData struct {
	OK      bool         `json:"ok"`
	TempID  string       `json:"temp_id,omitempty"`
	Message *MessageData `json:"message,omitempty"`
	Error   *ErrorData   `json:"error,omitempty"`
}

type CounterpartStatusData struct {
	UserID string `json:"user_id"`
	Room   string `json:"room"`
	Online bool   `json:"online"`
}
