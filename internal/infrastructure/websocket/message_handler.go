package websocket

import (
	"context"
	"strings"
	"time"

	"scrapmart/internal/domain/entity"
	"scrapmart/internal/domain/service"
	"scrapmart/pkg/chatproto"
	"scrapmart/pkg/errors"
	"scrapmart/pkg/logger"
)

// HandleClientMessage processes one incoming frame.
func (m *Manager) HandleClientMessage(client *Client, frame []byte) {
	msg, err := chatproto.Decode(frame)
	if err != nil {
		logger.Debug("WebSocket: Invalid frame from client %s: %v", client.ID, err)
		m.sendError(client, "", errors.BadRequest("Invalid message format", err))
		return
	}

	switch msg.Type {
	case chatproto.TypePing:
		m.sendToClient(client, chatproto.TypePong, msg.ID, map[string]string{"status": "alive"})

	case chatproto.TypeJoinRoom:
		m.handleJoinRoom(client, msg)

	case chatproto.TypeLeaveRoom:
		m.handleLeaveRoom(client, msg)

	case chatproto.TypeSendMessage:
		m.handleSendMessage(client, msg)

	case chatproto.TypeCheckSellerStatus:
		m.handleCheckStatus(client, msg)

	default:
		logger.Debug("WebSocket: Unknown message type '%s' from client %s", msg.Type, client.ID)
		m.sendError(client, msg.ID, errors.BadRequest("Unknown message type: "+msg.Type, nil))
	}
}

func (m *Manager) handleJoinRoom(client *Client, msg chatproto.WSMessage) {
	room, err := m.authorizeRoom(client, msg)
	if err != nil {
		logger.LogChatError("join_room", client.UserID, string(msg.Data), err)
		m.sendError(client, msg.ID, err)
		return
	}

	m.JoinRoom(client, room)
	logger.Debug("WebSocket: Client %s joined room %s", client.ID, room)
	m.sendToClient(client, chatproto.TypeRoomJoined, msg.ID, chatproto.RoomData{Room: room.String()})
}

func (m *Manager) handleLeaveRoom(client *Client, msg chatproto.WSMessage) {
	var data chatproto.RoomData
	if err := msg.DecodeData(&data); err != nil {
		m.sendError(client, msg.ID, errors.BadRequest("Invalid leave room format", err))
		return
	}
	room, err := entity.ParseRoomKey(data.Room)
	if err != nil {
		m.sendError(client, msg.ID, errors.BadRequest("Invalid room", err))
		return
	}

	m.LeaveRoom(client, room)
	m.sendToClient(client, chatproto.TypeRoomLeft, msg.ID, chatproto.RoomData{Room: room.String()})
}

// authorizeRoom admits only the buyer or the seller of the conversation.
func (m *Manager) authorizeRoom(client *Client, msg chatproto.WSMessage) (entity.RoomKey, error) {
	if client.UserID == "" {
		return "", errors.Forbidden("Sign in to join a conversation", nil)
	}

	var data chatproto.RoomData
	if err := msg.DecodeData(&data); err != nil {
		return "", errors.BadRequest("Invalid join room format", err)
	}
	room, err := entity.ParseRoomKey(strings.TrimSpace(data.Room))
	if err != nil {
		return "", errors.BadRequest("Invalid room", err)
	}
	if !room.Includes(client.UserID) {
		return "", errors.Forbidden("You are not a participant of this conversation", nil)
	}
	return room, nil
}

// handleSendMessage persists, then broadcasts to the room, then acknowledges
// the sender, then reports the counterpart's presence to the sender.
func (m *Manager) handleSendMessage(client *Client, msg chatproto.WSMessage) {
	var data chatproto.SendMessageData
	if err := msg.DecodeData(&data); err != nil {
		m.sendSaveFailure(client, msg.ID, "", errors.BadRequest("Invalid send message format", err))
		return
	}
	if client.UserID == "" {
		m.sendSaveFailure(client, msg.ID, data.TempID, errors.Forbidden("Sign in to send messages", nil))
		return
	}
	if data.BuyerID == "" || data.SellerID == "" || data.ProductID == "" || strings.TrimSpace(data.Message) == "" {
		m.sendSaveFailure(client, msg.ID, data.TempID, errors.BadRequest("buyer_id, seller_id, product_id and message are required", nil))
		return
	}
	role, ok := entity.ParseSenderRole(data.SenderModel)
	if !ok {
		m.sendSaveFailure(client, msg.ID, data.TempID, errors.BadRequest("sender_model must be Buyer or Seller", nil))
		return
	}

	draft := entity.MessageDraft{
		BuyerID:    data.BuyerID,
		SellerID:   data.SellerID,
		ProductID:  data.ProductID,
		SenderRole: role,
		Body:       data.Message,
	}

	// Not tied to the connection: a disconnect mid-send still completes the write.
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.SendTimeout)
	defer cancel()

	session, message, err := m.chat.PostMessage(ctx, client.UserID, draft)
	if err != nil {
		logger.LogChatError("send_message", client.UserID, data.BuyerID+"_"+data.SellerID+"_"+data.ProductID, err)
		m.sendSaveFailure(client, msg.ID, data.TempID, err)
		return
	}

	room := session.Room()
	payload := newMessageData(message, room, data.TempID)
	m.Broadcast(room, chatproto.TypeReceiveMessage, payload)
	m.sendToClient(client, chatproto.TypeMessageSaved, msg.ID, chatproto.MessageSavedData{
		OK:      true,
		TempID:  data.TempID,
		Message: payload,
	})

	counterpartID := draft.CounterpartID()
	online, err := m.presence.IsOnline(ctx, counterpartID)
	if err != nil {
		logger.LogChatError("counterpart_status", client.UserID, counterpartID, err)
		return
	}
	m.sendToClient(client, chatproto.TypeCounterpartStatus, "", chatproto.CounterpartStatusData{
		UserID: counterpartID,
		Room:   room.String(),
		Online: online,
	})

	if !online {
		m.notifyOffline(counterpartID, client.UserID)
	}
}

func (m *Manager) handleCheckStatus(client *Client, msg chatproto.WSMessage) {
	var data chatproto.StatusQueryData
	if err := msg.DecodeData(&data); err != nil {
		m.sendError(client, msg.ID, errors.BadRequest("Invalid status query format", err))
		return
	}
	target := data.Target()
	if target == "" {
		m.sendError(client, msg.ID, errors.BadRequest("seller_id is required", nil))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.SendTimeout)
	defer cancel()

	online, err := m.presence.IsOnline(ctx, target)
	if err != nil {
		logger.LogChatError("check_status", client.UserID, target, err)
		m.sendError(client, msg.ID, errors.Unavailable("Presence is unavailable", err))
		return
	}
	m.sendToClient(client, chatproto.TypeCheckSellerStatus, msg.ID, chatproto.StatusData{UserID: target, Online: online})
}

// notifyOffline runs in the background; the sender never waits for it.
func (m *Manager) notifyOffline(recipientID, senderID string) {
	if m.notifier == nil {
		return
	}

	m.notifications.Add(1)
	go func() {
		defer m.notifications.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.NotifyTimeout)
		defer cancel()

		recipient, err := m.chat.GetUser(ctx, recipientID)
		if err != nil {
			logger.Warn("WebSocket: Offline notification skipped, recipient %s: %v", recipientID, err)
			return
		}
		senderName := senderID
		if sender, err := m.chat.GetUser(ctx, senderID); err == nil {
			senderName = sender.DisplayName()
		}

		service.Deliver(ctx, m.notifier, recipient.Contact(), recipient.DisplayName(), senderName)
	}()
}

func newMessageData(msg *entity.Message, room entity.RoomKey, tempID string) *chatproto.MessageData {
	return &chatproto.MessageData{
		ID:         msg.ID,
		SessionID:  msg.SessionID,
		Room:       room.String(),
		SenderID:   msg.SenderID,
		SenderRole: string(msg.SenderRole),
		Body:       msg.Body,
		Read:       msg.Read,
		Seq:        msg.Seq,
		CreatedAt:  msg.CreatedAt,
		Time:       msg.CreatedAt.Local().Format(time.Kitchen),
		TempID:     tempID,
	}
}

func (m *Manager) sendToClient(client *Client, msgType, id string, data interface{}) {
	frame, err := chatproto.Encode(msgType, id, data)
	if err != nil {
		logger.Error("WebSocket: Failed to encode %s for client %s: %v", msgType, client.ID, err)
		return
	}
	client.Enqueue(frame)
}

func (m *Manager) sendError(client *Client, id string, err error) {
	m.sendToClient(client, chatproto.TypeError, id, chatproto.ErrorData{
		Code:    errors.CodeOf(err),
		Message: errors.MessageOf(err),
	})
}

func (m *Manager) sendSaveFailure(client *Client, id, tempID string, err error) {
	m.sendToClient(client, chatproto.TypeMessageSaved, id, chatproto.MessageSavedData{
		OK:     false,
		TempID: tempID,
		Error: &chatproto.ErrorData{
			Code:    errors.CodeOf(err),
			Message: errors.MessageOf(err),
		},
	})
}
