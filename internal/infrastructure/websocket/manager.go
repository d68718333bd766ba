package websocket

import (
	"context"
	"sync"
	"time"

	"scrapmart/internal/domain/entity"
	"scrapmart/internal/domain/service"
	"scrapmart/internal/infrastructure/presence"
	"scrapmart/pkg/chatproto"
	"scrapmart/pkg/logger"
)

// ChatService persists realtime sends and looks up notification recipients.
type ChatService interface {
	PostMessage(ctx context.Context, senderID string, draft entity.MessageDraft) (*entity.ChatSession, *entity.Message, error)
	GetUser(ctx context.Context, userID string) (*entity.User, error)
}

type Options struct {
	// SendTimeout bounds one sendMessage persistence call.
	SendTimeout time.Duration
	// PongWait is how long a connection may stay silent before it is dropped.
	PongWait  time.Duration
	WriteWait time.Duration
	// NotifyTimeout bounds one offline notification, lookups included.
	NotifyTimeout  time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func DefaultOptions() Options {
	return Options{
		SendTimeout:    10 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		NotifyTimeout:  15 * time.Second,
		MaxMessageSize: 16 * 1024,
		SendBuffer:     256,
	}
}

func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

// Manager manages all active WebSocket connections and the rooms they joined.
type Manager struct {
	chat     ChatService
	presence presence.Store
	notifier service.OfflineNotifier
	opts     Options

	clients map[string]*Client
	rooms   map[entity.RoomKey]map[string]*Client
	mutex   sync.RWMutex

	notifications sync.WaitGroup
}

// NewManager creates a connection manager. notifier may be nil.
func NewManager(chat ChatService, store presence.Store, notifier service.OfflineNotifier, opts Options) *Manager {
	defaults := DefaultOptions()
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaults.SendTimeout
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaults.PongWait
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaults.WriteWait
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaults.NotifyTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}

	return &Manager{
		chat:     chat,
		presence: store,
		notifier: notifier,
		opts:     opts,
		clients:  make(map[string]*Client),
		rooms:    make(map[entity.RoomKey]map[string]*Client),
	}
}

// Start closes every connection once ctx is done.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		m.closeAll()
	}()
}

// Register tracks the client and, for identified clients, records presence.
func (m *Manager) Register(ctx context.Context, client *Client) {
	m.mutex.Lock()
	m.clients[client.ID] = client
	m.mutex.Unlock()

	if client.UserID != "" {
		entry := entity.PresenceEntry{
			UserID:       client.UserID,
			UserRole:     client.UserRole,
			ConnectionID: client.ID,
			ConnectedAt:  time.Now(),
		}
		if err := m.presence.Register(ctx, entry); err != nil {
			logger.Error("WebSocket: Failed to register presence for %s: %v", client.UserID, err)
		}
	}
	logger.Info("WebSocket: Client %s registered (user=%q role=%q)", client.ID, client.UserID, client.UserRole)
}

// Unregister forgets the client, drops it from every room and releases its
// presence entry. Safe to call more than once.
func (m *Manager) Unregister(client *Client) {
	m.mutex.Lock()
	_, known := m.clients[client.ID]
	delete(m.clients, client.ID)
	for room := range client.rooms {
		m.removeFromRoomLocked(room, client)
	}
	m.mutex.Unlock()

	client.Close()
	if !known {
		return
	}

	if client.UserID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.WriteWait)
		defer cancel()
		if _, err := m.presence.Release(ctx, client.UserID, client.ID); err != nil {
			logger.Error("WebSocket: Failed to release presence for %s: %v", client.UserID, err)
		}
	}
	logger.Info("WebSocket: Client %s unregistered (user=%q)", client.ID, client.UserID)
}

// JoinRoom adds the client to room. Joining twice has no further effect.
func (m *Manager) JoinRoom(client *Client, room entity.RoomKey) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		m.rooms[room] = members
	}
	members[client.ID] = client
	client.rooms[room] = struct{}{}
}

func (m *Manager) LeaveRoom(client *Client, room entity.RoomKey) {
	m.mutex.Lock()
	m.removeFromRoomLocked(room, client)
	m.mutex.Unlock()
}

func (m *Manager) removeFromRoomLocked(room entity.RoomKey, client *Client) {
	delete(client.rooms, room)
	if members, ok := m.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
}

// Broadcast sends one frame to every connection joined to room.
func (m *Manager) Broadcast(room entity.RoomKey, msgType string, data interface{}) {
	frame, err := chatproto.Encode(msgType, "", data)
	if err != nil {
		logger.Error("WebSocket: Failed to encode %s for room %s: %v", msgType, room, err)
		return
	}

	m.mutex.RLock()
	members := make([]*Client, 0, len(m.rooms[room]))
	for _, c := range m.rooms[room] {
		members = append(members, c)
	}
	m.mutex.RUnlock()

	for _, c := range members {
		c.Enqueue(frame)
	}
}

// RoomSize returns how many connections joined room.
func (m *Manager) RoomSize(room entity.RoomKey) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[room])
}

func (m *Manager) ConnectionCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// IsOnline answers presence queries for REST handlers.
func (m *Manager) IsOnline(ctx context.Context, userID string) (bool, error) {
	return m.presence.IsOnline(ctx, userID)
}

// WaitNotifications blocks until in-flight offline notifications finish or ctx is done.
func (m *Manager) WaitNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.notifications.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) closeAll() {
	m.mutex.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mutex.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	logger.Info("WebSocket: Closed %d connections", len(clients))
}
