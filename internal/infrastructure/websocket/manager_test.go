package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapmart/internal/adapter/repository"
	"scrapmart/internal/domain/entity"
	"scrapmart/internal/infrastructure/presence"
	"scrapmart/internal/usecase"
	"scrapmart/pkg/chatproto"
	"scrapmart/pkg/errors"
)

type notification struct {
	recipient     entity.Contact
	recipientName string
	senderName    string
}

type fakeNotifier struct {
	calls chan notification
}

func (f *fakeNotifier) NotifyOffline(ctx context.Context, recipient entity.Contact, recipientName, senderName string) error {
	f.calls <- notification{recipient, recipientName, senderName}
	return nil
}

type testServer struct {
	url      string
	manager  *Manager
	store    *presence.MemoryStore
	notifier *fakeNotifier
}

func newChatService() ChatService {
	users := repository.NewMemoryUserRepository(
		&entity.User{ID: "b1", Username: "budi", Email: "budi@example.com"},
		&entity.User{ID: "b2", Username: "bayu"},
		&entity.User{ID: "s1", Username: "sari", Email: "sari@example.com", PushToken: "device-s1"},
	)
	products := repository.NewMemoryProductRepository(
		&entity.Product{ID: "p1", SellerID: "s1", Title: "Copper wire 20kg"},
		&entity.Product{ID: "p2", SellerID: "s1", Title: "Aluminium cans 50kg"},
	)
	return usecase.NewChatUseCase(repository.NewMemoryChatRepository(), users, products, nil)
}

func newTestServer(t *testing.T, chat ChatService, opts Options) *testServer {
	t.Helper()
	store := presence.NewMemoryStore()
	notifier := &fakeNotifier{calls: make(chan notification, 8)}
	m := NewManager(chat, store, notifier, opts)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		m.NewClient(conn, q.Get("uid"), q.Get("role")).Run(context.Background())
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &testServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		manager:  m,
		store:    store,
		notifier: notifier,
	}
}

func (s *testServer) dial(t *testing.T, uid, role string) *gorillaws.Conn {
	t.Helper()
	url := s.url + "/ws"
	if uid != "" {
		url += "?uid=" + uid + "&role=" + role
	}
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	if uid != "" {
		require.Eventually(t, func() bool {
			online, _ := s.store.IsOnline(context.Background(), uid)
			return online
		}, 2*time.Second, 10*time.Millisecond)
	}
	return conn
}

func send(t *testing.T, conn *gorillaws.Conn, msgType, id string, data interface{}) {
	t.Helper()
	frame, err := chatproto.Encode(msgType, id, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, frame))
}

// readUntil returns the first frame of msgType, failing on timeout. Frames of
// other types are collected into skipped.
func readUntil(t *testing.T, conn *gorillaws.Conn, msgType string) (chatproto.WSMessage, []chatproto.WSMessage) {
	t.Helper()
	var skipped []chatproto.WSMessage
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", msgType)
		msg, err := chatproto.Decode(frame)
		require.NoError(t, err)
		if msg.Type == msgType {
			return msg, skipped
		}
		skipped = append(skipped, msg)
	}
}

func join(t *testing.T, conn *gorillaws.Conn, room string) {
	t.Helper()
	send(t, conn, chatproto.TypeJoinRoom, "join-"+room, chatproto.RoomData{Room: room})
	reply, _ := readUntil(t, conn, chatproto.TypeRoomJoined)
	assert.Equal(t, "join-"+room, reply.ID)
}

func decode[T any](t *testing.T, msg chatproto.WSMessage) T {
	t.Helper()
	var v T
	require.NoError(t, msg.DecodeData(&v))
	return v
}

func helloFromBuyer(tempID string) chatproto.SendMessageData {
	return chatproto.SendMessageData{
		BuyerID: "b1", SellerID: "s1", ProductID: "p1",
		Message: "Hello", SenderModel: "Buyer", TempID: tempID,
	}
}

func TestFirstMessageReachesSenderAndRoom(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})
	buyer := s.dial(t, "b1", "buyer")
	seller := s.dial(t, "s1", "seller")
	join(t, buyer, "b1_s1_p1")
	join(t, seller, "b1_s1_p1")

	send(t, buyer, chatproto.TypeSendMessage, "m1", helloFromBuyer("tmp-1"))

	savedMsg, skipped := readUntil(t, buyer, chatproto.TypeMessageSaved)
	saved := decode[chatproto.MessageSavedData](t, savedMsg)
	require.True(t, saved.OK)
	assert.Equal(t, "m1", savedMsg.ID)
	assert.Equal(t, "tmp-1", saved.TempID)
	assert.Equal(t, "Hello", saved.Message.Body)
	assert.Equal(t, "Buyer", saved.Message.SenderRole)
	assert.Equal(t, "b1", saved.Message.SenderID)
	assert.NotEmpty(t, saved.Message.Time)

	// The sender is a room member, so the broadcast arrives before the ack.
	require.Len(t, skipped, 1)
	assert.Equal(t, chatproto.TypeReceiveMessage, skipped[0].Type)
	assert.Equal(t, saved.Message.ID, decode[chatproto.MessageData](t, skipped[0]).ID)

	received, _ := readUntil(t, seller, chatproto.TypeReceiveMessage)
	got := decode[chatproto.MessageData](t, received)
	assert.Equal(t, saved.Message.ID, got.ID)
	assert.Equal(t, "Hello", got.Body)
	assert.Equal(t, "b1_s1_p1", got.Room)

	statusMsg, _ := readUntil(t, buyer, chatproto.TypeCounterpartStatus)
	status := decode[chatproto.CounterpartStatusData](t, statusMsg)
	assert.Equal(t, "s1", status.UserID)
	assert.True(t, status.Online)

	select {
	case n := <-s.notifier.calls:
		t.Fatalf("unexpected offline notification for %s", n.recipient.UserID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOfflineCounterpartIsNotified(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})
	buyer := s.dial(t, "b1", "buyer")

	send(t, buyer, chatproto.TypeSendMessage, "", helloFromBuyer("tmp-1"))

	statusMsg, _ := readUntil(t, buyer, chatproto.TypeCounterpartStatus)
	status := decode[chatproto.CounterpartStatusData](t, statusMsg)
	assert.Equal(t, "s1", status.UserID)
	assert.False(t, status.Online)

	select {
	case n := <-s.notifier.calls:
		assert.Equal(t, "s1", n.recipient.UserID)
		assert.Equal(t, "sari@example.com", n.recipient.Email)
		assert.Equal(t, "device-s1", n.recipient.PushToken)
		assert.Equal(t, "sari", n.recipientName)
		assert.Equal(t, "budi", n.senderName)
	case <-time.After(2 * time.Second):
		t.Fatal("offline notification was not sent")
	}
	require.NoError(t, s.manager.WaitNotifications(context.Background()))
}

func TestRoomIsolation(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})
	buyer := s.dial(t, "b1", "buyer")
	other := s.dial(t, "s1", "seller")
	join(t, buyer, "b1_s1_p1")
	join(t, other, "b1_s1_p2")

	send(t, buyer, chatproto.TypeSendMessage, "", helloFromBuyer(""))
	saved, _ := readUntil(t, buyer, chatproto.TypeMessageSaved)
	require.True(t, decode[chatproto.MessageSavedData](t, saved).OK)

	// Anything broadcast to other was queued before its pong.
	send(t, other, chatproto.TypePing, "p", nil)
	_, skipped := readUntil(t, other, chatproto.TypePong)
	for _, msg := range skipped {
		assert.NotEqual(t, chatproto.TypeReceiveMessage, msg.Type)
	}
	assert.Equal(t, 1, s.manager.RoomSize("b1_s1_p1"))
	assert.Equal(t, 1, s.manager.RoomSize("b1_s1_p2"))
}

func TestJoinRequiresParticipant(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})

	tests := []struct {
		name string
		uid  string
		room string
		code string
	}{
		{"anonymous", "", "b1_s1_p1", errors.CodeForbidden},
		{"outsider", "b2", "b1_s1_p1", errors.CodeForbidden},
		{"malformed", "b1", "b1-s1-p1", errors.CodeBadRequest},
		{"empty", "b1", "", errors.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := s.dial(t, tt.uid, "buyer")
			send(t, conn, chatproto.TypeJoinRoom, "j", chatproto.RoomData{Room: tt.room})
			reply, _ := readUntil(t, conn, chatproto.TypeError)
			assert.Equal(t, "j", reply.ID)
			assert.Equal(t, tt.code, decode[chatproto.ErrorData](t, reply).Code)
		})
	}
	assert.Equal(t, 0, s.manager.RoomSize("b1_s1_p1"))
}

func TestJoinIsIdempotent(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})
	buyer := s.dial(t, "b1", "buyer")
	join(t, buyer, "b1_s1_p1")
	join(t, buyer, "b1_s1_p1")
	assert.Equal(t, 1, s.manager.RoomSize("b1_s1_p1"))

	send(t, buyer, chatproto.TypeLeaveRoom, "l", chatproto.RoomData{Room: "b1_s1_p1"})
	readUntil(t, buyer, chatproto.TypeRoomLeft)
	assert.Equal(t, 0, s.manager.RoomSize("b1_s1_p1"))
}

func TestInvalidSendsAreReported(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})
	buyer := s.dial(t, "b1", "buyer")
	anonymous := s.dial(t, "", "")

	tests := []struct {
		name string
		conn *gorillaws.Conn
		data chatproto.SendMessageData
		code string
	}{
		{"missing product", buyer, chatproto.SendMessageData{BuyerID: "b1", SellerID: "s1", Message: "Hi", SenderModel: "Buyer", TempID: "t"}, errors.CodeBadRequest},
		{"empty body", buyer, chatproto.SendMessageData{BuyerID: "b1", SellerID: "s1", ProductID: "p1", Message: "  ", SenderModel: "Buyer", TempID: "t"}, errors.CodeBadRequest},
		{"bad role", buyer, chatproto.SendMessageData{BuyerID: "b1", SellerID: "s1", ProductID: "p1", Message: "Hi", SenderModel: "Admin", TempID: "t"}, errors.CodeBadRequest},
		{"impersonation", buyer, chatproto.SendMessageData{BuyerID: "b1", SellerID: "s1", ProductID: "p1", Message: "Hi", SenderModel: "Seller", TempID: "t"}, errors.CodeForbidden},
		{"unknown product", buyer, chatproto.SendMessageData{BuyerID: "b1", SellerID: "s1", ProductID: "p9", Message: "Hi", SenderModel: "Buyer", TempID: "t"}, errors.CodeNotFound},
		{"anonymous", anonymous, helloFromBuyer("t"), errors.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, tt.conn, chatproto.TypeSendMessage, "", tt.data)
			reply, _ := readUntil(t, tt.conn, chatproto.TypeMessageSaved)
			saved := decode[chatproto.MessageSavedData](t, reply)
			assert.False(t, saved.OK)
			assert.Equal(t, "t", saved.TempID)
			require.NotNil(t, saved.Error)
			assert.Equal(t, tt.code, saved.Error.Code)
			assert.Nil(t, saved.Message)
		})
	}
}

type failingChat struct{ err error }

func (f failingChat) PostMessage(ctx context.Context, senderID string, draft entity.MessageDraft) (*entity.ChatSession, *entity.Message, error) {
	return nil, nil, f.err
}

func (f failingChat) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	return nil, errors.NotFound("User", nil)
}

func TestPersistenceFailureIsReported(t *testing.T) {
	s := newTestServer(t, failingChat{err: context.DeadlineExceeded}, Options{})
	buyer := s.dial(t, "b1", "buyer")

	send(t, buyer, chatproto.TypeSendMessage, "", helloFromBuyer("tmp-9"))
	reply, _ := readUntil(t, buyer, chatproto.TypeMessageSaved)
	saved := decode[chatproto.MessageSavedData](t, reply)
	assert.False(t, saved.OK)
	assert.Equal(t, "tmp-9", saved.TempID)
	assert.Equal(t, errors.CodeUnavailable, saved.Error.Code)
}

func TestCheckSellerStatusReply(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})
	viewer := s.dial(t, "", "")

	send(t, viewer, chatproto.TypeCheckSellerStatus, "q1", chatproto.StatusQueryData{SellerID: "s1"})
	reply, _ := readUntil(t, viewer, chatproto.TypeCheckSellerStatus)
	assert.Equal(t, "q1", reply.ID)
	assert.False(t, decode[chatproto.StatusData](t, reply).Online)

	s.dial(t, "s1", "seller")
	send(t, viewer, chatproto.TypeCheckSellerStatus, "q2", chatproto.StatusQueryData{SellerID: "s1"})
	reply, _ = readUntil(t, viewer, chatproto.TypeCheckSellerStatus)
	assert.Equal(t, "q2", reply.ID)
	assert.True(t, decode[chatproto.StatusData](t, reply).Online)

	send(t, viewer, chatproto.TypeCheckSellerStatus, "q3", chatproto.StatusQueryData{})
	reply, _ = readUntil(t, viewer, chatproto.TypeError)
	assert.Equal(t, "q3", reply.ID)
}

func TestUnknownAndMalformedFrames(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})
	conn := s.dial(t, "b1", "buyer")

	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("not json")))
	reply, _ := readUntil(t, conn, chatproto.TypeError)
	assert.Equal(t, errors.CodeBadRequest, decode[chatproto.ErrorData](t, reply).Code)

	send(t, conn, "typing", "x", nil)
	reply, _ = readUntil(t, conn, chatproto.TypeError)
	assert.Equal(t, "x", reply.ID)
}

func TestPresenceFollowsConnections(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{})
	ctx := context.Background()

	first := s.dial(t, "s1", "seller")
	second := s.dial(t, "s1", "seller")
	require.Eventually(t, func() bool { return s.manager.ConnectionCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	entry, ok, err := s.store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "seller", entry.UserRole)

	// Closing the replaced connection keeps the newer one online.
	first.Close()
	require.Eventually(t, func() bool { return s.manager.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	online, err := s.store.IsOnline(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, online)

	second.Close()
	assert.Eventually(t, func() bool {
		online, _ := s.store.IsOnline(ctx, "s1")
		return !online
	}, 2*time.Second, 10*time.Millisecond)

	s.dial(t, "s1", "seller")
	online, err = s.store.IsOnline(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestSilentConnectionIsDropped(t *testing.T) {
	s := newTestServer(t, newChatService(), Options{PongWait: 200 * time.Millisecond})
	ctx := context.Background()

	// The dialer never reads, so it never answers pings.
	s.dial(t, "s1", "seller")
	assert.Eventually(t, func() bool {
		online, _ := s.store.IsOnline(ctx, "s1")
		return !online && s.manager.ConnectionCount() == 0
	}, 3*time.Second, 20*time.Millisecond)
}
