package chatclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"scrapmart/pkg/chatproto"
	"scrapmart/pkg/logger"
)

const writeWait = 10 * time.Second

// OfflineHook runs when the server reports the counterpart offline after a send.
type OfflineHook func(status chatproto.CounterpartStatusData)

type Options struct {
	// URL of the /ws endpoint, e.g. ws://localhost:8080/ws.
	URL       string
	Token     string
	Header    http.Header
	Dialer    *websocket.Dialer
	OnOffline OfflineHook
	// OnUpdate runs after every change to the conversation.
	OnUpdate func()
}

// ServerError is an error frame returned for a request.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client keeps one websocket connection and applies the events it receives
// to a Conversation.
type Client struct {
	conn *websocket.Conn
	conv *Conversation
	opts Options

	writeMu sync.Mutex
	nextID  atomic.Uint64

	waitersMu sync.Mutex
	waiters   map[string]chan chatproto.WSMessage

	done chan struct{}
	err  error
}

// Dial connects as the conversation's own participant and starts reading.
func Dial(ctx context.Context, conv *Conversation, opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	if opts.Token != "" {
		q.Set("token", opts.Token)
	}
	q.Set("role", string(conv.role))
	u.RawQuery = q.Encode()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}

	c := &Client{
		conn:    conn,
		conv:    conv,
		opts:    opts,
		waiters: make(map[string]chan chatproto.WSMessage),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Conversation() *Conversation { return c.conv }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err is the reason the connection ended. Valid after Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// JoinRoom subscribes the connection to the conversation's room.
func (c *Client) JoinRoom(ctx context.Context) error {
	_, err := c.request(ctx, chatproto.TypeJoinRoom, chatproto.RoomData{Room: c.conv.Room().String()})
	return err
}

// Send renders body optimistically and sends it. The outcome arrives
// asynchronously as a confirmed or failed entry in the conversation.
func (c *Client) Send(body string) (Message, error) {
	msg, data, err := c.conv.Submit(body)
	if err != nil {
		return Message{}, err
	}
	c.notifyUpdate()

	if err := c.write(chatproto.TypeSendMessage, msg.TempID, data); err != nil {
		c.conv.MarkFailed(msg.TempID, err)
		c.notifyUpdate()
		return msg, err
	}
	return msg, nil
}

// Retry resends a failed message.
func (c *Client) Retry(tempID string) error {
	data, err := c.conv.Retry(tempID)
	if err != nil {
		return err
	}
	c.notifyUpdate()
	if err := c.write(chatproto.TypeSendMessage, tempID, data); err != nil {
		c.conv.MarkFailed(tempID, err)
		c.notifyUpdate()
		return err
	}
	return nil
}

// CheckStatus asks whether userID is online.
func (c *Client) CheckStatus(ctx context.Context, userID string) (bool, error) {
	reply, err := c.request(ctx, chatproto.TypeCheckSellerStatus, chatproto.StatusQueryData{UserID: userID})
	if err != nil {
		return false, err
	}
	var status chatproto.StatusData
	if err := reply.DecodeData(&status); err != nil {
		return false, fmt.Errorf("decode status: %w", err)
	}
	return status.Online, nil
}

// Ping round-trips an application level ping.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, chatproto.TypePing, nil)
	return err
}

// Close sends a close frame and waits for the read loop to stop.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(writeWait):
	}
	return c.conn.Close()
}

func (c *Client) request(ctx context.Context, msgType string, data interface{}) (chatproto.WSMessage, error) {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	reply := make(chan chatproto.WSMessage, 1)

	c.waitersMu.Lock()
	c.waiters[id] = reply
	c.waitersMu.Unlock()
	defer func() {
		c.waitersMu.Lock()
		delete(c.waiters, id)
		c.waitersMu.Unlock()
	}()

	if err := c.write(msgType, id, data); err != nil {
		return chatproto.WSMessage{}, err
	}

	select {
	case msg := <-reply:
		if msg.Type == chatproto.TypeError {
			var e chatproto.ErrorData
			_ = msg.DecodeData(&e)
			return msg, &ServerError{Code: e.Code, Message: e.Message}
		}
		return msg, nil
	case <-c.done:
		return chatproto.WSMessage{}, fmt.Errorf("connection closed: %w", c.err)
	case <-ctx.Done():
		return chatproto.WSMessage{}, ctx.Err()
	}
}

func (c *Client) write(msgType, id string, data interface{}) error {
	frame, err := chatproto.Encode(msgType, id, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.err = nil
			} else {
				c.err = err
			}
			return
		}

		msg, err := chatproto.Decode(frame)
		if err != nil {
			logger.Warn("chatclient: Dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg chatproto.WSMessage) {
	if msg.ID != "" && msg.Type != chatproto.TypeMessageSaved {
		c.waitersMu.Lock()
		reply, ok := c.waiters[msg.ID]
		c.waitersMu.Unlock()
		if ok {
			reply <- msg
			return
		}
	}

	switch msg.Type {
	case chatproto.TypeReceiveMessage:
		var data chatproto.MessageData
		if err := msg.DecodeData(&data); err != nil {
			logger.Warn("chatclient: Bad %s payload: %v", msg.Type, err)
			return
		}
		if c.conv.ApplyReceived(data) {
			c.notifyUpdate()
		}

	case chatproto.TypeMessageSaved:
		var ack chatproto.MessageSavedData
		if err := msg.DecodeData(&ack); err != nil {
			logger.Warn("chatclient: Bad %s payload: %v", msg.Type, err)
			return
		}
		if ack.TempID == "" {
			ack.TempID = msg.ID
		}
		if c.conv.ApplyAcknowledged(ack) {
			c.notifyUpdate()
		}

	case chatproto.TypeCounterpartStatus:
		var status chatproto.CounterpartStatusData
		if err := msg.DecodeData(&status); err != nil {
			logger.Warn("chatclient: Bad %s payload: %v", msg.Type, err)
			return
		}
		if c.conv.ApplyCounterpartStatus(status) && c.opts.OnOffline != nil {
			c.opts.OnOffline(status)
		}

	case chatproto.TypeError:
		var e chatproto.ErrorData
		_ = msg.DecodeData(&e)
		logger.Warn("chatclient: Server error %s: %s", e.Code, e.Message)

	default:
		logger.Debug("chatclient: Ignoring %s frame", msg.Type)
	}
}

func (c *Client) notifyUpdate() {
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate()
	}
}
