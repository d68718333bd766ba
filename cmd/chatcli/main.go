// Command chatcli is a terminal chat client for one buyer/seller/product
// conversation.
//
//	chatcli -token dev:b1 -role buyer -product p1
//	chatcli -token dev:s1 -role seller -buyer b1 -seller s1 -product p1
//
// Lines typed are sent as messages. /status asks whether the counterpart is
// online, /retry resends failed messages, /quit exits.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"scrapmart/internal/domain/entity"
	"scrapmart/pkg/chatclient"
	"scrapmart/pkg/chatproto"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type startSessionData struct {
	Session struct {
		ID       string `json:"id"`
		BuyerID  string `json:"buyer_id"`
		SellerID string `json:"seller_id"`
	} `json:"session"`
	Seller struct {
		Username string `json:"username"`
	} `json:"seller"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "API base URL")
	token := flag.String("token", "", "ID token (dev:<uid> when DEV_AUTH is on)")
	uid := flag.String("uid", "", "your user id (defaults to the uid in a dev token)")
	role := flag.String("role", "buyer", "buyer or seller")
	buyerID := flag.String("buyer", "", "buyer id")
	sellerID := flag.String("seller", "", "seller id (resolved from the product when you are the buyer)")
	productID := flag.String("product", "", "product id")
	flag.Parse()

	senderRole, ok := entity.ParseSenderRole(*role)
	if !ok {
		log.Fatalf("role must be buyer or seller")
	}
	self := *uid
	if self == "" {
		self = strings.TrimPrefix(*token, "dev:")
	}
	if self == "" || *productID == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := &apiClient{base: strings.TrimRight(*server, "/"), token: *token, http: &http.Client{Timeout: 10 * time.Second}}

	var sessionID string
	if senderRole == entity.RoleBuyer {
		*buyerID = self
		started, err := api.startSession(ctx, *productID)
		if err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}
		*sellerID = started.Session.SellerID
		sessionID = started.Session.ID
		fmt.Printf("Chatting with %s about %s\n", started.Seller.Username, *productID)
	} else {
		*sellerID = self
		sessionID = entity.SessionID(*buyerID, *sellerID, *productID)
	}

	conv, err := chatclient.NewConversation(chatclient.ConversationConfig{
		SelfID:    self,
		Role:      senderRole,
		BuyerID:   *buyerID,
		SellerID:  *sellerID,
		ProductID: *productID,
	})
	if err != nil {
		log.Fatalf("Invalid conversation: %v", err)
	}

	if history, err := api.history(ctx, sessionID); err != nil {
		log.Printf("History unavailable: %v", err)
	} else {
		conv.LoadHistory(history)
	}

	var renderMu sync.Mutex
	printed := 0
	render := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		msgs := conv.Messages()
		for ; printed < len(msgs); printed++ {
			printMessage(self, msgs[printed])
		}
	}
	render()

	wsURL := "ws" + strings.TrimPrefix(api.base, "http") + "/ws"
	client, err := chatclient.Dial(ctx, conv, chatclient.Options{
		URL:   wsURL,
		Token: *token,
		OnOffline: func(s chatproto.CounterpartStatusData) {
			fmt.Printf("* %s is offline; they will be notified\n", s.UserID)
		},
		OnUpdate: render,
	})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.JoinRoom(ctx); err != nil {
		log.Fatalf("Failed to join %s: %v", conv.Room(), err)
	}
	fmt.Printf("Joined %s\n", conv.Room())

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			if err := client.Err(); err != nil {
				log.Printf("Disconnected: %v", err)
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, client, conv, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, client *chatclient.Client, conv *chatclient.Conversation, line string) bool {
	switch line {
	case "":
	case "/quit":
		return false
	case "/status":
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		online, err := client.CheckStatus(reqCtx, conv.CounterpartID())
		if err != nil {
			fmt.Printf("* status: %v\n", err)
			break
		}
		fmt.Printf("* %s online: %v\n", conv.CounterpartID(), online)
	case "/retry":
		for _, m := range conv.Failed() {
			if err := client.Retry(m.TempID); err != nil {
				fmt.Printf("* retry %q: %v\n", m.Body, err)
			}
		}
	default:
		if _, err := client.Send(line); err != nil {
			fmt.Printf("* send: %v\n", err)
		}
	}
	return true
}

func printMessage(self string, m chatclient.Message) {
	who := m.SenderID
	if m.Mine(self) {
		who = "you"
	}
	suffix := ""
	switch m.Status {
	case chatclient.StatusPending:
		suffix = " (sending)"
	case chatclient.StatusFailed:
		reason := "not saved"
		if m.Error != nil && m.Error.Message != "" {
			reason = m.Error.Message
		}
		suffix = " (failed: " + reason + ", /retry to resend)"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format(time.Kitchen), who, m.Body, suffix)
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (a *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, &payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return json.Unmarshal(env.Data, out)
}

func (a *apiClient) startSession(ctx context.Context, productID string) (*startSessionData, error) {
	var out startSessionData
	err := a.do(ctx, http.MethodPost, "/v1/chats/sessions", map[string]string{"product_id": productID}, &out)
	return &out, err
}

const historyPage = 200

// history pages through the whole conversation by seq.
func (a *apiClient) history(ctx context.Context, sessionID string) ([]chatproto.MessageData, error) {
	var all []chatproto.MessageData
	var afterSeq int64
	for {
		var page []chatproto.MessageData
		path := fmt.Sprintf("/v1/chats/sessions/%s/messages?after_seq=%d&limit=%d", sessionID, afterSeq, historyPage)
		if err := a.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return all, err
		}
		all = append(all, page...)
		if len(page) < historyPage {
			return all, nil
		}
		afterSeq = page[len(page)-1].Seq
	}
}
