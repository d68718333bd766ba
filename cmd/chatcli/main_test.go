package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapmart/pkg/chatclient"
	"scrapmart/pkg/chatproto"
)

func TestHistoryReadsEveryPage(t *testing.T) {
	const total = 2*historyPage + 50
	var requests atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "Bearer dev:b1", r.Header.Get("Authorization"))
		afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after_seq"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		page := []chatproto.MessageData{}
		for seq := afterSeq + 1; seq <= total && len(page) < limit; seq++ {
			page = append(page, chatproto.MessageData{ID: "m" + strconv.FormatInt(seq, 10), Seq: seq})
		}
		data, _ := json.Marshal(page)
		_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
	}))
	defer srv.Close()

	api := &apiClient{base: srv.URL, token: "dev:b1", http: srv.Client()}
	history, err := api.history(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, history, total)
	assert.Equal(t, int64(1), history[0].Seq)
	assert.Equal(t, int64(total), history[total-1].Seq)
	assert.Equal(t, int32(3), requests.Load())
}

func TestHistoryStopsOnEmptyPage(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page := []chatproto.MessageData{}
		if r.URL.Query().Get("after_seq") == "0" {
			for seq := int64(1); seq <= historyPage; seq++ {
				page = append(page, chatproto.MessageData{ID: "m" + strconv.FormatInt(seq, 10), Seq: seq})
			}
		}
		data, _ := json.Marshal(page)
		_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
	}))
	defer srv.Close()

	api := &apiClient{base: srv.URL, token: "dev:b1", http: srv.Client()}
	history, err := api.history(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Len(t, history, historyPage)
	assert.Equal(t, int32(2), requests.Load())
}

func TestPrintFailedMessageWithoutError(t *testing.T) {
	msg := chatclient.Message{
		TempID:    "tmp-1",
		SenderID:  "b1",
		Body:      "hello",
		CreatedAt: time.Now(),
		Status:    chatclient.StatusFailed,
	}
	assert.NotPanics(t, func() { printMessage("b1", msg) })

	msg.Error = &chatproto.ErrorData{Code: "UNAVAILABLE", Message: "Message write timed out"}
	assert.NotPanics(t, func() { printMessage("b1", msg) })
}
