package chain

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestBlockNotifier_Subscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"block","hash":"blockhash123","height":100}`))

		// Keep the connection open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := NewBlockNotifier(wsURL, nil, wsTestLogger())
	ch, err := notifier.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case n := <-ch:
		if n.Hash != "blockhash123" || n.Height != 100 {
			t.Errorf("notification mismatch: %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}
}

func TestBlockNotifier_IgnoresOtherEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"mempool","txid":"abc"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"block","hash":"blockhash200","height":200}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := NewBlockNotifier(wsURL, nil, wsTestLogger())
	ch, err := notifier.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case n := <-ch:
		if n.Height != 200 {
			t.Errorf("expected only the block event, got %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}
}

func TestBlockNotifier_DialFailure(t *testing.T) {
	notifier := NewBlockNotifier("ws://127.0.0.1:1", nil, wsTestLogger())

	if _, err := notifier.Subscribe(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestBlockNotifier_ChannelClosesOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())

	config := DefaultWSConfig()
	config.ReadTimeout = 50 * time.Millisecond
	config.ReconnectDelay = 10 * time.Millisecond

	notifier := NewBlockNotifier(wsURL, &config, wsTestLogger())
	ch, err := notifier.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel close, got a notification")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
