package okx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	appconfig "tradesim/config"
	"tradesim/internal/channel"
)

func testConfig(url string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Source.URL = url
	cfg.Source.Exchange = "OKX"
	cfg.Source.PingInterval = time.Second
	cfg.Source.ReconnectBackoff = 50 * time.Millisecond
	cfg.Channels.RawBuffer = 16
	cfg.Channels.RecorderBuffer = 16
	return cfg
}

func newTestServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func TestReaderForwardsSnapshots(t *testing.T) {
	payload := `{"symbol":"BTC-USDT-SWAP","exchange":"OKX","asks":[["100.1","2"]],"bids":[["99.9","3"]]}`
	srv := newTestServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	cfg := testConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	ch := channel.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.RecorderBuffer)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewReader(cfg, ch)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case raw := <-ch.Raw:
		if raw.Exchange != "OKX" {
			t.Errorf("expected exchange OKX, got %q", raw.Exchange)
		}
		if string(raw.Data) != payload {
			t.Errorf("unexpected payload: %s", raw.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
	}

	if !r.Connected() {
		t.Error("expected reader to report connected")
	}

	cancel()
	r.Stop()
}

func TestReaderSubscribesWhenSymbolsConfigured(t *testing.T) {
	subReceived := make(chan string, 1)
	srv := newTestServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subReceived <- string(msg)
		time.Sleep(100 * time.Millisecond)
	})
	defer srv.Close()

	cfg := testConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.Source.Symbols = []string{"BTC-USDT-SWAP"}
	ch := channel.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.RecorderBuffer)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewReader(cfg, ch)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case sub := <-subReceived:
		if !strings.Contains(sub, `"op":"subscribe"`) {
			t.Errorf("expected subscribe op, got %s", sub)
		}
		if !strings.Contains(sub, "BTC-USDT-SWAP") {
			t.Errorf("expected instId in subscription, got %s", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription")
	}

	cancel()
	r.Stop()
}

func TestReaderDoubleStart(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1") // never connects
	ch := channel.NewChannels(4, 4)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewReader(cfg, ch)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("expected error on double start")
	}
	cancel()
	r.Stop()
}

func TestProcessMessageIgnoresEvents(t *testing.T) {
	cfg := testConfig("ws://unused")
	ch := channel.NewChannels(4, 4)
	defer ch.Close()

	r := NewReader(cfg, ch)
	r.ctx = context.Background()

	if r.processMessage(nil, []byte(`{"event":"subscribe","arg":{"channel":"books"}}`)) {
		t.Error("event message should not be forwarded")
	}
	if !r.processMessage(nil, []byte(`{"symbol":"BTC-USDT","asks":[],"bids":[]}`)) {
		t.Error("snapshot message should be forwarded")
	}
}
