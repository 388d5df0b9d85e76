package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	appconfig "tradesim/config"
	"tradesim/internal/channel"
	"tradesim/logger"
	"tradesim/models"
)

// Reader streams L2 order book snapshots from an OKX-style public websocket
// and forwards the raw messages to the configured channel. The implementation
// uses a plain websocket connection without relying on an SDK.
type Reader struct {
	config    *appconfig.Config
	channels  *channel.Channels
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	connected atomic.Bool
	log       *logger.Log
}

// NewReader creates a new order book stream reader.
func NewReader(cfg *appconfig.Config, ch *channel.Channels) *Reader {
	return &Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches the connection loop. The loop re-establishes the websocket
// after every disconnect until the context is cancelled; transient failures
// never terminate it.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("okx reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{"operation": "Start"})
	log.WithFields(logger.Fields{
		"url":     r.config.Source.URL,
		"symbols": r.config.Source.Symbols,
	}).Info("starting okx order book reader")

	r.wg.Add(1)
	go r.stream()

	log.Info("okx order book reader started successfully")
	return nil
}

// Stop waits for the connection loop to finish after context cancellation.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("okx_reader").Info("stopping okx reader")
	r.wg.Wait()
	r.log.WithComponent("okx_reader").Info("okx reader stopped")
}

// Connected reports whether the websocket is currently established.
func (r *Reader) Connected() bool {
	return r.connected.Load()
}

// stream manages the websocket lifecycle: dial, optional subscribe,
// keep-alive pings and the read loop. On any error it waits the configured
// fixed backoff and reconnects.
func (r *Reader) stream() {
	defer r.wg.Done()
	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{"worker": "stream"})

	backoff := r.config.Source.ReconnectBackoff
	wsURL := r.config.Source.URL

	for {
		if r.ctx.Err() != nil {
			return
		}

		log.WithField("url", wsURL).Debug("connecting to websocket")
		dialer := websocket.Dialer{}
		conn, _, err := dialer.Dial(wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket, retrying")
			if !r.wait(backoff) {
				return
			}
			continue
		}
		log.Info("websocket connected")
		r.connected.Store(true)

		if err := r.subscribe(conn); err != nil {
			log.WithError(err).Warn("failed to subscribe")
			r.connected.Store(false)
			conn.Close()
			if !r.wait(backoff) {
				return
			}
			continue
		}

		pingTicker := time.NewTicker(r.config.Source.PingInterval)
		done := make(chan struct{})
		go func() {
			defer pingTicker.Stop()
			for {
				select {
				case <-done:
					return
				case <-pingTicker.C:
					conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				r.connected.Store(false)
				log.WithError(err).Warn("websocket read error, reconnecting")
				break
			}
			r.processMessage(conn, msg)
		}

		if !r.wait(backoff) {
			return
		}
	}
}

// wait sleeps for the reconnect backoff, returning false when the context
// ends first.
func (r *Reader) wait(backoff time.Duration) bool {
	select {
	case <-time.After(backoff):
		return true
	case <-r.ctx.Done():
		return false
	}
}

// subscribe sends an OKX books subscription when symbols are configured.
// Endpoints that push snapshots for a fixed instrument need no subscription.
func (r *Reader) subscribe(conn *websocket.Conn) error {
	symbols := r.config.Source.Symbols
	if len(symbols) == 0 {
		return nil
	}

	args := make([]map[string]string, 0, len(symbols))
	for _, sym := range symbols {
		args = append(args, map[string]string{
			"channel": "books",
			"instId":  sym,
		})
	}
	sub := map[string]any{"op": "subscribe", "args": args}
	r.log.WithComponent("okx_reader").WithField("request", sub).Info("sending subscription request")
	return conn.WriteJSON(sub)
}

// processMessage answers ping frames and forwards order book payloads to the
// raw channel. It returns true when the message was forwarded.
func (r *Reader) processMessage(conn *websocket.Conn, msg []byte) bool {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(msg, &base); err != nil {
		r.log.WithComponent("okx_reader").WithError(err).Debug("failed to decode message")
		return false
	}
	if _, ok := base["event"]; ok {
		var evt struct {
			Event string `json:"event"`
		}
		json.Unmarshal(msg, &evt)
		r.log.WithComponent("okx_reader").WithFields(logger.Fields{"event": evt.Event}).Debug("received event message")
		if evt.Event == "ping" && conn != nil {
			conn.WriteMessage(websocket.TextMessage, []byte("{\"op\":\"pong\"}"))
		}
		return false
	}
	if _, ok := base["ping"]; ok {
		var ping struct {
			Ping int64 `json:"ping"`
		}
		if err := json.Unmarshal(msg, &ping); err == nil && conn != nil {
			resp, _ := json.Marshal(map[string]int64{"pong": ping.Ping})
			conn.WriteMessage(websocket.TextMessage, resp)
		}
		return false
	}

	raw := models.RawFeedMessage{
		Exchange: r.config.Source.Exchange,
		Data:     msg,
		Received: time.Now(),
	}
	if r.channels.SendRaw(r.ctx, raw) {
		return true
	}
	if r.ctx.Err() == nil {
		r.log.WithComponent("okx_reader").Warn("raw channel full, dropping message")
	}
	return false
}
