package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const wsWriteTimeout = 5 * time.Second

// WebSocketOptions configures the browser channel.
type WebSocketOptions struct {
	// OriginPatterns lists extra hosts allowed to connect cross-origin.
	OriginPatterns []string
	// ConnectText, when set, is dispatched as the first message of every
	// connection (e.g. "/start").
	ConnectText string
	// OnClose runs after a connection is gone.
	OnClose func(userID string)
}

// wsInbound is the JSON frame a client sends.
type wsInbound struct {
	Text string `json:"text"`
	Name string `json:"name,omitempty"`
}

// wsOutbound is the JSON frame pushed to a client.
type wsOutbound struct {
	Text string `json:"text"`
}

// WebSocketChannel implements Channel for browser clients. Every
// connection is its own user and is served by ServeHTTP.
type WebSocketChannel struct {
	opts    WebSocketOptions
	nextID  atomic.Uint64
	mu      sync.RWMutex
	conns   map[string]*websocket.Conn
	handler func(InboundMessage)
	ctx     context.Context
}

// NewWebSocketChannel creates a WebSocket channel. It accepts connections
// once Start has been called.
func NewWebSocketChannel(opts WebSocketOptions) *WebSocketChannel {
	return &WebSocketChannel{
		opts:  opts,
		conns: make(map[string]*websocket.Conn),
	}
}

func (w *WebSocketChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	w.mu.RLock()
	conn, ok := w.conns[userID]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("websocket connection not found: %s", userID)
	}

	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, wsOutbound{Text: msg.Text}); err != nil {
		return fmt.Errorf("writing websocket message: %w", err)
	}
	return nil
}

// SendTyping is a no-op: the browser client has no typing indicator.
func (w *WebSocketChannel) SendTyping(context.Context, string) error {
	return nil
}

func (w *WebSocketChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
	w.ctx = ctx
	return nil
}

// Stop closes every open connection.
func (w *WebSocketChannel) Stop() error {
	w.mu.Lock()
	conns := w.conns
	w.conns = make(map[string]*websocket.Conn)
	w.handler = nil
	w.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

// Connections returns the number of open connections.
func (w *WebSocketChannel) Connections() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.conns)
}

// ServeHTTP upgrades the request and reads messages until the client
// disconnects. Messages of one connection are handled in order.
func (w *WebSocketChannel) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.RLock()
	handler, chanCtx := w.handler, w.ctx
	w.mu.RUnlock()
	if handler == nil {
		http.Error(rw, "websocket channel not started", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		OriginPatterns: w.opts.OriginPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(chanCtx, cancel)
	defer stop()

	userID := "ws-" + strconv.FormatUint(w.nextID.Add(1), 10)
	w.mu.Lock()
	w.conns[userID] = conn
	w.mu.Unlock()
	slog.Info("websocket connected", "user_id", userID, "remote_addr", r.RemoteAddr)

	defer func() {
		w.mu.Lock()
		delete(w.conns, userID)
		w.mu.Unlock()
		_ = conn.CloseNow()
		slog.Info("websocket disconnected", "user_id", userID)
		if w.opts.OnClose != nil {
			w.opts.OnClose(userID)
		}
	}()

	if w.opts.ConnectText != "" {
		handler(InboundMessage{Channel: "websocket", UserID: userID, ExternalID: userID, Text: w.opts.ConnectText})
	}

	for {
		var in wsInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				slog.Debug("websocket read ended", "user_id", userID, "error", err)
			}
			return
		}
		handler(InboundMessage{
			Channel:    "websocket",
			UserID:     userID,
			ExternalID: userID,
			Text:       in.Text,
			FirstName:  in.Name,
		})
	}
}
