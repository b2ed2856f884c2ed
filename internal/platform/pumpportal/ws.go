package pumpportal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/metrics"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	handshakeTimeout = 15 * time.Second
)

// TokenHandler receives each decoded token event. It runs on the read
// goroutine, so a slow handler applies backpressure to the socket.
type TokenHandler func(domain.TokenEvent)

// WSClient is a single websocket session. It does not reconnect; the feed
// layer owns retry policy.
type WSClient struct {
	url    string
	logger *slog.Logger

	mu     sync.Mutex // guards conn writes
	conn   *websocket.Conn
	closed bool
}

// NewWSClient creates a client for url. An empty url uses DefaultURL.
func NewWSClient(url string, logger *slog.Logger) *WSClient {
	if url == "" {
		url = DefaultURL
	}
	return &WSClient{url: url, logger: logger}
}

// Connect dials the server.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("pumpportal: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("pumpportal: connect: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	w.conn = conn
	return nil
}

// Subscribe sends cmd to the server.
func (w *WSClient) Subscribe(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("pumpportal: marshal %s: %w", cmd.Method, err)
	}
	if err := w.write(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("pumpportal: send %s: %w", cmd.Method, err)
	}
	return nil
}

// Listen reads frames until the connection fails or ctx is cancelled,
// passing token events to handle. It always returns a non-nil error;
// cancellation yields ctx.Err().
func (w *WSClient) Listen(ctx context.Context, handle TokenHandler) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("pumpportal: listen: not connected")
	}

	stop := make(chan struct{})
	defer close(stop)
	go w.pingLoop(stop)

	// Unblock ReadMessage on cancellation.
	go func() {
		select {
		case <-ctx.Done():
			_ = w.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pumpportal: read: %w: %w", domain.ErrWSDisconnect, err)
		}

		frame, err := Decode(raw)
		if err != nil {
			metrics.FeedFrames.WithLabelValues("invalid").Inc()
			w.logger.Warn("invalid frame", slog.String("error", err.Error()))
			continue
		}
		metrics.FeedFrames.WithLabelValues(frame.Kind.String()).Inc()

		switch frame.Kind {
		case FrameAck:
			w.logger.Info("server acknowledgement", slog.String("message", frame.Message))
		case FrameToken:
			handle(frame.Token.ToDomain(time.Now().UTC()))
		default:
			w.logger.Debug("ignoring frame", slog.Int("bytes", len(raw)))
		}
	}
}

// Close sends a close frame and tears down the connection. It is safe to
// call more than once.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.conn == nil {
		return nil
	}

	_ = w.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return w.conn.Close()
}

func (w *WSClient) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil || w.closed {
		return errors.New("not connected")
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(messageType, data)
}

func (w *WSClient) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := w.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
