package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	ch chan []byte
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return f.ch, nil
}

func TestHubRelaysToClients(t *testing.T) {
	src := &fakeSubscriber{ch: make(chan []byte, 1)}
	hub := NewHub(src, Config{Channels: []string{"positions"}, Mode: "run"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var hello map[string]any
	require.NoError(t, json.Unmarshal(raw, &hello))
	assert.Equal(t, "hello", hello["event"])
	assert.Equal(t, "run", hello["mode"])
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	src.ch <- []byte(`{"event":"position_opened","asset_id":"mintA"}`)
	typ, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	assert.JSONEq(t, `{"event":"position_opened","asset_id":"mintA"}`, string(raw))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

// flakySubscriber fails the first failures calls, then hands out ch.
type flakySubscriber struct {
	mu       sync.Mutex
	failures int
	calls    int
	ch       chan []byte
}

func (f *flakySubscriber) Subscribe(context.Context, string) (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("bus unavailable")
	}
	return f.ch, nil
}

func (f *flakySubscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestHubRetriesSubscribeUntilBusIsBack(t *testing.T) {
	src := &flakySubscriber{failures: 2, ch: make(chan []byte, 1)}
	hub := NewHub(src, Config{Channels: []string{"positions"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.retryMin = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage() // hello
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return src.callCount() == 3 }, 2*time.Second, 5*time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("hub stopped on a subscribe failure: %v", err)
	default:
	}

	src.ch <- []byte(`{"event":"position_closed"}`)
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"position_closed"}`, string(raw))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestHubResubscribesAfterDrop(t *testing.T) {
	first := make(chan []byte)
	src := &flakySubscriber{ch: first}
	hub := NewHub(src, Config{Channels: []string{"positions"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.retryMin = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	assert.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, 5*time.Millisecond)
	src.mu.Lock()
	src.ch = make(chan []byte)
	src.mu.Unlock()
	close(first)

	assert.Eventually(t, func() bool { return src.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestHubRejectsAfterStop(t *testing.T) {
	hub := NewHub(&fakeSubscriber{ch: make(chan []byte)}, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, hub.Run(ctx), context.Canceled)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}
