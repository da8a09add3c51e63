package ws

import (
	"context"
	"encoding/json"
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

	rediscache "github.com/alanyoungcy/tradedvm/internal/cache/redis"
	"github.com/alanyoungcy/tradedvm/internal/domain"
)

type chanBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func newChanBus() *chanBus { return &chanBus{subs: map[string]chan []byte{}} }

func (b *chanBus) channel(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subs[name]
	if !ok {
		ch = make(chan []byte, 8)
		b.subs[name] = ch
	}
	return ch
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.channel(channel) <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.channel(channel), nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHubForwardsSignals(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, Config{Mode: "Full"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	status := readFrame(t, conn)
	assert.Equal(t, "status", status.Channel)
	assert.Contains(t, string(status.Payload), `"mode":"full"`)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, rediscache.ChannelIngest, []byte(`{"event_id":"e1"}`)))
	f := readFrame(t, conn)
	assert.Equal(t, rediscache.ChannelIngest, f.Channel)
	assert.JSONEq(t, `{"event_id":"e1"}`, string(f.Payload))

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{rediscache.ChannelIngest}}))
	require.Eventually(t, func() bool {
		for c := range snapshot(hub) {
			return !c.isSubscribed(rediscache.ChannelIngest)
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, rediscache.ChannelIngest, []byte(`{"event_id":"e2"}`)))
	require.NoError(t, bus.Publish(ctx, rediscache.ChannelTradeMessage, []byte(`{"event_id":"m1"}`)))
	f = readFrame(t, conn)
	assert.Equal(t, rediscache.ChannelTradeMessage, f.Channel)
}

func TestIsSubscribedWildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:*": true}}
	assert.True(t, c.isSubscribed("ch:ingest"))
	assert.False(t, c.isSubscribed("other"))
}

func snapshot(h *Hub) map[*client]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[*client]bool, len(h.clients))
	for c := range h.clients {
		out[c] = true
	}
	return out
}
