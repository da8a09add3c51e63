package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

func int64p(v int64) *int64 { return &v }

func TestFilterJSON(t *testing.T) {
	f := Filter{
		Kinds: []int{30402},
		Tags:  map[string][]string{"a": {"30402:abc:d"}},
		Since: int64p(100),
		Limit: 10,
	}
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kinds":[30402],"#a":["30402:abc:d"],"since":100,"limit":10}`, string(b))

	var back Filter
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, f, back)

	b, err = json.Marshal(Filter{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}

func TestFilterMatches(t *testing.T) {
	ev := nostr.Event{ID: "e1", PubKey: "abc", Kind: 30402, CreatedAt: 200, Tags: [][]string{{"d", "x"}, {"t", "coffee"}}}

	assert.True(t, Filter{}.Matches(ev))
	assert.True(t, Filter{Kinds: []int{1, 30402}, Authors: []string{"abc"}}.Matches(ev))
	assert.False(t, Filter{Kinds: []int{1}}.Matches(ev))
	assert.False(t, Filter{Since: int64p(201)}.Matches(ev))
	assert.False(t, Filter{Until: int64p(199)}.Matches(ev))
	assert.True(t, Filter{Tags: map[string][]string{"t": {"tea", "coffee"}}}.Matches(ev))
	assert.False(t, Filter{Tags: map[string][]string{"t": {"tea"}}}.Matches(ev))
	assert.False(t, Filter{IDs: []string{"other"}}.Matches(ev))
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`["EVENT","sub1",{"id":"e1","kind":30402,"tags":[["d","x"]],"content":""}]`))
	require.NoError(t, err)
	assert.Equal(t, LabelEvent, msg.Label)
	assert.Equal(t, "sub1", msg.SubID)
	require.NotNil(t, msg.Event)
	assert.Equal(t, "e1", msg.Event.ID)

	msg, err = ParseMessage([]byte(`["EOSE","sub1"]`))
	require.NoError(t, err)
	assert.Equal(t, Message{Label: LabelEOSE, SubID: "sub1"}, msg)

	msg, err = ParseMessage([]byte(`["NOTICE","slow down"]`))
	require.NoError(t, err)
	assert.Equal(t, "slow down", msg.Text)

	msg, err = ParseMessage([]byte(`["OK","e1",false,"blocked: spam"]`))
	require.NoError(t, err)
	assert.Equal(t, Message{Label: LabelOK, EventID: "e1", Text: "blocked: spam"}, msg)

	msg, err = ParseMessage([]byte(`["CLOSED","sub1","error: shutting down"]`))
	require.NoError(t, err)
	assert.Equal(t, "sub1", msg.SubID)
	assert.Equal(t, "error: shutting down", msg.Text)

	msg, err = ParseMessage([]byte(`["AUTH","challenge"]`))
	require.NoError(t, err)
	assert.Equal(t, "AUTH", msg.Label)

	for _, bad := range []string{`{}`, `[]`, `[1]`, `["EVENT","s"]`, `["EVENT","s",5]`, `["EOSE"]`, `["OK","e1"]`} {
		_, err := ParseMessage([]byte(bad))
		assert.ErrorIs(t, err, ErrMalformedMessage, bad)
	}
}

func TestFrames(t *testing.T) {
	b, err := reqFrame("s", []Filter{{Kinds: []int{1}}, {Authors: []string{"a"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `["REQ","s",{"kinds":[1]},{"authors":["a"]}]`, string(b))

	b, err = closeFrame("s")
	require.NoError(t, err)
	assert.JSONEq(t, `["CLOSE","s"]`, string(b))
}

// fakeRelay answers every REQ with one stored event and EOSE, every EVENT
// with OK, and drops the first connection after its first EOSE when
// dropFirst is set.
type fakeRelay struct {
	reqs      atomic.Int32
	conns     atomic.Int32
	dropFirst bool
}

func (f *fakeRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := f.conns.Add(1)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if json.Unmarshal(raw, &frame) != nil || len(frame) < 2 {
			continue
		}
		var label, arg string
		_ = json.Unmarshal(frame[0], &label)
		switch label {
		case LabelReq:
			_ = json.Unmarshal(frame[1], &arg)
			f.reqs.Add(1)
			ev := nostr.Event{ID: "stored", Kind: 30402, Tags: [][]string{{"d", "x"}}}
			evFrame, _ := json.Marshal([]any{"EVENT", arg, ev})
			_ = conn.WriteMessage(websocket.TextMessage, evFrame)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`["EOSE","`+arg+`"]`))
			if f.dropFirst && n == 1 {
				return
			}
		case LabelEvent:
			var ev nostr.Event
			_ = json.Unmarshal(frame[1], &ev)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`["OK","`+ev.ID+`",true,""]`))
		}
	}
}

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func TestClientSubscribeAndPublish(t *testing.T) {
	relay := &fakeRelay{}
	srv := httptest.NewServer(relay)
	defer srv.Close()

	c := NewClient(wsURL(srv), Options{})
	events := make(chan string, 4)
	eose := make(chan string, 4)
	oks := make(chan bool, 1)
	c.OnEvent(func(subID string, ev nostr.Event) { events <- subID + "/" + ev.ID })
	c.OnEOSE(func(subID string) { eose <- subID })
	c.OnOK(func(_ string, accepted bool, _ string) { oks <- accepted })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Subscribe(ctx, "listings", Filter{Kinds: []int{30402}}))
	assert.Equal(t, "listings/stored", recv(t, events))
	assert.Equal(t, "listings", recv(t, eose))
	assert.Equal(t, []string{"listings"}, c.Subscriptions())

	require.NoError(t, c.Publish(ctx, nostr.Event{ID: "mine", Kind: 5322}))
	assert.True(t, recv(t, oks))

	require.NoError(t, c.Unsubscribe(ctx, "listings"))
	assert.Empty(t, c.Subscriptions())
}

func TestClientResubscribesAfterReconnect(t *testing.T) {
	relay := &fakeRelay{dropFirst: true}
	srv := httptest.NewServer(relay)
	defer srv.Close()

	c := NewClient(wsURL(srv), Options{ReconnectDelay: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})
	eose := make(chan string, 4)
	c.OnEOSE(func(subID string) { eose <- subID })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Subscribe(ctx, "listings", Filter{Kinds: []int{30402}}))
	assert.Equal(t, "listings", recv(t, eose))
	assert.Equal(t, "listings", recv(t, eose), "subscription restored on the new connection")
	assert.GreaterOrEqual(t, relay.conns.Load(), int32(2))
	assert.GreaterOrEqual(t, relay.reqs.Load(), int32(2))
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", Options{})
	assert.ErrorIs(t, c.Subscribe(context.Background(), "s"), errNotConnected)
	assert.ErrorIs(t, c.Publish(context.Background(), nostr.Event{}), errNotConnected)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Error(t, c.Connect(context.Background()))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{MaxBackoff: time.Millisecond, ReconnectDelay: time.Second}.withDefaults()
	assert.Equal(t, defaultPingPeriod, o.PingPeriod)
	assert.Equal(t, time.Second, o.MaxBackoff)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for relay message")
	}
	var zero T
	return zero
}
