package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name string
	err  error
	got  []Notification
}

func (r *recordingSender) Send(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFilters(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventListingRejected, " "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), Notification{Event: EventListingStored}))
	assert.Empty(t, s.got)

	require.NoError(t, n.Notify(context.Background(), Notification{Event: EventListingRejected, Title: "rejected"}))
	require.Len(t, s.got, 1)
	assert.False(t, s.got[0].At.IsZero())

	require.NoError(t, n.NotifyAll(context.Background(), Notification{Event: EventListingStored}))
	assert.Len(t, s.got, 2)
	assert.Equal(t, []string{"rec"}, n.Senders())
}

func TestNotifierEmptyAllowListPassesEverything(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.True(t, n.Allowed("anything"))
	assert.NoError(t, n.Notify(context.Background(), Notification{Event: "anything"}))
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), Notification{Event: EventError})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.got, 1, "remaining senders still receive the notification")
}

func TestSortedFields(t *testing.T) {
	n := Notification{Fields: map[string]string{"code": "missing_title", "addr": "30402:a:b"}}
	assert.Equal(t, [][2]string{{"addr", "30402:a:b"}, {"code", "missing_title"}}, n.SortedFields())
}

func TestDiscordSender(t *testing.T) {
	var payload discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := d.Send(context.Background(), Notification{
		Event:   EventListingRejected,
		Title:   "Listing rejected",
		Message: "missing listing title",
		Fields:  map[string]string{"code": "missing_title"},
		At:      at,
	})
	require.NoError(t, err)
	require.Len(t, payload.Embeds, 1)
	embed := payload.Embeds[0]
	assert.Equal(t, "Listing rejected", embed.Title)
	assert.Equal(t, discordColors[EventListingRejected], embed.Color)
	assert.Equal(t, "2026-03-01T12:00:00Z", embed.Timestamp)
	assert.Equal(t, []discordField{{Name: "code", Value: "missing_title", Inline: true}}, embed.Fields)
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Notification{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}

func TestTelegramSender(t *testing.T) {
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), Notification{
		Title:   "Archive <done>",
		Message: "12 rows",
		Fields:  map[string]string{"kind": "rejects"},
	}))

	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "HTML", body["parse_mode"])
	assert.Equal(t, "<b>Archive &lt;done&gt;</b>\n12 rows\n<i>kind</i>: <code>rejects</code>", body["text"])
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func TestNATSSender(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSender(pub, "tradedvm.")
	assert.Equal(t, "tradedvm.unknown", s.Subject(""))
	assert.Equal(t, "listing_stored", NewNATSSender(pub, "").Subject(EventListingStored))

	n := Notification{Event: EventListingStored, Title: "stored", Fields: map[string]string{"addr": "30402:a:b"}}
	require.NoError(t, s.Send(context.Background(), n))
	assert.Equal(t, "tradedvm.listing_stored", pub.subject)

	var got Notification
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, n.Fields, got.Fields)

	pub.err = errors.New("no responders")
	assert.ErrorIs(t, s.Send(context.Background(), n), pub.err)
}
