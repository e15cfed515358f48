package publisher

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"community-realtime/internal/broker"
	"community-realtime/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBroker(t *testing.T) (*broker.Broker, *httptest.Server) {
	t.Helper()
	b := broker.NewBroker(log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	b.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
}

func connected(t *testing.T, url string) *realtime.Channel {
	t.Helper()
	ch := realtime.New(realtime.Options{URL: url, Logger: log.New(io.Discard, "", 0)})
	ch.Connect(context.Background())
	t.Cleanup(ch.Disconnect)
	require.Eventually(t, func() bool { return ch.State() == realtime.Connected }, 3*time.Second, 10*time.Millisecond)
	return ch
}

func TestChannelPublisher_WaitsForEcho(t *testing.T) {
	b, srv := newBroker(t)

	ch := connected(t, wsURL(srv, "event=e1"))
	watcher := connected(t, wsURL(srv, "event=e1"))
	require.Eventually(t, func() bool { return b.ClientCount() == 2 }, 3*time.Second, 10*time.Millisecond)

	seen := make(chan *realtime.Update, 1)
	watcher.Subscribe(func(u *realtime.Update) { seen <- u })

	u, err := realtime.NewEventUpdate("e1", map[string]any{"title": "AMA", "capacity": 40})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	p := &ChannelPublisher{Channel: ch}
	require.NoError(t, p.Publish(ctx, u))

	select {
	case got := <-seen:
		assert.JSONEq(t, `40`, string(got.Fields["capacity"]))
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not receive update")
	}
}

func TestChannelPublisher_TimesOutWithoutEcho(t *testing.T) {
	b, srv := newBroker(t)

	// subscribed to another event, so the broker never echoes e1 back
	ch := connected(t, wsURL(srv, "event=e2"))
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := &ChannelPublisher{Channel: ch}
	err := p.Publish(ctx, realtime.NewAttendance("e1", realtime.Attendee{ID: "a1"}, realtime.ActionJoin))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelPublisher_NotConnected(t *testing.T) {
	ch := realtime.New(realtime.Options{URL: "ws://127.0.0.1:1/ws", Logger: log.New(io.Discard, "", 0)})
	p := &ChannelPublisher{Channel: ch}

	err := p.Publish(context.Background(), realtime.NewAttendance("e1", realtime.Attendee{ID: "a1"}, realtime.ActionJoin))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestChannelPublisher_RejectsInvalid(t *testing.T) {
	ch := realtime.New(realtime.Options{URL: "ws://127.0.0.1:1/ws", Logger: log.New(io.Discard, "", 0)})
	p := &ChannelPublisher{Channel: ch}

	err := p.Publish(context.Background(), &realtime.Update{Type: realtime.TypeAttendance, EventID: "e1"})
	assert.ErrorIs(t, err, realtime.ErrMissingAttendee)
}

func TestHTTPPublisher(t *testing.T) {
	b, srv := newBroker(t)

	watcher := connected(t, wsURL(srv, "event=e3"))
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	seen := make(chan *realtime.Update, 1)
	watcher.Subscribe(func(u *realtime.Update) { seen <- u })

	p := &HTTPPublisher{URL: PublishURL(wsURL(srv, "event=e3"))}
	u := realtime.NewAttendance("e3", realtime.Attendee{ID: "a9", Address: "0x9", Status: "checked_in"}, realtime.ActionUpdate)
	require.NoError(t, p.Publish(context.Background(), u))

	select {
	case got := <-seen:
		assert.Equal(t, "checked_in", got.Attendee.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not receive update")
	}
}

func TestHTTPPublisher_ServerRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "decode update: unknown update type", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := &HTTPPublisher{URL: srv.URL}
	err := p.Publish(context.Background(), realtime.NewAttendance("e1", realtime.Attendee{ID: "a1"}, realtime.ActionJoin))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "unknown update type")
}

func TestPublishURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://localhost:8080/ws", "http://localhost:8080/publish"},
		{"wss://feed.example.org/ws?event=e1", "https://feed.example.org/publish"},
		{"ws://localhost:8080/", "http://localhost:8080/publish"},
		{"ws://localhost:8080/live/ws", "http://localhost:8080/live/publish"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PublishURL(tt.in), tt.in)
	}
}

func TestSameUpdate(t *testing.T) {
	a := realtime.NewAttendance("e1", realtime.Attendee{ID: "a1"}, realtime.ActionJoin)
	assert.True(t, sameUpdate(a, realtime.NewAttendance("e1", realtime.Attendee{ID: "a1", Status: "x"}, realtime.ActionJoin)))
	assert.False(t, sameUpdate(a, realtime.NewAttendance("e1", realtime.Attendee{ID: "a1"}, realtime.ActionLeave)))
	assert.False(t, sameUpdate(a, realtime.NewAttendance("e2", realtime.Attendee{ID: "a1"}, realtime.ActionJoin)))

	ev := &realtime.Update{Type: realtime.TypeEventUpdate, EventID: "e1", Fields: map[string]json.RawMessage{"n": json.RawMessage(`{"a": 1}`)}}
	compacted := &realtime.Update{Type: realtime.TypeEventUpdate, EventID: "e1", Fields: map[string]json.RawMessage{"n": json.RawMessage(`{"a":1}`)}}
	assert.True(t, sameUpdate(ev, compacted))
	assert.False(t, sameUpdate(ev, a))
}
