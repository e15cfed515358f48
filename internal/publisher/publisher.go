package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"community-realtime/internal/broker"
	"community-realtime/internal/realtime"
)

var ErrNotConnected = errors.New("channel not connected")

type Publisher interface {
	Publish(ctx context.Context, u *realtime.Update) error
}

// ChannelPublisher publishes over a realtime.Channel and waits until the
// broker echoes the update back. The channel must be subscribed to the
// update's event (or to all events) for the echo to arrive.
type ChannelPublisher struct {
	Channel *realtime.Channel
}

func (p *ChannelPublisher) Publish(ctx context.Context, u *realtime.Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if p.Channel.State() != realtime.Connected {
		return ErrNotConnected
	}

	frame, err := broker.PublishFrame(u)
	if err != nil {
		return fmt.Errorf("build publish frame: %w", err)
	}

	echoed := make(chan struct{})
	var matched bool
	unsubscribe := p.Channel.Subscribe(func(got *realtime.Update) {
		// listeners run on the channel's read goroutine, one at a time
		if !matched && sameUpdate(u, got) {
			matched = true
			close(echoed)
		}
	})
	defer unsubscribe()

	p.Channel.Send(frame)

	select {
	case <-echoed:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for echo of %s/%s: %w", u.Type, u.EventID, ctx.Err())
	}
}

func sameUpdate(a, b *realtime.Update) bool {
	if a.Type != b.Type || a.EventID != b.EventID {
		return false
	}
	switch a.Type {
	case realtime.TypeAttendance:
		return a.Action == b.Action && b.Attendee != nil && a.Attendee.ID == b.Attendee.ID
	case realtime.TypeEventUpdate:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for k, v := range a.Fields {
			if !bytes.Equal(compact(v), compact(b.Fields[k])) {
				return false
			}
		}
		return true
	}
	return false
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// HTTPPublisher posts updates to the broker's /publish endpoint.
type HTTPPublisher struct {
	URL    string
	Client *http.Client
}

func (p *HTTPPublisher) Publish(ctx context.Context, u *realtime.Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(u)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", u.Type, u.EventID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("publish %s/%s: %s: %s", u.Type, u.EventID, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

// PublishURL derives the broker's HTTP publish endpoint from its ws url.
func PublishURL(wsURL string) string {
	u := wsURL
	switch {
	case strings.HasPrefix(u, "wss://"):
		u = "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		u = "http://" + strings.TrimPrefix(u, "ws://")
	}
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return strings.TrimSuffix(strings.TrimSuffix(u, "/"), "/ws") + "/publish"
}
