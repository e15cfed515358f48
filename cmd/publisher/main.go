package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"community-realtime/internal/config"
	"community-realtime/internal/publisher"
	"community-realtime/internal/realtime"
)

// fieldFlags collects repeated -field key=value pairs.
type fieldFlags map[string]string

func (f fieldFlags) String() string { return fmt.Sprint(map[string]string(f)) }

func (f fieldFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	f[k] = val
	return nil
}

func main() {
	env, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		via      string
		kind     string
		eventID  string
		action   string
		attendee realtime.Attendee
		timeout  time.Duration
		fields   = fieldFlags{}
	)

	flag.StringVar(&env.URL, "url", env.URL, "realtime ws url")
	flag.StringVar(&via, "via", "ws", "transport: ws (realtime channel) or http (POST /publish)")
	flag.StringVar(&kind, "type", realtime.TypeAttendance, "update type: attendance or event_update")
	flag.StringVar(&eventID, "event", "", "event id (required)")
	flag.StringVar(&action, "action", string(realtime.ActionJoin), "attendance action: join, leave or update")
	flag.StringVar(&attendee.ID, "attendee", "", "attendee id")
	flag.StringVar(&attendee.Address, "address", "", "attendee wallet address")
	flag.StringVar(&attendee.Status, "status", "confirmed", "attendee status")
	flag.StringVar(&attendee.DisplayName, "name", "", "attendee display name")
	flag.Var(fields, "field", "event field key=value (repeatable, event_update only)")
	flag.DurationVar(&env.StableAfter, "stable-after", env.StableAfter, "connection uptime that resets the reconnect attempts (0 = reset on every connect)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	if err := env.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	u, err := buildUpdate(kind, eventID, realtime.Action(action), attendee, fields)
	if err != nil {
		log.Fatalf("invalid update: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	switch via {
	case "ws":
		err = publishWS(ctx, env, u)
	case "http":
		p := &publisher.HTTPPublisher{URL: publisher.PublishURL(env.URL)}
		err = p.Publish(ctx, u)
	default:
		err = fmt.Errorf("unknown -via %q", via)
	}
	if err != nil {
		log.Fatalf("[publisher] %v", err)
	}
	log.Printf("[publisher] published %s for event %s", u.Type, u.EventID)
}

func publishWS(ctx context.Context, env config.Config, u *realtime.Update) error {
	// subscribe to the event so the broker echoes our update back
	endpoint, err := url.Parse(env.URL)
	if err != nil {
		return err
	}
	q := endpoint.Query()
	q.Set("event", u.EventID)
	endpoint.RawQuery = q.Encode()

	connected := make(chan struct{}, 1)
	gaveUp := make(chan struct{})

	opts := env.ChannelOptions()
	opts.URL = endpoint.String()
	opts.OnStateChange = func(s realtime.State) {
		if s == realtime.Connected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	}
	opts.OnExhausted = func(int) { close(gaveUp) }

	ch := realtime.New(opts)
	ch.Connect(ctx)
	defer ch.Disconnect()

	select {
	case <-connected:
	case <-gaveUp:
		return errors.New("could not connect")
	case <-ctx.Done():
		return ctx.Err()
	}

	p := &publisher.ChannelPublisher{Channel: ch}
	return p.Publish(ctx, u)
}

func buildUpdate(kind, eventID string, action realtime.Action, a realtime.Attendee, fields fieldFlags) (*realtime.Update, error) {
	var u *realtime.Update
	switch kind {
	case realtime.TypeAttendance:
		if a.Status == "checked_in" {
			a.CheckedInAt = time.Now().UnixMilli()
		}
		u = realtime.NewAttendance(eventID, a, action)
	case realtime.TypeEventUpdate:
		values := make(map[string]any, len(fields))
		for k, v := range fields {
			// accept JSON literals (numbers, bools, objects), fall back to string
			var parsed any
			if err := json.Unmarshal([]byte(v), &parsed); err == nil {
				values[k] = parsed
			} else {
				values[k] = v
			}
		}
		var err error
		if u, err = realtime.NewEventUpdate(eventID, values); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown -type %q", kind)
	}
	return u, u.Validate()
}
