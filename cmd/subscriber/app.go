package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/term"

	"community-realtime/internal/realtime"
)

func Run(ctx context.Context, cfg Config, opts realtime.Options) error {
	if cfg.URL == "" {
		return fmt.Errorf("missing -url")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Second
	}

	endpoint, err := cfg.endpoint()
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	// UI init: in-place drawing only makes sense on a terminal
	var ui *InPlaceUI
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if ui, err = NewInPlaceUI(os.Stdout); err != nil {
			log.Printf("ui init failed: %v, falling back to plain output", err)
			ui = nil
		}
	}
	if ui != nil {
		defer ui.Close()
	}
	if cfg.Rows <= 0 {
		cfg.Rows = rowsForTerminal(fd)
	}

	state := NewAppState(cfg)

	gaveUp := make(chan struct{})
	opts.URL = endpoint
	opts.OnStateChange = func(s realtime.State) {
		state.SetConnState(s)
	}
	opts.OnExhausted = func(attempts int) {
		state.SetExhausted(attempts)
		close(gaveUp)
	}

	ch := realtime.New(opts)
	unsubscribe := ch.Subscribe(state.Apply)
	defer unsubscribe()

	ch.Connect(ctx)
	defer ch.Disconnect()

	// Render loop: fixed interval (1s default)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if vm, ok := state.Snapshot(); ok {
				Render(ui, vm, cfg.Rows)
			}
		case <-gaveUp:
			if vm, ok := state.Snapshot(); ok {
				Render(ui, vm, cfg.Rows)
			}
			return fmt.Errorf("gave up reconnecting to %s", cfg.URL)
		case <-ctx.Done():
			return nil
		}
	}
}

// rowsForTerminal splits the terminal height between header lines and
// attendee rows. Falls back to 20 when the size is unknown.
func rowsForTerminal(fd int) int {
	_, h, err := term.GetSize(fd)
	if err != nil || h <= 12 {
		return 20
	}
	return h - 12
}
