package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"community-realtime/internal/config"
)

func main() {
	env, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cfg := Config{}
	var events string

	flag.StringVar(&env.URL, "url", env.URL, "realtime ws url")
	flag.StringVar(&events, "events", "", "comma separated event ids to watch. empty watches all events")
	flag.IntVar(&cfg.Rows, "rows", 0, "attendees shown per event (0 = fit terminal)")
	flag.DurationVar(&cfg.Interval, "interval", 1*time.Second, "ui refresh interval")
	flag.IntVar(&env.MaxAttempts, "max-attempts", env.MaxAttempts, "reconnect attempts before giving up (negative disables reconnect)")
	flag.DurationVar(&env.StableAfter, "stable-after", env.StableAfter, "connection uptime that resets the reconnect attempts (0 = reset on every connect)")
	flag.Parse()

	if err := env.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.URL = env.URL
	for _, ev := range strings.Split(events, ",") {
		if ev = strings.TrimSpace(ev); ev != "" {
			cfg.Events = append(cfg.Events, ev)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// shutdown signals
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if err := Run(ctx, cfg, env.ChannelOptions()); err != nil && ctx.Err() == nil {
		log.Fatalf("subscriber error: %v", err)
	}
}
