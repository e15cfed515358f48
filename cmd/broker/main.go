package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"community-realtime/internal/broker"
	"community-realtime/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "http listen address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := broker.NewBroker(nil)
	mux := http.NewServeMux()
	routes := b.Routes(mux)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[broker] listening on %s routes=%v", cfg.Listen, routes)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[broker] listen failed: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// websocket clients are hijacked, so Shutdown does not wait for them
	n := b.CloseClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[broker] shutdown: %v", err)
	}
	log.Printf("[broker] stopped, closed %d clients", n)
}
