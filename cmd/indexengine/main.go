package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	appcfg "giftpulse/config"
	"giftpulse/internal/indexer"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := indexer.LoadConfig(appcfg.Load())
	log.Printf("[indexengine] baskets: %d, snapshot interval: %ds", len(cfg.Baskets), cfg.SnapshotIntervalS)

	svc, err := indexer.New(cfg)
	if err != nil {
		log.Fatalf("[indexengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[indexengine] fatal: %v", err)
	}
}
