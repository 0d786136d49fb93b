// streamtap connects to the order event stream and prints parsed events to
// the console. Usage: go run ./cmd/streamtap --config configs/livefeed.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordersfe/livefeed/internal/auth"
	"github.com/ordersfe/livefeed/internal/config"
	"github.com/ordersfe/livefeed/internal/stream"
	"github.com/ordersfe/livefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/livefeed.example.yaml", "path to config file")
	tokenFlag := flag.String("token", "", "bearer token (overrides auth.token from config)")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	logger.Info("starting streamtap", "version", version.String())

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	token := cfg.Auth.Token
	if *tokenFlag != "" {
		token = *tokenFlag
	}
	tokens := auth.NewTokenStore(token)

	identity, err := tokens.Identity()
	if err != nil {
		logger.Error("bearer token required",
			"token_set", tokens.Token() != "",
		)
		logger.Info("set auth.token in the config or pass --token")
		os.Exit(1)
	}
	logger.Info("using credentials", "subject", identity.Subject)

	sub, err := stream.Subscribe(ctx, tokens, stream.Config{
		BaseURL:     cfg.API.BaseURL,
		BackoffBase: cfg.Stream.BackoffBase,
		BackoffMax:  cfg.Stream.BackoffMax,
		EventBuffer: cfg.Stream.EventBuffer,
	}, logger)
	if err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	defer sub.Cancel()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"state", sub.State(),
					"retries", sub.Retries(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete")
			return
		case err := <-sub.Err():
			logger.Error("stream closed", "error", err)
			os.Exit(1)
		case evt, ok := <-sub.Events():
			if !ok {
				logger.Info("event channel closed")
				return
			}
			if *verbose {
				data, _ := json.MarshalIndent(evt, "", "  ")
				fmt.Printf("[EVENT] %s\n", data)
			} else {
				fmt.Printf("[EVENT] order=%s item=%s qty=%d price=%.2f status=%s ts=%s\n",
					evt.OrderID, evt.Item, evt.Quantity, evt.Price, evt.Status, evt.Timestamp)
			}
		}
	}
}
