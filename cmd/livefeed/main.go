package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ordersfe/livefeed/internal/api"
	"github.com/ordersfe/livefeed/internal/auth"
	"github.com/ordersfe/livefeed/internal/config"
	"github.com/ordersfe/livefeed/internal/hub"
	"github.com/ordersfe/livefeed/internal/model"
	"github.com/ordersfe/livefeed/internal/orders"
	"github.com/ordersfe/livefeed/internal/refresh"
	"github.com/ordersfe/livefeed/internal/stream"
	"github.com/ordersfe/livefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/livefeed.local.yaml", "path to config file")
	tokenFlag := flag.String("token", "", "bearer token (overrides auth.token from config)")
	username := flag.String("username", "", "log in with this username instead of a stored token")
	password := flag.String("password", "", "password for --username")
	statusAddr := flag.String("status-addr", "", "listen address for the status endpoint (e.g. :8080)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting livefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"api_url", cfg.API.BaseURL,
		"refresh_interval", cfg.Refresh.Interval,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals; SIGHUP forces a full reload of the collection.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Credentials: flag wins over config, --username triggers a login.
	token := cfg.Auth.Token
	if *tokenFlag != "" {
		token = *tokenFlag
	}
	tokens := auth.NewTokenStore(token)

	apiClient := api.NewClient(
		cfg.API.BaseURL,
		tokens,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	if *username != "" {
		logger.Info("logging in", "username", *username)
		tok, err := apiClient.Login(ctx, *username, *password)
		if err != nil {
			logger.Error("login failed", "error", err)
			os.Exit(1)
		}
		tokens.SetToken(tok)
	}

	identity, err := tokens.Identity()
	if err != nil {
		logger.Error("no usable credentials",
			"token_set", tokens.Token() != "",
			"error", err,
		)
		logger.Info("provide auth.token in the config, --token, or --username/--password")
		os.Exit(1)
	}
	logger.Info("authenticated", "subject", identity.Subject)

	// Open the live event stream
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

	feed := orders.NewFeed(sub.Events(), logger)
	refresher := refresh.New(refresh.Config{
		Interval: cfg.Refresh.Interval,
		Timeout:  cfg.Refresh.Timeout,
	}, apiClient, feed, identity.Subject, logger)
	broadcast := hub.New(logger)

	// SIGHUP triggers an on-demand reload
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			logger.Info("received SIGHUP, reloading orders")
			refresher.Trigger()
		}
	}()

	// Status endpoint
	if *statusAddr != "" {
		statusServer := &http.Server{
			Addr:    *statusAddr,
			Handler: createStatusHandler(sub, feed, broadcast),
		}
		go func() {
			logger.Info("starting status server", "addr", *statusAddr)
			if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("status server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			statusServer.Shutdown(shutdownCtx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Run(gctx) })
	g.Go(func() error { return refresher.Run(gctx) })
	g.Go(func() error { return broadcast.Run(gctx, feed.Snapshots()) })

	// Surface the terminal stream error, if any. Transient failures are
	// retried inside the subscription and never reach this channel.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err, ok := <-sub.Err():
			if !ok {
				return nil
			}
			return err
		}
	})

	// Console renderer: one line per snapshot.
	g.Go(func() error {
		id, snaps := broadcast.Subscribe()
		defer broadcast.Unsubscribe(id)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				printSnapshot(snap)
			}
		}
	})

	logger.Info("livefeed running - press Ctrl+C to stop")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("livefeed stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("livefeed stopped")
}

func printSnapshot(snap []model.Order) {
	fmt.Printf("[ORDERS] count=%d\n", len(snap))
	for _, o := range snap {
		fmt.Printf("  id=%s product=%s qty=%d total=%s status=%s\n",
			o.OrderID, o.ProductID, o.Quantity, o.TotalAmount, o.Status)
	}
}

// createStatusHandler exposes the stream and collection state for monitoring.
func createStatusHandler(sub *stream.Subscription, feed *orders.Feed, broadcast *hub.Hub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		current := feed.Orders()
		status := struct {
			State       string `json:"state"`
			Retries     int    `json:"retries"`
			Orders      int    `json:"orders"`
			Subscribers int    `json:"subscribers"`
		}{
			State:       sub.State().String(),
			Retries:     sub.Retries(),
			Orders:      len(current),
			Subscribers: broadcast.Subscribers(),
		}

		w.Header().Set("Content-Type", "application/json")
		if sub.State() == stream.StateFatallyClosed {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/debug/orders", func(w http.ResponseWriter, r *http.Request) {
		current := feed.Orders()

		// Limit to first 100 for debugging
		limit := 100
		shown := current
		if len(shown) > limit {
			shown = shown[:limit]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":   len(current),
			"showing": len(shown),
			"orders":  shown,
		})
	})

	return mux
}
