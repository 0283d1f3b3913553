package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossy-p/signal-relay/config"
	"github.com/mossy-p/signal-relay/internal/handlers"
	"github.com/mossy-p/signal-relay/internal/logging"
	"github.com/mossy-p/signal-relay/internal/metrics"
	"github.com/mossy-p/signal-relay/internal/middleware"
	"github.com/mossy-p/signal-relay/internal/redis"
	"github.com/mossy-p/signal-relay/internal/rooms"
	"github.com/mossy-p/signal-relay/internal/session"
)

const shutdownTimeout = 10 * time.Second

var (
	flagPort string
	flagEnv  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPort, "port", "", "listen port (overrides PORT)")
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", "", "environment name (overrides ENVIRONMENT)")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the environment and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagPort != "" {
		cfg.Port = flagPort
	}
	if flagEnv != "" {
		cfg.Environment = flagEnv
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Environment, cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	observers := rooms.Observers{m}

	// Redis is an optional presence mirror; the relay works without it
	if cfg.Redis.Enabled {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		directory := redis.NewDirectory(client, logger, redis.DefaultTTL)
		go directory.Run(ctx)
		observers = append(observers, directory)
		logger.Info("redis.connected", "addr", cfg.Redis.Addr())
	}

	registry := rooms.New(rooms.Options{
		MaxRooms:        cfg.Limits.MaxGlobalRooms,
		MaxPeersPerRoom: cfg.Limits.MaxPeersPerRoom,
		Observer:        observers,
	})
	sessions := session.NewManager(registry, nil, session.Config{
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatTimeout:  cfg.Heartbeat.Timeout,
		LeaveSettle:       session.DefaultLeaveSettle,
	}, logger, m)

	reaper := rooms.NewReaper(registry, cfg.Limits.ReaperInterval, cfg.Limits.RoomIdleTimeout, logger)
	go reaper.Run(ctx)

	limiters := handlers.Limiters{
		Create: middleware.NewRateLimiter(cfg.RateLimit.Every, cfg.RateLimit.Burst, m.RateLimited),
		Join:   middleware.NewRateLimiter(cfg.RateLimit.JoinEvery, cfg.RateLimit.JoinBurst, m.RateLimited),
	}
	go limiters.Create.Cleanup(ctx, middleware.DefaultCleanupInterval)
	go limiters.Join.Cleanup(ctx, middleware.DefaultCleanupInterval)

	h := handlers.New(cfg, registry, sessions, m, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(h, limiters, logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.started",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"max_rooms", registry.MaxRooms(),
			"max_peers_per_room", registry.MaxPeersPerRoom(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("server.shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server.shutdown_failed", "err", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	activeRooms, peers := registry.Stats()
	logger.Info("server.stopped", "rooms", activeRooms, "peers", peers)
	return nil
}
