package rooms

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultReaperInterval = time.Minute
	DefaultIdleTimeout    = 5 * time.Minute
)

// Reaper periodically evicts rooms that stayed empty past the idle timeout.
// It catches rooms whose last session never ran its own cleanup.
type Reaper struct {
	registry *Registry
	interval time.Duration
	idle     time.Duration
	log      *slog.Logger
}

func NewReaper(registry *Registry, interval, idle time.Duration, log *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{registry: registry, interval: interval, idle: idle, log: log}
}

// Run sweeps on every tick until ctx is cancelled
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	for _, key := range r.registry.Sweep(r.idle) {
		r.log.Info("room.cleanup", "room_id", key.RoomID, "app_id", key.Scope, "reason", RemovedStale)
	}
}
