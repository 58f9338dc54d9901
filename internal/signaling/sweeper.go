package signaling

import (
	"context"
	"log/slog"
	"time"

	"github.com/codedrop/codedrop/internal/metrics"
	"github.com/codedrop/codedrop/internal/room"
)

// DefaultSweepInterval is how often the sweeper looks for expired rooms.
const DefaultSweepInterval = 60 * time.Second

// Evictor closes connections by id.
type Evictor interface {
	Evict(conns []room.ConnID)
}

// Sweeper deletes rooms that outlived the registry TTL and closes the
// connections still inside them.
type Sweeper struct {
	registry *room.Registry
	evictor  Evictor
	metrics  *metrics.Metrics
	interval time.Duration
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// NewSweeper creates a sweeper running every DefaultSweepInterval. Expiry is
// judged by the registry clock.
func NewSweeper(registry *room.Registry, evictor Evictor, m *metrics.Metrics, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		registry: registry,
		evictor:  evictor,
		metrics:  m,
		interval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(s.registry.Now())
		}
	}
}

// Sweep removes every room expired at now and returns how many it removed.
// The room is deleted before its connections are closed, so the disconnect
// path finds no room and notifies nobody.
func (s *Sweeper) Sweep(now time.Time) int {
	expired := s.registry.DeleteExpired(now)
	for code, occupants := range expired {
		s.metrics.IncRoomExpired()
		slog.Info("room expired", "code", code, "occupants", len(occupants))
		if s.evictor != nil {
			s.evictor.Evict(occupants)
		}
	}
	return len(expired)
}
