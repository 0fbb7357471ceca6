// Package sweeper runs the periodic job that releases seats held by
// PENDING bookings whose hold window has elapsed.  Expiry is also
// enforced lazily at confirmation time; the sweeper exists so abandoned
// holds return to the pool even when nobody ever touches the booking
// again.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/ikoruk/show-seat-booking/internal/config"
)

// Reaper is the slice of the reservation engine the sweeper drives.
type Reaper interface {
	ReapExpired(ctx context.Context) (int, error)
}

// Coordinator serializes sweeps across service instances.  Implemented
// by the Redis lock store; nil means single-instance operation and every
// tick sweeps unconditionally.
type Coordinator interface {
	TryAcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseSweepLock(ctx context.Context) error
}

// Sweeper ticks on a fixed interval and reaps expired holds.
type Sweeper struct {
	reaper Reaper
	coord  Coordinator
	cfg    config.ReservationConfig
}

func New(reaper Reaper, coord Coordinator, cfg config.ReservationConfig) *Sweeper {
	if reaper == nil {
		panic("nil reaper passed to sweeper.New")
	}
	return &Sweeper{reaper: reaper, coord: coord, cfg: cfg}
}

// Start blocks until ctx is cancelled, sweeping once per SweepInterval.
// Run it on its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("sweeper: started, interval %s", s.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs a single pass.  When a coordinator is configured only one
// instance holds the sweep lock per interval; the rest skip the tick.
func (s *Sweeper) sweep(ctx context.Context) {
	if s.coord != nil {
		ok, err := s.coord.TryAcquireSweepLock(ctx, s.cfg.SweepLockTTL)
		if err != nil {
			// Sweeping without the lock could overlap another instance;
			// expired holds are also reclaimed lazily, so skipping a
			// tick loses nothing.
			log.Printf("sweeper: acquire sweep lock: %v, skipping tick", err)
			return
		}
		if !ok {
			return // another instance owns this tick
		}
		defer func() {
			if err := s.coord.ReleaseSweepLock(ctx); err != nil {
				log.Printf("sweeper: release sweep lock: %v", err)
			}
		}()
	}

	n, err := s.reaper.ReapExpired(ctx)
	if err != nil {
		log.Printf("sweeper: reap pass failed: %v", err)
	}
	if n > 0 {
		log.Printf("sweeper: released %d expired booking(s)", n)
	}
}
