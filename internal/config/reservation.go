package config

import "time"

// ReservationConfig carries the timing parameters of the reservation
// protocol: how long a locked seat stays reserved for a pending booking
// and how the expiry sweeper paces its reclaim cycles.
type ReservationConfig struct {
	HoldWindow    time.Duration // how long a LOCKED seat is held for a PENDING booking
	SweepInterval time.Duration // how often the expiry sweeper runs
	SweepLockTTL  time.Duration // TTL of the system-wide sweep leader lock
	SweepBatch    int           // max expired bookings reclaimed per sweep
}

// LoadReservationConfig reads the reservation tunables from environment
// variables, falling back to the protocol defaults: a 10 minute hold
// window swept every 2 minutes.
func LoadReservationConfig() ReservationConfig {
	cfg := ReservationConfig{
		HoldWindow:    envDur("HOLD_WINDOW", 10*time.Minute),
		SweepInterval: envDur("SWEEP_INTERVAL", 2*time.Minute),
		SweepLockTTL:  envDur("SWEEP_LOCK_TTL", time.Minute),
		SweepBatch:    envInt("SWEEP_BATCH", 100),
	}
	if cfg.HoldWindow <= 0 {
		cfg.HoldWindow = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 2 * time.Minute
	}
	// A sweep holding the leader lock longer than its TTL could overlap
	// with a sweep on another instance; keep the TTL at least half the
	// interval so a crashed holder frees the lock before the next tick.
	if cfg.SweepLockTTL <= 0 || cfg.SweepLockTTL > cfg.SweepInterval {
		cfg.SweepLockTTL = cfg.SweepInterval / 2
	}
	if cfg.SweepBatch < 1 {
		cfg.SweepBatch = 100
	}
	return cfg
}
