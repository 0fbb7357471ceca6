package config

import "time"

// AdmissionConfig controls the demand-based admission gate in front of
// the reservation path and the deferred-admission worker that promotes
// queued clients.  Counters and tokens live in Redis so every service
// instance observes the same demand picture.
type AdmissionConfig struct {
	Enabled bool // disable to let all traffic straight through

	ShowThreshold   int           // per-show requests tolerated per ShowWindow
	ShowWindow      time.Duration // sliding window of the per-show counter
	GlobalThreshold int           // system-wide requests tolerated per GlobalWindow
	GlobalWindow    time.Duration // sliding window of the system-wide counter

	MarkerTTL time.Duration // lifetime of a client's queued marker
	AdmitTTL  time.Duration // lifetime of an admitted token once granted

	WorkerConcurrency int           // max deferred jobs processed at once
	WorkerDelayMin    time.Duration // lower bound of the simulated processing delay
	WorkerDelayMax    time.Duration // upper bound of the simulated processing delay
	MaxAttempts       int           // job retries before the client re-queues naturally

	Prefix string // key namespace in the lock store
	Debug  bool   // verbose middleware logging
}

// LoadAdmissionConfig reads admission tunables from environment
// variables.  Defaults implement the documented policy: 50 requests per
// show per 5 minutes and 200 requests system-wide per 2 minutes.
func LoadAdmissionConfig() AdmissionConfig {
	cfg := AdmissionConfig{
		Enabled:           envBool("ADMISSION_ENABLED", true),
		ShowThreshold:     envInt("ADMISSION_SHOW_THRESHOLD", 50),
		ShowWindow:        envDur("ADMISSION_SHOW_WINDOW", 5*time.Minute),
		GlobalThreshold:   envInt("ADMISSION_GLOBAL_THRESHOLD", 200),
		GlobalWindow:      envDur("ADMISSION_GLOBAL_WINDOW", 2*time.Minute),
		MarkerTTL:         envDur("ADMISSION_MARKER_TTL", 2*time.Minute),
		AdmitTTL:          envDur("ADMISSION_ADMIT_TTL", time.Minute),
		WorkerConcurrency: envInt("ADMISSION_WORKER_CONCURRENCY", 10),
		WorkerDelayMin:    envDur("ADMISSION_WORKER_DELAY_MIN", 500*time.Millisecond),
		WorkerDelayMax:    envDur("ADMISSION_WORKER_DELAY_MAX", 3*time.Second),
		MaxAttempts:       envInt("ADMISSION_MAX_ATTEMPTS", 3),
		Prefix:            envStr("ADMISSION_PREFIX", "adm"),
		Debug:             envBool("ADMISSION_DEBUG", false),
	}
	if cfg.ShowThreshold < 1 {
		cfg.ShowThreshold = 1
	}
	if cfg.GlobalThreshold < 1 {
		cfg.GlobalThreshold = 1
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.WorkerDelayMax < cfg.WorkerDelayMin {
		cfg.WorkerDelayMax = cfg.WorkerDelayMin
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return cfg
}
