package config

import "time"

// QueueConfig controls how each role worker pool polls, claims, and
// processes rows. Every role (captain, manager, operator, executor,
// expert) gets its own QueueConfig instance so pool sizes and poll
// cadence can be tuned independently per role.
type QueueConfig struct {
	// WorkerCount is the number of goroutines per process polling this role's table.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the base interval between claim attempts when idle.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is random jitter added to PollInterval so that
	// horizontally scaled pods don't all poll in lockstep.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// ClaimTimeout bounds how long a single claimed row may be processed
	// before it is considered stuck.
	ClaimTimeout time.Duration `yaml:"claim_timeout"`

	// GracefulShutdownTimeout is the max time to wait for in-flight claims
	// to finish during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// HeartbeatInterval is how often a worker refreshes last_interaction_at
	// (or the equivalent liveness column) for rows it currently holds.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanDetectionInterval is how often to scan for rows claimed by a
	// pod_id that has gone quiet.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a claimed row can go without a heartbeat
	// before its pod_id is considered dead and the row is reclaimed.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns built-in defaults shared by every role unless
// overridden.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WorkerCount:             3,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      250 * time.Millisecond,
		ClaimTimeout:            10 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
		HeartbeatInterval:       15 * time.Second,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
	}
}

// ExpertQueueConfig returns the defaults for the Expert summarizer pool:
// two workers per process and a 30-minute ClaimTimeout. The Expert
// lifecycle manager takes no QueueConfig; it runs its own backoff loop.
func ExpertQueueConfig() QueueConfig {
	cfg := DefaultQueueConfig()
	cfg.ClaimTimeout = 30 * time.Minute
	cfg.WorkerCount = 2
	return cfg
}
