// internal/workers/reviews/sync-reviews/config.go
package syncreviews

import "time"

type Config struct {
	DefaultPlatform string
	// AutoDraft enables drafting on admission for businesses that opted in.
	AutoDraft bool
	// RunTimeout bounds one Fetcher+Gate run including fan-out.
	RunTimeout time.Duration
	// FanOutConcurrency bounds concurrent per-review fan-out work.
	FanOutConcurrency int
	// RecoveryGrace is how old an admitted review must be before Recover
	// treats its missing fan-out as lost rather than in flight.
	RecoveryGrace time.Duration
	RecoveryBatch int
}

func LoadConfig() *Config {
	return &Config{
		DefaultPlatform:   "google",
		AutoDraft:         true,
		RunTimeout:        2 * time.Minute,
		FanOutConcurrency: 4,
		RecoveryGrace:     5 * time.Minute,
		RecoveryBatch:     100,
	}
}
