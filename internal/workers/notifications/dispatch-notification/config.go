// internal/workers/notifications/dispatch-notification/config.go
package dispatchnotification

import "time"

type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	Concurrency    int
	Timeout        time.Duration // whole Zeebe job
	// StaleAfter is how long a pending job may sit without a recorded attempt
	// before a redelivery of its event takes it over. Zero disables resuming.
	StaleAfter time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       8 * time.Second,
		AttemptTimeout: 10 * time.Second,
		Concurrency:    8,
		Timeout:        60 * time.Second,
		StaleAfter:     2 * time.Minute,
	}
}

// backoff returns the wait before retry n (n >= 1): BaseDelay * 2^(n-1),
// capped at MaxDelay.
func (c *Config) backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := c.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}
