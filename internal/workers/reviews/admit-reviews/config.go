// internal/workers/reviews/admit-reviews/config.go
package admitreviews

type Config struct {
	// MaxConsecutiveFailures is the number of transient sync failures in a
	// row after which an integration is flagged as error.
	MaxConsecutiveFailures int
}

func LoadConfig() *Config {
	return &Config{MaxConsecutiveFailures: 3}
}
