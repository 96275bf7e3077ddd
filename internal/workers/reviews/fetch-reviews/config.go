// internal/workers/reviews/fetch-reviews/config.go
package fetchreviews

type Config struct {
	DefaultLimit int
	MaxLimit     int
	MaxPages     int // guards against platforms that never stop paginating
}

func LoadConfig() *Config {
	return &Config{
		DefaultLimit: 50,
		MaxLimit:     500,
		MaxPages:     20,
	}
}
