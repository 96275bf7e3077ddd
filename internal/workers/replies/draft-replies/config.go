// internal/workers/replies/draft-replies/config.go
package draftreplies

import "time"

type Config struct {
	GenAIBaseURL string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxTokens    int
	Temperature  float64
}

func LoadConfig() *Config {
	return &Config{
		GenAIBaseURL: "https://api.openai.com",
		Model:        "gpt-4o-mini",
		Timeout:      12 * time.Second,
		MaxTokens:    400,
		Temperature:  0.7,
	}
}
