// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Platforms     PlatformsConfig         `mapstructure:"platforms"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Gateway       GatewayConfig           `mapstructure:"gateway"`
	Sync          SyncConfig              `mapstructure:"sync"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

// CamundaConfig is optional: job workers are only started when Enabled is set.
type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig backs the review search index. Indexing is skipped
// when no address is configured.
type ElasticsearchConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	URL         string   `mapstructure:"url"`
	ReviewIndex string   `mapstructure:"review_index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every Zeebe job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Specific Configuration Sections ---

// PlatformsConfig holds settings for external review platforms.
type PlatformsConfig struct {
	Google struct {
		BaseURL  string `mapstructure:"base_url"`
		APIKey   string `mapstructure:"api_key"`
		Timeout  int    `mapstructure:"timeout"` // milliseconds
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"google"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		Model       string  `mapstructure:"model"`
		Timeout     int     `mapstructure:"timeout"` // milliseconds
		MaxTokens   int     `mapstructure:"max_tokens"`
		Temperature float64 `mapstructure:"temperature"`
	} `mapstructure:"genai"`
}

// NotificationConfig holds settings for the notification dispatcher and its channels.
type NotificationConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	BaseDelay      int `mapstructure:"base_delay"`      // milliseconds
	MaxDelay       int `mapstructure:"max_delay"`       // milliseconds
	AttemptTimeout int `mapstructure:"attempt_timeout"` // milliseconds
	Concurrency    int `mapstructure:"concurrency"`
	// StaleAfter is how long a pending job may go without a recorded attempt
	// before a redelivery resumes it.
	StaleAfter int `mapstructure:"stale_after"` // milliseconds

	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	Webhook struct {
		Enabled   bool   `mapstructure:"enabled"`
		UserAgent string `mapstructure:"user_agent"`
	} `mapstructure:"webhook"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// GatewayConfig holds the shared secrets for inbound webhooks.
type GatewayConfig struct {
	ZapierToken       string `mapstructure:"zapier_token"`
	ZapierHeader      string `mapstructure:"zapier_header"`
	QuickBooksToken   string `mapstructure:"quickbooks_token"`
	QuickBooksHeader  string `mapstructure:"quickbooks_header"`
	AllowBusinessAuth bool   `mapstructure:"allow_business_secret"`
}

// SyncConfig controls the scheduled and manual review sync.
type SyncConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	Interval               string `mapstructure:"interval"` // gocron duration, e.g. "15m"
	Concurrency            int    `mapstructure:"concurrency"`
	DefaultLimit           int    `mapstructure:"default_limit"`
	MaxLimit               int    `mapstructure:"max_limit"`
	MaxConsecutiveFailures int    `mapstructure:"max_consecutive_failures"`
	RunTimeout             int    `mapstructure:"run_timeout"` // milliseconds
	AutoDraft              bool   `mapstructure:"auto_draft"`
	RecoveryGrace          int    `mapstructure:"recovery_grace"` // milliseconds
	RecoveryBatch          int    `mapstructure:"recovery_batch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
