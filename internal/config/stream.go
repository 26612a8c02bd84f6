package config

import "time"

// StreamConfig holds the AIS stream endpoint and reconnect policy.
type StreamConfig struct {
	URL    string `mapstructure:"URL"     json:"url"     validate:"omitempty,wsurl"`
	APIKey string `mapstructure:"API_KEY" json:"-"`

	ConnectTimeout   time.Duration `mapstructure:"CONNECT_TIMEOUT"    json:"connect_timeout"    validate:"timeout_duration"`
	MaxRetryAttempts int           `mapstructure:"MAX_RETRY_ATTEMPTS" json:"max_retry_attempts" validate:"min=1,max=100"`
	RetryDelay       time.Duration `mapstructure:"RETRY_DELAY"        json:"retry_delay"        validate:"reasonable_duration"`
	RetryMultiplier  float64       `mapstructure:"RETRY_MULTIPLIER"   json:"retry_multiplier"   validate:"gte=1,max=10"`
	MaxRetryDelay    time.Duration `mapstructure:"MAX_RETRY_DELAY"    json:"max_retry_delay"    validate:"reasonable_duration"`

	WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT" json:"write_timeout" validate:"timeout_duration"`
	PingInterval time.Duration `mapstructure:"PING_INTERVAL" json:"ping_interval" validate:"reasonable_duration"`
	ReadLimit    int64         `mapstructure:"READ_LIMIT"    json:"read_limit"    validate:"min=1024,max=16777216"`
}

// Configured reports whether both the endpoint and the API key are set.
// Ingestion stays disabled otherwise.
func (s StreamConfig) Configured() bool {
	return s.URL != "" && s.APIKey != ""
}
