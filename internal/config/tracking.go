package config

import "time"

// TrackingConfig controls how the tracked identifier set is synchronised.
type TrackingConfig struct {
	SyncInterval    time.Duration `mapstructure:"SYNC_INTERVAL"    json:"sync_interval"    validate:"reasonable_duration"`
	PruneUnresolved bool          `mapstructure:"PRUNE_UNRESOLVED" json:"prune_unresolved"`
	PruneRate       float64       `mapstructure:"PRUNE_RATE"       json:"prune_rate"       validate:"gt=0,max=100"`
	PruneBurst      int           `mapstructure:"PRUNE_BURST"      json:"prune_burst"      validate:"min=0,max=1000"`
}

// DispatchConfig sizes the report worker pool.
type DispatchConfig struct {
	Workers       int           `mapstructure:"WORKERS"        json:"workers"        validate:"required,min=1,max=256"`
	QueueSize     int           `mapstructure:"QUEUE_SIZE"     json:"queue_size"     validate:"required,min=1,max=1000000"`
	ShutdownGrace time.Duration `mapstructure:"SHUTDOWN_GRACE" json:"shutdown_grace" validate:"timeout_duration"`
}

// APIConfig controls the admin HTTP surface.
// RateLimit is per client IP in requests per second; zero disables throttling.
type APIConfig struct {
	Enabled bool   `mapstructure:"ENABLED" json:"enabled"`
	Addr    string `mapstructure:"ADDR"    json:"addr"    validate:"required,addr"`

	RateLimit    float64       `mapstructure:"RATE_LIMIT"    json:"rate_limit"    validate:"gte=0,max=10000"`
	RateBurst    int           `mapstructure:"RATE_BURST"    json:"rate_burst"    validate:"min=0,max=10000"`
	BanThreshold int           `mapstructure:"BAN_THRESHOLD" json:"ban_threshold" validate:"min=0,max=1000"`
	BanDuration  time.Duration `mapstructure:"BAN_DURATION"  json:"ban_duration"  validate:"omitempty,reasonable_duration"`
}
