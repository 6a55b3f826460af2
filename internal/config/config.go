package config

import "time"

// Config is the root configuration for a feeds realtime client.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Auth     AuthConfig     `yaml:"auth"`
	User     UserConfig     `yaml:"user"`
	Socket   SocketConfig   `yaml:"socket"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Network  NetworkConfig  `yaml:"network"`
	Watch    WatchConfig    `yaml:"watch"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`
	Status   StatusConfig   `yaml:"status"`
}

// APIConfig holds backend endpoints and the application key.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// AuthConfig selects how user tokens are obtained. A static token wins over
// a secret; a secret (inline or from a file) signs development tokens.
type AuthConfig struct {
	Token      string        `yaml:"token"`
	Secret     string        `yaml:"secret"`
	SecretPath string        `yaml:"secret_path"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// UserConfig is the user sent in the auth frame.
type UserConfig struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Image     string         `yaml:"image"`
	Language  string         `yaml:"language"`
	Invisible *bool          `yaml:"invisible"`
	Custom    map[string]any `yaml:"custom"`
}

// SocketConfig holds handshake, heartbeat and batching settings.
type SocketConfig struct {
	Products          []string      `yaml:"products"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	ReadLimit         int64         `yaml:"read_limit"`
	HealthInterval    time.Duration `yaml:"health_interval"`
	LivenessThreshold time.Duration `yaml:"liveness_threshold"`
	BatchWindow       time.Duration `yaml:"batch_window"`
	BatchMaxSize      int           `yaml:"batch_max_size"`
}

// RecoveryConfig controls automatic reconnection.
type RecoveryConfig struct {
	KeepAliveInBackground bool          `yaml:"keep_alive_in_background"`
	AttemptTimeout        time.Duration `yaml:"attempt_timeout"`
}

// NetworkConfig holds the connectivity probe settings.
type NetworkConfig struct {
	ProbeAddress  string        `yaml:"probe_address"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// WatchConfig lists feeds to watch and bounds rehydration.
type WatchConfig struct {
	Feeds       []string      `yaml:"feeds"` // "group:id"
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// JournalConfig holds the optional event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StatusConfig holds the optional HTTP status endpoint.
type StatusConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}
