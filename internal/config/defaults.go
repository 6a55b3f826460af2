package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "https://feeds.stream-io-api.com/api/v2"
	DefaultWSURL                = "wss://feeds.stream-io-api.com/api/v2/connect"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultProduct              = "feeds"
	DefaultHandshakeTimeout     = 15 * time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultReadLimit            = 1 << 20
	DefaultHealthInterval       = 25 * time.Second
	DefaultLivenessThreshold    = 60 * time.Second
	DefaultBatchWindow          = 100 * time.Millisecond
	DefaultBatchMaxSize         = 100
	DefaultAttemptTimeout       = 30 * time.Second
	DefaultProbeAddress         = "feeds.stream-io-api.com:443"
	DefaultProbeInterval        = 10 * time.Second
	DefaultProbeTimeout         = 3 * time.Second
	DefaultWatchConcurrency     = 8
	DefaultWatchTimeout         = 30 * time.Second
	DefaultJournalBatchSize     = 500
	DefaultJournalFlushInterval = time.Second
	DefaultJournalBufferSize    = 1024
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Socket defaults
	if len(c.Socket.Products) == 0 {
		c.Socket.Products = []string{DefaultProduct}
	}
	if c.Socket.HandshakeTimeout == 0 {
		c.Socket.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Socket.DialTimeout == 0 {
		c.Socket.DialTimeout = DefaultDialTimeout
	}
	if c.Socket.ReadLimit == 0 {
		c.Socket.ReadLimit = DefaultReadLimit
	}
	if c.Socket.HealthInterval == 0 {
		c.Socket.HealthInterval = DefaultHealthInterval
	}
	if c.Socket.LivenessThreshold == 0 {
		c.Socket.LivenessThreshold = DefaultLivenessThreshold
	}
	if c.Socket.BatchWindow == 0 {
		c.Socket.BatchWindow = DefaultBatchWindow
	}
	if c.Socket.BatchMaxSize == 0 {
		c.Socket.BatchMaxSize = DefaultBatchMaxSize
	}

	if c.Recovery.AttemptTimeout == 0 {
		c.Recovery.AttemptTimeout = DefaultAttemptTimeout
	}

	// Network defaults
	if c.Network.ProbeAddress == "" {
		c.Network.ProbeAddress = DefaultProbeAddress
	}
	if c.Network.ProbeInterval == 0 {
		c.Network.ProbeInterval = DefaultProbeInterval
	}
	if c.Network.ProbeTimeout == 0 {
		c.Network.ProbeTimeout = DefaultProbeTimeout
	}

	// Watch defaults
	if c.Watch.Concurrency == 0 {
		c.Watch.Concurrency = DefaultWatchConcurrency
	}
	if c.Watch.Timeout == 0 {
		c.Watch.Timeout = DefaultWatchTimeout
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBufferSize
	}
	applyDBDefaults(&c.Journal.Database)

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
