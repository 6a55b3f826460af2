package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/rickgao/feeds-realtime/internal/model"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.APIKey == "" {
		return errors.New("api.api_key is required")
	}
	if err := validateURL("api.ws_url", c.API.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("api.rest_url", c.API.RestURL, "http", "https"); err != nil {
		return err
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Auth.Token == "" && c.Auth.Secret == "" && c.Auth.SecretPath == "" {
		return errors.New("auth requires one of token, secret or secret_path")
	}
	if c.Auth.TokenTTL < 0 {
		return errors.New("auth.token_ttl must be >= 0")
	}

	if c.User.ID == "" {
		return errors.New("user.id is required")
	}

	if c.Socket.BatchMaxSize < 1 {
		return errors.New("socket.batch_max_size must be >= 1")
	}
	if c.Socket.HealthInterval >= c.Socket.LivenessThreshold {
		return fmt.Errorf("socket.health_interval (%s) must be less than socket.liveness_threshold (%s)",
			c.Socket.HealthInterval, c.Socket.LivenessThreshold)
	}

	if budget := c.Socket.DialTimeout + c.Socket.HandshakeTimeout; c.Recovery.AttemptTimeout < budget {
		return fmt.Errorf("recovery.attempt_timeout (%s) must cover socket.dial_timeout plus socket.handshake_timeout (%s)",
			c.Recovery.AttemptTimeout, budget)
	}

	for i, f := range c.Watch.Feeds {
		if _, err := model.ParseFeedID(f); err != nil {
			return fmt.Errorf("watch.feeds[%d]: %w", i, err)
		}
	}
	if c.Watch.Concurrency < 1 {
		return errors.New("watch.concurrency must be >= 1")
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %v, got %q", logLevels, c.Log.Level)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return fmt.Errorf("log.format must be one of %v, got %q", logFormats, c.Log.Format)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%s must be a %v url, got %q", field, schemes, raw)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
