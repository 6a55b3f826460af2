package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  api_key: key123
  ws_url: wss://edge.example.com/api/v2/connect
auth:
  token: tok
user:
  id: alice
  name: Alice
  custom:
    team: blue
watch:
  feeds: ["user:alice", "timeline:alice"]
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.APIKey != "key123" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "key123")
	}
	if cfg.API.WSURL != "wss://edge.example.com/api/v2/connect" {
		t.Errorf("API.WSURL = %q", cfg.API.WSURL)
	}
	if cfg.User.ID != "alice" || cfg.User.Name != "Alice" {
		t.Errorf("User = %+v", cfg.User)
	}
	if cfg.User.Custom["team"] != "blue" {
		t.Errorf("User.Custom[team] = %v, want blue", cfg.User.Custom["team"])
	}
	if len(cfg.Watch.Feeds) != 2 || cfg.Watch.Feeds[1] != "timeline:alice" {
		t.Errorf("Watch.Feeds = %v", cfg.Watch.Feeds)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_FEEDS_API_KEY", "secret-key")
	t.Setenv("TEST_FEEDS_TOKEN", "secret-token")

	yaml := `
api:
  api_key: ${TEST_FEEDS_API_KEY}
auth:
  token: ${TEST_FEEDS_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.APIKey != "secret-key" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "secret-key")
	}
	if cfg.Auth.Token != "secret-token" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "secret-token")
	}
}

func TestEnvFallbackAndBareDollar(t *testing.T) {
	t.Setenv("TEST_FEEDS_EMPTY", "")

	cfg, err := Parse([]byte(`
api:
  api_key: ${TEST_FEEDS_UNSET:-fallback-key}
  rest_url: ${TEST_FEEDS_EMPTY:-https://rest.example.com}
auth:
  token: pa$word
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.API.APIKey != "fallback-key" {
		t.Errorf("API.APIKey = %q, want fallback-key", cfg.API.APIKey)
	}
	if cfg.API.RestURL != "https://rest.example.com" {
		t.Errorf("API.RestURL = %q, want fallback for empty variable", cfg.API.RestURL)
	}
	if cfg.Auth.Token != "pa$word" {
		t.Errorf("Auth.Token = %q, want bare dollar kept", cfg.Auth.Token)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("api:\n  api_kee: key123\n"))
	if err == nil || !strings.Contains(err.Error(), "api_kee") {
		t.Errorf("Parse() error = %v, want unknown field error", err)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse([]byte("# nothing here\n")); !errors.Is(err, ErrEmpty) {
		t.Errorf("Parse() error = %v, want ErrEmpty", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read config file error", err)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("api: [unterminated"))
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Parse() error = %v, want parse config yaml error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
api:
  api_key: key123
journal:
  enabled: true
  database:
    host: localhost
    name: feeds
    user: feeds
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.WSURL != DefaultWSURL {
		t.Errorf("API.WSURL = %q, want default %q", cfg.API.WSURL, DefaultWSURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if len(cfg.Socket.Products) != 1 || cfg.Socket.Products[0] != DefaultProduct {
		t.Errorf("Socket.Products = %v, want [%s]", cfg.Socket.Products, DefaultProduct)
	}
	if cfg.Socket.HealthInterval != DefaultHealthInterval {
		t.Errorf("Socket.HealthInterval = %v, want default %v", cfg.Socket.HealthInterval, DefaultHealthInterval)
	}
	if cfg.Socket.LivenessThreshold != DefaultLivenessThreshold {
		t.Errorf("Socket.LivenessThreshold = %v, want default %v", cfg.Socket.LivenessThreshold, DefaultLivenessThreshold)
	}
	if cfg.Journal.Database.Port != DefaultDBPort {
		t.Errorf("Journal.Database.Port = %d, want default %d", cfg.Journal.Database.Port, DefaultDBPort)
	}
	if cfg.Journal.Database.MaxConns != DefaultMaxConns {
		t.Errorf("Journal.Database.MaxConns = %d, want default %d", cfg.Journal.Database.MaxConns, DefaultMaxConns)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v, want defaults", cfg.Log)
	}
}

func TestLoadAndValidate(t *testing.T) {
	yaml := `
api:
  api_key: key123
auth:
  secret: s3cr3t
  token_ttl: 1h
user:
  id: alice
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 1h", cfg.Auth.TokenTTL)
	}

	bad := writeTempFile(t, "api:\n  api_key: key123\n")
	if _, err := LoadAndValidate(bad); err == nil || !strings.HasPrefix(err.Error(), "validate config: ") {
		t.Errorf("LoadAndValidate() error = %v, want validate config error", err)
	}
}

func validConfig() Config {
	cfg := Config{
		API:  APIConfig{APIKey: "key"},
		Auth: AuthConfig{Token: "tok"},
		User: UserConfig{ID: "alice"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.API.APIKey = "" },
			wantErr: "api.api_key is required",
		},
		{
			name:    "ws url with http scheme",
			mutate:  func(c *Config) { c.API.WSURL = "https://edge.example.com" },
			wantErr: `api.ws_url must be a [ws wss] url, got "https://edge.example.com"`,
		},
		{
			name:    "no credentials",
			mutate:  func(c *Config) { c.Auth = AuthConfig{} },
			wantErr: "auth requires one of token, secret or secret_path",
		},
		{
			name:    "missing user id",
			mutate:  func(c *Config) { c.User.ID = "" },
			wantErr: "user.id is required",
		},
		{
			name: "health interval not below liveness threshold",
			mutate: func(c *Config) {
				c.Socket.HealthInterval = time.Minute
				c.Socket.LivenessThreshold = time.Minute
			},
			wantErr: "socket.health_interval (1m0s) must be less than socket.liveness_threshold (1m0s)",
		},
		{
			name:    "attempt timeout shorter than dial plus handshake",
			mutate:  func(c *Config) { c.Recovery.AttemptTimeout = 5 * time.Second },
			wantErr: "recovery.attempt_timeout (5s) must cover socket.dial_timeout plus socket.handshake_timeout (25s)",
		},
		{
			name:    "malformed watched feed",
			mutate:  func(c *Config) { c.Watch.Feeds = []string{"user:alice", "nope"} },
			wantErr: `watch.feeds[1]: invalid feed id: "nope"`,
		},
		{
			name:    "journal without database host",
			mutate:  func(c *Config) { c.Journal.Enabled = true },
			wantErr: "journal.database.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 5, MinConns: 10}
			},
			wantErr: "journal.database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: `log.level must be one of [debug info warn error], got "trace"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
