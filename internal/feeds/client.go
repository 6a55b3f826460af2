package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/feeds-realtime/internal/api"
	"github.com/rickgao/feeds-realtime/internal/auth"
	"github.com/rickgao/feeds-realtime/internal/batch"
	"github.com/rickgao/feeds-realtime/internal/config"
	"github.com/rickgao/feeds-realtime/internal/database"
	"github.com/rickgao/feeds-realtime/internal/events"
	"github.com/rickgao/feeds-realtime/internal/health"
	"github.com/rickgao/feeds-realtime/internal/journal"
	"github.com/rickgao/feeds-realtime/internal/lifecycle"
	"github.com/rickgao/feeds-realtime/internal/model"
	"github.com/rickgao/feeds-realtime/internal/network"
	"github.com/rickgao/feeds-realtime/internal/recovery"
	"github.com/rickgao/feeds-realtime/internal/socket"
	"github.com/rickgao/feeds-realtime/internal/state"
	"github.com/rickgao/feeds-realtime/internal/transport"
	"github.com/rickgao/feeds-realtime/internal/version"
	"github.com/rickgao/feeds-realtime/internal/watch"
)

// Client is a configured feeds realtime client.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger
	user   model.UserDetails

	API       *api.Client
	Socket    socket.Socket
	Recovery  *recovery.Handler
	Watch     *watch.Handler
	Network   *network.Prober
	Lifecycle *lifecycle.Tracker
	Journal   *journal.Journal // nil unless journal.enabled

	pool        *pgxpool.Pool
	unsubscribe []func()
}

// New builds a client. It connects to the journal database when the
// journal is enabled, but does not open the socket.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tokens, err := TokenProvider(cfg.Auth, cfg.User.ID)
	if err != nil {
		return nil, fmt.Errorf("token provider: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		user:   UserDetails(cfg.User),
		API:    api.NewClient(cfg.API.RestURL, cfg.API.APIKey, tokens,
			api.WithLogger(logger),
			api.WithTimeout(cfg.API.Timeout),
			api.WithRetries(cfg.API.MaxRetries, time.Second),
			api.WithUserAgent(version.ClientID()),
		),
		Socket: socket.New(SocketConfig(cfg), transport.NewWebSocket(logger), tokens, logger),
		Network: network.NewProber(network.Config{
			Address:  cfg.Network.ProbeAddress,
			Interval: cfg.Network.ProbeInterval,
			Timeout:  cfg.Network.ProbeTimeout,
		}, logger),
		Lifecycle: lifecycle.NewTracker(true, logger),
	}

	c.Recovery = recovery.NewHandler(recovery.Config{
		KeepAliveInBackground: cfg.Recovery.KeepAliveInBackground,
		AttemptTimeout:        cfg.Recovery.AttemptTimeout,
	}, c.Socket, c.Network, c.Lifecycle, nil, logger)

	c.Watch = watch.NewHandler(watch.Config{
		Concurrency: cfg.Watch.Concurrency,
		Timeout:     cfg.Watch.Timeout,
	}, c.API, logger)
	for _, raw := range cfg.Watch.Feeds {
		fid, err := model.ParseFeedID(raw)
		if err != nil {
			c.Socket.Close()
			return nil, fmt.Errorf("watch feed: %w", err)
		}
		c.Watch.OnStartWatching(fid)
	}

	if cfg.Journal.Enabled {
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			c.Socket.Close()
			return nil, fmt.Errorf("connect journal database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			c.Socket.Close()
			return nil, err
		}
		c.pool = pool
		c.Journal = journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
	}

	return c, nil
}

// Start begins observing signals and connects. Reconnection is active even
// when the first attempt fails, so the returned error is informational for
// long-running callers.
func (c *Client) Start(ctx context.Context) (state.State, error) {
	c.Network.Start(ctx)

	if c.Journal != nil {
		if err := c.Journal.Start(ctx); err != nil {
			return c.Socket.State(), fmt.Errorf("start journal: %w", err)
		}
		c.unsubscribe = append(c.unsubscribe, c.Socket.SubscribeEvents(func(ev events.Event) {
			c.Journal.Record(ev)
		}))
	}

	c.Watch.Start(ctx, c.Socket)
	c.Recovery.Start(ctx)

	c.logger.Info("connecting",
		"user_id", c.user.ID,
		"url", c.cfg.API.WSURL,
		"watched_feeds", len(c.Watch.Watched()),
	)
	return c.Socket.Connect(ctx, c.user)
}

// Stop disconnects and releases every component.
func (c *Client) Stop(ctx context.Context) error {
	c.Recovery.Stop()
	c.Watch.Stop()
	c.Socket.Close()
	c.Network.Stop()

	for _, u := range c.unsubscribe {
		u()
	}
	c.unsubscribe = nil

	var errs []error
	if c.Journal != nil {
		if err := c.Journal.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop journal: %w", err))
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
	return errors.Join(errs...)
}

// Ping checks the journal database when one is configured.
func (c *Client) Ping(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	return c.pool.Ping(ctx)
}

// User returns the user sent in the auth frame.
func (c *Client) User() model.UserDetails { return c.user }

// TokenProvider selects the token source for cfg. A static token wins;
// otherwise tokens are signed from the inline or file secret.
func TokenProvider(cfg config.AuthConfig, userID string) (auth.Provider, error) {
	if cfg.Token != "" {
		return auth.StaticToken(cfg.Token), nil
	}

	secret := []byte(cfg.Secret)
	if len(secret) == 0 && cfg.SecretPath != "" {
		var err error
		secret, err = auth.LoadSecret(cfg.SecretPath)
		if err != nil {
			return nil, err
		}
	}
	p, err := auth.NewDevTokenProvider(userID, secret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SocketConfig maps the file configuration onto socket.Config.
func SocketConfig(cfg *config.Config) socket.Config {
	sc := socket.DefaultConfig()
	sc.URL = cfg.API.WSURL
	sc.APIKey = cfg.API.APIKey
	sc.UserAgent = version.ClientID()
	if len(cfg.Socket.Products) > 0 {
		sc.Products = cfg.Socket.Products
	}
	if cfg.Socket.HandshakeTimeout > 0 {
		sc.HandshakeTimeout = cfg.Socket.HandshakeTimeout
	}
	if cfg.Socket.DialTimeout > 0 {
		sc.Transport.HandshakeTimeout = cfg.Socket.DialTimeout
	}
	if cfg.Socket.ReadLimit > 0 {
		sc.Transport.ReadLimit = cfg.Socket.ReadLimit
	}
	if cfg.Socket.HealthInterval > 0 && cfg.Socket.LivenessThreshold > 0 {
		sc.Health = health.Config{
			Interval:          cfg.Socket.HealthInterval,
			LivenessThreshold: cfg.Socket.LivenessThreshold,
		}
	}
	if cfg.Socket.BatchWindow > 0 && cfg.Socket.BatchMaxSize > 0 {
		sc.Batch = batch.Config{
			Window:  cfg.Socket.BatchWindow,
			MaxSize: cfg.Socket.BatchMaxSize,
		}
	}
	return sc
}

// UserDetails maps the configured user onto the auth frame payload.
func UserDetails(cfg config.UserConfig) model.UserDetails {
	return model.UserDetails{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Image:     cfg.Image,
		Language:  cfg.Language,
		Invisible: cfg.Invisible,
		Custom:    cfg.Custom,
	}
}
