package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/feeds-realtime/internal/config"
)

// BuildConnString builds a PostgreSQL URL from config. The password is
// omitted when empty so libpq fallbacks (PGPASSWORD, .pgpass) still apply.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	return u.String()
}
