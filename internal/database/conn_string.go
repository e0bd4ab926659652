package database

import (
	"fmt"
	"net/url"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
)

// BuildConnString renders a DBConfig as a postgres:// URL. Credentials are
// URL-escaped; defaults have already been applied by the config loader.
func BuildConnString(cfg config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   cfg.Name,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
