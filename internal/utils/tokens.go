package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// apiTokens caches token -> requests per rate limit interval. A nil map means
// the cache was never loaded.
var apiTokens struct {
	sync.RWMutex
	limits map[string]int
}

var tokenDB struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that tokens have not been loaded yet.
	ErrTokenStoreNotReady = errors.New("token store not ready")
	// ErrTokenStoreDisabled is returned when no Postgres host is configured.
	ErrTokenStoreDisabled = errors.New("token store disabled")
)

const tokensSchema = `CREATE TABLE IF NOT EXISTS api_tokens (
	token TEXT PRIMARY KEY,
	rate_limit INTEGER NOT NULL DEFAULT 60,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	comment TEXT
);`

func postgresDSN(cfg PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	switch {
	case cfg.Host == "":
		return "", ErrTokenStoreDisabled
	case cfg.Database == "":
		return "", fmt.Errorf("postgres database is empty")
	case cfg.User == "":
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	hostPort := cfg.Host
	switch {
	case strings.HasPrefix(hostPort, "["):
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	case strings.Count(hostPort, ":") >= 2:
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	case !strings.Contains(hostPort, ":"):
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", cfg.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func openTokenDB(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	tokenDB.Lock()
	defer tokenDB.Unlock()

	if tokenDB.db != nil && tokenDB.dsn == dsn {
		return tokenDB.db, nil
	}
	if tokenDB.db != nil {
		_ = tokenDB.db.Close()
		tokenDB.db, tokenDB.dsn = nil, ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	tokenDB.db, tokenDB.dsn = db, dsn
	return db, nil
}

// LoadTokensFromPostgres replaces the in-memory token cache with the
// contents of the api_tokens table, creating the table when missing.
func LoadTokensFromPostgres(ctx context.Context, cfg PostgresConfig) error {
	db, err := openTokenDB(ctx, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, tokensSchema); err != nil {
		return fmt.Errorf("ensure api_tokens schema: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT token, rate_limit FROM api_tokens`)
	if err != nil {
		return err
	}
	defer rows.Close()

	limits := make(map[string]int)
	for rows.Next() {
		var token string
		var limit int
		if err := rows.Scan(&token, &limit); err != nil {
			return err
		}
		limits[token] = limit
	}
	if err := rows.Err(); err != nil {
		return err
	}

	LoadTokensFromMap(limits)
	return nil
}

// LoadTokensFromMap replaces the token cache with a copy of m.
func LoadTokensFromMap(m map[string]int) {
	limits := make(map[string]int, len(m))
	for k, v := range m {
		limits[k] = v
	}
	apiTokens.Lock()
	apiTokens.limits = limits
	apiTokens.Unlock()
}

// TokensReady reports whether the token cache has been loaded at least once.
func TokensReady() bool {
	apiTokens.RLock()
	defer apiTokens.RUnlock()
	return apiTokens.limits != nil
}

// ValidateToken reports whether token is known.
func ValidateToken(token string) bool {
	apiTokens.RLock()
	defer apiTokens.RUnlock()
	_, ok := apiTokens.limits[token]
	return ok
}

// GetRateLimit returns the per-interval limit of token; 0 disables limiting.
func GetRateLimit(token string) int {
	apiTokens.RLock()
	defer apiTokens.RUnlock()
	return apiTokens.limits[token]
}

// RefreshTokensPeriodically reloads tokens every interval until ctx is done.
func RefreshTokensPeriodically(ctx context.Context, cfg PostgresConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := LoadTokensFromPostgres(ctx, cfg); err != nil {
				Error("Failed to reload API tokens", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
