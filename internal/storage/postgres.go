package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyPool(db, cfg, 10)
	if cfg.ConnMaxLifetime <= 0 {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if pingErr := pingTimeout(ctx, db, 5*time.Second); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}
	return &DB{DB: db, dialect: DialectPostgres}, nil
}

// postgresDSN returns cfg.DSN verbatim or builds a URL DSN from the discrete fields.
// url.URL keeps special characters in credentials intact.
func postgresDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return "", errors.New("postgres host or dsn is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 5432
	}
	ssl := strings.TrimSpace(cfg.SSLMode)
	if ssl == "" {
		ssl = "disable"
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", ssl)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
