package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Dialect selects placeholder style and schema flavor.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (Path; ":memory:" for tests)
//   - "postgres": PostgreSQL via pgx (DSN, or Host/Port/User/Password/Name/SSLMode)
type Config struct {
	Driver string

	// sqlite
	Path        string
	BusyTimeout time.Duration // 0 means driver default

	// postgres
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}
