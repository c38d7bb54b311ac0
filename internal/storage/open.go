package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	logx "opsadmin/pkg/logx"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB is the shared connection pool plus the dialect queries must be written for.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Wrap adopts an already opened pool. The schema is not touched.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

func (d *DB) Dialect() Dialect { return d.dialect }

// Rebind rewrites '?' placeholders for the active dialect.
func (d *DB) Rebind(query string) string {
	if d == nil || d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Close closes the pool. Safe on nil.
func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// Open initializes the configured database and bootstraps the schema.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		db  *DB
		err error
	)
	switch driver {
	case "sqlite", "sqlite3":
		db, err = openSQLite(cfg)
	case "postgres", "postgresql", "pgx":
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.migrate(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	log.Info("storage opened", logx.String("driver", string(db.dialect)))
	return db, nil
}

func (d *DB) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema/" + string(d.dialect) + ".sql")
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(b), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func applyPool(db *sql.DB, cfg Config, defOpen int) {
	open := cfg.MaxOpenConns
	if open <= 0 {
		open = defOpen
	}
	db.SetMaxOpenConns(open)
	db.SetMaxIdleConns(min(open, 5))
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func pingTimeout(ctx context.Context, db *sql.DB, d time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return db.PingContext(pctx)
}
