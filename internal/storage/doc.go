// Package storage opens the scheduler's SQL database.
//
// It supports two drivers behind database/sql:
//   - sqlite (modernc.org/sqlite, pure Go; default for single-host installs)
//   - postgres (jackc/pgx/v5 stdlib)
//
// Open also bootstraps the schedule_* tables with CREATE TABLE IF NOT EXISTS.
package storage
