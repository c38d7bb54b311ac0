package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string. Empty means 0; negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate checks values that cannot be expressed by the decoder alone.
// It is used at boot and as the hot-reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	st := cfg.Storage
	switch strings.ToLower(strings.TrimSpace(st.Driver)) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(st.DSN) == "" && strings.TrimSpace(st.Host) == "" {
			errs = append(errs, errors.New("storage: postgres needs dsn or host"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
	}
	if st.Port < 0 || st.Port > 65535 {
		errs = append(errs, fmt.Errorf("storage.port: out of range: %d", st.Port))
	}
	if st.MaxOpenConns < 0 {
		errs = append(errs, errors.New("storage.max_open_conns: must be >= 0"))
	}
	dur("storage.busy_timeout", st.BusyTimeout)
	dur("storage.conn_max_lifetime", st.ConnMaxLifetime)

	sc := cfg.Scheduler
	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if sc.EventQueue < 0 || sc.EventWorkers < 0 {
		errs = append(errs, errors.New("scheduler: event_queue and event_workers must be >= 0"))
	}
	dur("scheduler.startup_spread", sc.StartupSpread)
	dur("scheduler.shutdown_grace", sc.ShutdownGrace)
	dur("scheduler.bookkeeping_timeout", sc.BookkeepingTimeout)

	dur("tasks.log_retention", cfg.Tasks.LogRetention)

	oh := cfg.OpsHTTP
	dur("ops_http.read_timeout", oh.ReadTimeout)
	dur("ops_http.write_timeout", oh.WriteTimeout)
	dur("ops_http.idle_timeout", oh.IdleTimeout)

	return errors.Join(errs...)
}
