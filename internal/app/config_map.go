package app

import (
	"fmt"
	"strings"
	"time"

	"opsadmin/internal/config"
	"opsadmin/internal/observability/opshttp"
	"opsadmin/internal/storage"
	"opsadmin/internal/timer"
	logx "opsadmin/pkg/logx"
)

const defaultSQLitePath = "./opsadmin.db"

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		JSON:    l.JSON,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

// mapStorageConfig resolves the storage section. The timer cannot run without a
// database, so an omitted driver means sqlite at ./opsadmin.db.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	lifetime, err := config.ParseDurationField("storage.conn_max_lifetime", sc.ConnMaxLifetime)
	if err != nil {
		return storage.Config{}, err
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			path = defaultSQLitePath
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{
			Driver:          "sqlite",
			Path:            path,
			BusyTimeout:     busy,
			MaxOpenConns:    sc.MaxOpenConns,
			ConnMaxLifetime: lifetime,
		}, nil
	case "postgres", "postgresql", "pgx":
		return storage.Config{
			Driver:          "postgres",
			DSN:             strings.TrimSpace(sc.DSN),
			Host:            strings.TrimSpace(sc.Host),
			Port:            sc.Port,
			User:            sc.User,
			Password:        sc.Password,
			Name:            sc.Name,
			SSLMode:         sc.SSLMode,
			MaxOpenConns:    sc.MaxOpenConns,
			ConnMaxLifetime: lifetime,
		}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTimerConfig(cfg *config.Config) (timer.Config, time.Duration, error) {
	sc := cfg.Scheduler
	spread, err := config.ParseDurationField("scheduler.startup_spread", sc.StartupSpread)
	if err != nil {
		return timer.Config{}, 0, err
	}
	grace, err := config.ParseDurationField("scheduler.shutdown_grace", sc.ShutdownGrace)
	if err != nil {
		return timer.Config{}, 0, err
	}
	bookkeeping, err := config.ParseDurationField("scheduler.bookkeeping_timeout", sc.BookkeepingTimeout)
	if err != nil {
		return timer.Config{}, 0, err
	}
	return timer.Config{
		Timezone:      strings.TrimSpace(sc.Timezone),
		StartupSpread: spread,
		ShutdownGrace: grace,
		EventQueue:    sc.EventQueue,
		EventWorkers:  sc.EventWorkers,
	}, bookkeeping, nil
}

func mapRetention(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationField("tasks.log_retention", cfg.Tasks.LogRetention)
}

func mapOpsHTTPConfig(cfg *config.Config) (opshttp.Config, error) {
	oc := cfg.OpsHTTP
	read, err := config.ParseDurationOrDefault("ops_http.read_timeout", oc.ReadTimeout, 10*time.Second)
	if err != nil {
		return opshttp.Config{}, err
	}
	write, err := config.ParseDurationField("ops_http.write_timeout", oc.WriteTimeout)
	if err != nil {
		return opshttp.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops_http.idle_timeout", oc.IdleTimeout, 60*time.Second)
	if err != nil {
		return opshttp.Config{}, err
	}
	return opshttp.Config{
		Enabled:       oc.Enabled,
		Addr:          strings.TrimSpace(oc.Addr),
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
