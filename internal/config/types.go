package config

// Config is the process configuration. It is read from a JSON or YAML file and then
// overlaid with OPSADMIN_* environment variables (see ApplyEnv).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"             envPrefix:"LOG_"`
	Storage   StorageConfig   `json:"storage"             envPrefix:"STORAGE_"`
	Scheduler SchedulerConfig `json:"scheduler"           envPrefix:"SCHEDULER_"`
	Tasks     TasksConfig     `json:"tasks,omitempty"     envPrefix:"TASKS_"`
	OpsHTTP   OpsHTTPConfig   `json:"ops_http,omitempty"  envPrefix:"OPS_HTTP_"`
}

type LoggingConfig struct {
	Level   string      `json:"level"          env:"LEVEL"`
	Console bool        `json:"console"        env:"CONSOLE"`
	JSON    bool        `json:"json,omitempty" env:"JSON"`
	File    LoggingFile `json:"file"           envPrefix:"FILE_"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Path    string `json:"path"    env:"PATH"`
}

// StorageConfig selects the database.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./opsadmin.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver string `json:"driver" env:"DRIVER"`

	// sqlite
	Path        string `json:"path,omitempty"         env:"PATH"`
	BusyTimeout string `json:"busy_timeout,omitempty" env:"BUSY_TIMEOUT"`

	// postgres; DSN wins over the discrete fields
	DSN      string `json:"dsn,omitempty"      env:"DSN"`
	Host     string `json:"host,omitempty"     env:"HOST"`
	Port     int    `json:"port,omitempty"     env:"PORT"`
	User     string `json:"user,omitempty"     env:"USER"`
	Password string `json:"password,omitempty" env:"PASSWORD"` // do not log
	Name     string `json:"name,omitempty"     env:"NAME"`
	SSLMode  string `json:"ssl_mode,omitempty" env:"SSL_MODE"`

	MaxOpenConns    int    `json:"max_open_conns,omitempty"    env:"MAX_OPEN_CONNS"`
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty" env:"CONN_MAX_LIFETIME"`
}

// SchedulerConfig controls the timer.
//
// Enabled is a pointer so an omitted key means enabled.
type SchedulerConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"  env:"ENABLED"`
	Timezone string `json:"timezone,omitempty" env:"TIMEZONE"`

	// StartupSpread delays the first trigger of interval jobs by a stable per-job
	// offset in [0, min(interval, spread)). "0s" disables it.
	StartupSpread string `json:"startup_spread,omitempty" env:"STARTUP_SPREAD"`
	// ShutdownGrace bounds how long Shutdown waits for running bodies. "0s" means no wait.
	ShutdownGrace string `json:"shutdown_grace,omitempty" env:"SHUTDOWN_GRACE"`

	EventQueue         int    `json:"event_queue,omitempty"         env:"EVENT_QUEUE"`
	EventWorkers       int    `json:"event_workers,omitempty"       env:"EVENT_WORKERS"`
	BookkeepingTimeout string `json:"bookkeeping_timeout,omitempty" env:"BOOKKEEPING_TIMEOUT"`
}

// IsEnabled reports the effective enabled flag.
func (s SchedulerConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

type TasksConfig struct {
	// LogRetention is how long status and event log rows are kept by the prune tasks.
	LogRetention string `json:"log_retention,omitempty" env:"LOG_RETENTION"`
}

// OpsHTTPConfig controls the operations listener (health, readiness, job snapshot, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsHTTPConfig struct {
	Enabled       bool   `json:"enabled"                  env:"ENABLED"`
	Addr          string `json:"addr,omitempty"           env:"ADDR"`
	Token         string `json:"token,omitempty"          env:"TOKEN"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty" env:"ALLOW_INSECURE"`
	Pprof         bool   `json:"pprof,omitempty"          env:"PPROF"`

	// WriteTimeout defaults to 0 (disabled) so /debug/pprof/profile works.
	ReadTimeout  string `json:"read_timeout,omitempty"  env:"READ_TIMEOUT"`
	WriteTimeout string `json:"write_timeout,omitempty" env:"WRITE_TIMEOUT"`
	IdleTimeout  string `json:"idle_timeout,omitempty"  env:"IDLE_TIMEOUT"`
}
