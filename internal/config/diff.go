package config

import (
	"sort"
	"strings"

	logx "opsadmin/pkg/logx"
)

// Sections whose changes only take effect after a restart.
var restartSections = map[string]bool{"storage": true, "scheduler": true}

// SummarizeConfigChange returns the sorted list of changed sections and safe
// structured attrs for logging. Secrets (ops token, storage password and DSN)
// are reported only as *_set flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.json", l.JSON),
			logx.Bool("logging.file_enabled", l.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		s := newCfg.Storage
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(s.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(s.DSN) != ""),
			logx.String("storage.host", strings.TrimSpace(s.Host)),
			logx.Int("storage.max_open_conns", s.MaxOpenConns),
		)
	}

	if !sameScheduler(oldCfg.Scheduler, newCfg.Scheduler) {
		s := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", s.IsEnabled()),
			logx.String("scheduler.timezone", strings.TrimSpace(s.Timezone)),
			logx.String("scheduler.startup_spread", strings.TrimSpace(s.StartupSpread)),
			logx.String("scheduler.shutdown_grace", strings.TrimSpace(s.ShutdownGrace)),
		)
	}

	if oldCfg.Tasks != newCfg.Tasks {
		changed = append(changed, "tasks")
		attrs = append(attrs, logx.String("tasks.log_retention", strings.TrimSpace(newCfg.Tasks.LogRetention)))
	}

	if oldCfg.OpsHTTP != newCfg.OpsHTTP {
		o := newCfg.OpsHTTP
		changed = append(changed, "ops_http")
		attrs = append(attrs,
			logx.Bool("ops_http.enabled", o.Enabled),
			logx.String("ops_http.addr", strings.TrimSpace(o.Addr)),
			logx.Bool("ops_http.token_set", strings.TrimSpace(o.Token) != ""),
			logx.Bool("ops_http.allow_insecure", o.AllowInsecure),
			logx.Bool("ops_http.pprof", o.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters sections down to those that are not applied live.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}

func sameScheduler(a, b SchedulerConfig) bool {
	if a.IsEnabled() != b.IsEnabled() {
		return false
	}
	a.Enabled, b.Enabled = nil, nil
	return a == b
}
