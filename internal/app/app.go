package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsadmin/internal/config"
	"opsadmin/internal/dao"
	"opsadmin/internal/eventbus"
	"opsadmin/internal/observability/opshttp"
	rtsup "opsadmin/internal/runtime/supervisor"
	"opsadmin/internal/storage"
	"opsadmin/internal/tasks"
	"opsadmin/internal/timer"
	logx "opsadmin/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	db   *storage.DB

	timer *timer.Lifecycle // nil when scheduler.enabled=false
	ops   *opshttp.Service
}

// NewApp loads config, opens storage and wires the timer. Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	a := &App{
		cfgm: cfgm,
		log:  log.With(logx.String("comp", "app")),
		logs: logSvc,
		bus:  eventbus.New(),
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	a.db, err = storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, a.abort(fmt.Errorf("open storage: %w", err))
	}

	if cfg.Scheduler.IsEnabled() {
		if a.timer, err = buildTimer(cfg, a.db, a.bus, log); err != nil {
			return nil, a.abort(err)
		}
	} else {
		a.log.Warn("scheduler disabled via config; no jobs will fire")
	}

	opsCfg, err := mapOpsHTTPConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	// a nil *Lifecycle must not become a non-nil interface
	var tv opshttp.Timer
	if a.timer != nil {
		tv = a.timer
	}
	a.ops = opshttp.New(opsCfg, tv, log)

	return a, nil
}

func buildTimer(cfg *config.Config, db *storage.DB, bus eventbus.Bus, log logx.Logger) (*timer.Lifecycle, error) {
	tcfg, bookkeeping, err := mapTimerConfig(cfg)
	if err != nil {
		return nil, err
	}
	retention, err := mapRetention(cfg)
	if err != nil {
		return nil, err
	}

	tlog := log.With(logx.String("comp", "timer"))
	sched, err := timer.NewJobScheduler(tcfg, tlog)
	if err != nil {
		return nil, err
	}

	deps := timer.NewDeps(db, bus, tlog)
	deps.BookkeepingTimeout = bookkeeping

	registry := timer.NewRegistry()
	if err := tasks.Register(registry, tasks.Deps{
		StatusLogs: dao.NewScheduleStatusLogDao(db),
		EventLogs:  dao.NewScheduleEventLogDao(db),
		Scheduler:  sched,
		Retention:  retention,
		Log:        log,
	}); err != nil {
		return nil, err
	}

	jobs := dao.NewScheduleJobDao(db)
	sys := timer.NewSysTaskRegister(sched, jobs, registry, deps)
	user := timer.NewUserTaskRegister(sched.Attach(), jobs, nil, deps)
	return timer.NewLifecycle(sched, sys, user, log), nil
}

// abort releases what NewApp already opened.
func (a *App) abort(err error) error {
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close storage: %w", cerr))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) Logger() logx.Logger { return a.log }

// Timer returns the scheduler lifecycle, nil when disabled.
func (a *App) Timer() *timer.Lifecycle { return a.timer }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the timer bootstrap, the ops listener and the config watcher.
// It returns without waiting for job registration.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		_, err := mapOpsHTTPConfig(cfg)
		return err
	})

	if a.timer != nil {
		a.timer.Start(a.sup.Context())
	}
	a.ops.Start(a.sup.Context())

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128, "timer.")
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
					if je, ok := e.Data.(timer.JobEvent); ok {
						fields = append(fields, logx.Int64("sys_id", je.SysID), logx.String("uuid", je.ID))
					}
					// debug only; frequent interval jobs would flood info
					a.log.Debug("event", fields...)
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				next = drainLatest(sub, next)
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// drainLatest coalesces a burst of reloads into the newest one.
func drainLatest(sub <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLoggingConfig(next))

	if oc, err := mapOpsHTTPConfig(next); err != nil {
		a.log.Warn("invalid ops_http config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop tears down in dependency order: ops listener, timer, storage. Each step is
// bounded so one component cannot stall the rest. The timer is always shut down
// before the database closes.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if err := a.runStep(ctx, name, max, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("ops_http", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("timer", 5*time.Second, func(c context.Context) error {
		if a.timer == nil {
			return nil
		}
		return a.timer.Shutdown(c)
	})
	step("storage", time.Second, func(context.Context) error { return a.db.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// runStep runs fn with an upper bound that never extends the caller's deadline.
// A step that overruns is left running and its late completion is logged.
func (a *App) runStep(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline passed)", logx.String("name", name))
		return context.DeadlineExceeded
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
		return stepCtx.Err()
	}
}
