// Package opshttp serves the read-only operations endpoints: liveness, timer
// readiness and the live job table.
package opshttp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "opsadmin/internal/runtime/supervisor"
	"opsadmin/internal/timer"
	logx "opsadmin/pkg/logx"
)

const defaultAddr = "127.0.0.1:9090"

// Config controls the operations listener. A non-loopback Addr needs Token or
// AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Timer is the read side of timer.Lifecycle.
type Timer interface {
	Ready() <-chan struct{}
	Report() timer.BootReport
	Snapshot() timer.Snapshot
}

type Service struct {
	log   logx.Logger
	timer Timer

	op sync.Mutex // serializes Start, Stop and Reconfigure

	mu  sync.Mutex
	cfg Config
	cur *generation
}

// generation is one run of the listener with a fixed config.
type generation struct {
	cfg Config
	sup *rtsup.Supervisor
	ln  net.Listener // guarded by Service.mu
}

func New(cfg Config, t Timer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, timer: t, log: log.With(logx.String("comp", "opshttp"))}
}

// Addr is the bound listen address, empty while not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.ln == nil {
		return ""
	}
	return s.cur.ln.Addr().String()
}

// Reconfigure stores cfg and starts, stops or restarts the listener to match it.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.cfg = cfg
	g := s.cur
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.stop(ctx)
	case g == nil:
		s.start(ctx)
	case g.cfg != cfg:
		s.stop(ctx)
		s.start(ctx)
	}
}

// Start is a no-op when already serving or disabled.
func (s *Service) Start(ctx context.Context) {
	s.op.Lock()
	defer s.op.Unlock()
	s.start(ctx)
}

// Stop shuts the listener down and waits for it, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.op.Lock()
	defer s.op.Unlock()
	s.stop(ctx)
}

func (s *Service) start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.cur != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	// a failing listener is retried but never cancels the app
	g := &generation{cfg: s.cfg, sup: rtsup.New(ctx, rtsup.WithLogger(s.log))}
	s.cur = g
	s.mu.Unlock()

	g.sup.GoRestart("http.serve", func(c context.Context) error { return s.serve(c, g) },
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	g := s.cur
	s.cur = nil
	s.mu.Unlock()
	if g == nil {
		return
	}

	if err := g.sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("ops http still shutting down", logx.Err(err))
		return
	}
	s.log.Info("ops http stopped")
}

func (s *Service) serve(ctx context.Context, g *generation) error {
	cfg := g.cfg
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if !isLoopbackAddr(addr) && strings.TrimSpace(cfg.Token) == "" {
		if !cfg.AllowInsecure {
			s.log.Error("ops http refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			return errors.New("ops http: insecure bind refused")
		}
		s.log.Warn("ops http running without token on non-loopback addr", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	srv := &http.Server{
		Handler:      s.routes(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	s.mu.Lock()
	g.ln = ln
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		g.ln = nil
		s.mu.Unlock()
	}()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			_ = srv.Close()
		}
	}()

	s.log.Info("ops http started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", cfg.Pprof),
		logx.Bool("token_set", cfg.Token != ""),
	)
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops http server exited unexpectedly")
	}
	return err
}
