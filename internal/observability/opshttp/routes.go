package opshttp

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
)

func (s *Service) routes(cfg Config) http.Handler {
	mux := http.NewServeMux()
	auth := bearer(cfg.Token)

	// liveness is unauthenticated for probes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /readyz", auth(http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /timer/jobs", auth(http.HandlerFunc(s.handleJobs)))

	if cfg.Pprof {
		mux.Handle("/debug/pprof/", auth(http.HandlerFunc(hpprof.Index)))
		mux.Handle("/debug/pprof/cmdline", auth(http.HandlerFunc(hpprof.Cmdline)))
		mux.Handle("/debug/pprof/profile", auth(http.HandlerFunc(hpprof.Profile)))
		mux.Handle("/debug/pprof/symbol", auth(http.HandlerFunc(hpprof.Symbol)))
		mux.Handle("/debug/pprof/trace", auth(http.HandlerFunc(hpprof.Trace)))
	}
	return mux
}

// handleReady is 503 until the timer finished its boot registration, then the boot report.
func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.timer == nil {
		http.Error(w, "timer disabled", http.StatusServiceUnavailable)
		return
	}
	select {
	case <-s.timer.Ready():
		writeJSON(w, s.timer.Report())
	default:
		http.Error(w, "timer bootstrapping", http.StatusServiceUnavailable)
	}
}

func (s *Service) handleJobs(w http.ResponseWriter, _ *http.Request) {
	if s.timer == nil {
		http.Error(w, "timer disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.timer.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// bearer accepts "Authorization: Bearer <token>" or "?token=<token>". An empty token
// disables the check.
func bearer(token string) func(http.Handler) http.Handler {
	want := []byte(strings.TrimSpace(token))
	return func(next http.Handler) http.Handler {
		if len(want) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	switch host = strings.TrimSpace(host); {
	case host == "":
		return false
	case strings.EqualFold(host, "localhost"):
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
