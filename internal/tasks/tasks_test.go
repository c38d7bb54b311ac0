package tasks

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"opsadmin/internal/timer"
	logx "opsadmin/pkg/logx"
)

type fakePruner struct {
	mu     sync.Mutex
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePruner) PruneBefore(_ context.Context, t time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = t
	return f.n, f.err
}

type fixedCount int

func (c fixedCount) Len() int { return int(c) }

func TestRegisterInstallsAllCodes(t *testing.T) {
	t.Parallel()
	reg := timer.NewRegistry()
	if err := Register(reg, Deps{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	want := []string{CodeEventLogPrune, CodeHeartbeat, CodeLogPrune, CodeStatusLogPrune}
	got := reg.Codes()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("codes = %v, want %v", got, want)
	}
	if err := Register(reg, Deps{}); err == nil {
		t.Fatalf("second Register should report duplicates")
	}
}

func TestPruneUsesRetention(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		retention time.Duration
		want      time.Time
	}{
		{name: "configured", retention: 48 * time.Hour, want: now.Add(-48 * time.Hour)},
		{name: "default", retention: 0, want: now.Add(-DefaultRetention)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &fakePruner{n: 3}
			d := Deps{StatusLogs: p, Retention: tc.retention, Now: func() time.Time { return now }}
			if err := PruneStatusLogs(d)(context.Background()); err != nil {
				t.Fatalf("prune: %v", err)
			}
			if !p.cutoff.Equal(tc.want) {
				t.Fatalf("cutoff = %s, want %s", p.cutoff, tc.want)
			}
		})
	}
}

func TestPruneAllRunsBoth(t *testing.T) {
	t.Parallel()
	status := &fakePruner{err: errors.New("locked")}
	events := &fakePruner{n: 1}
	err := PruneAll(Deps{StatusLogs: status, EventLogs: events})(context.Background())
	if err == nil || !strings.Contains(err.Error(), "locked") {
		t.Fatalf("expected status prune failure, got %v", err)
	}
	if events.cutoff.IsZero() {
		t.Fatalf("event prune did not run")
	}

	if err := PruneEventLogs(Deps{})(context.Background()); err == nil {
		t.Fatalf("missing pruner should fail")
	}
}

func TestHeartbeatLogsJobCount(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	d := Deps{Scheduler: fixedCount(4), Log: logx.NewJSON(&buf, "info")}
	if err := Heartbeat(d)(context.Background()); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"jobs":4`) || !strings.Contains(out, "timer heartbeat") {
		t.Fatalf("unexpected log line %s", out)
	}
}
