package timer

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// spreadSchedule delays only the first trigger of an interval job, then
// delegates to the fixed-delay base.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

var spreadSeq uint64

// intervalSchedule returns the schedule for a fixed-delay job. With maxSpread > 0 the
// first trigger lands somewhere in [every, every+min(every, maxSpread)) so a fleet of
// jobs registered at boot does not fire in lockstep.
func intervalSchedule(every time.Duration, now time.Time, maxSpread time.Duration, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	limit := every
	if limit > maxSpread {
		limit = maxSpread
	}
	if limit <= 0 {
		return base, 0
	}

	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	rng := rand.New(rand.NewSource(seed))
	jitter := time.Duration(rng.Int63n(int64(limit)))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
