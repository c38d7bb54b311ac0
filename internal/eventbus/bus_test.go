package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	jobs, unsubJobs := b.Subscribe(4, "timer.job.")
	defer unsubJobs()

	b.Publish(Event{Type: "timer.job.start"})
	b.Publish(Event{Type: "config.reload"})

	if got := len(all); got != 2 {
		t.Fatalf("all subscriber got %d events, want 2", got)
	}
	if got := len(jobs); got != 1 {
		t.Fatalf("prefix subscriber got %d events, want 1", got)
	}
	e := <-jobs
	if e.Type != "timer.job.start" || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}

	unsub()
	unsub()
	b.Publish(Event{Type: "after-unsubscribe"})
}
