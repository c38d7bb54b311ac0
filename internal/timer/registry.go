package timer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TaskFactory builds the Job for a system task row. A factory may support only
// one of the two schedule kinds; the missing one is treated as a build failure.
type TaskFactory struct {
	Interval func(sysID, seconds int64, deps Deps) (*Job, error)
	Cron     func(sysID int64, expr string, deps Deps) (*Job, error)
}

// ActionTask adapts a plain action into a factory that supports both kinds.
func ActionTask(action Action) TaskFactory {
	return TaskFactory{
		Interval: func(sysID, seconds int64, deps Deps) (*Job, error) {
			return New(sysID, deps).WithIntervalJob(seconds, action)
		},
		Cron: func(sysID int64, expr string, deps Deps) (*Job, error) {
			return New(sysID, deps).WithCronJob(expr, action)
		},
	}
}

// Registry maps sys_code to the code that implements a system task.
type Registry struct {
	mu sync.RWMutex
	m  map[string]TaskFactory
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]TaskFactory{}}
}

func (r *Registry) Register(code string, f TaskFactory) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("sys_code required")
	}
	if f.Interval == nil && f.Cron == nil {
		return fmt.Errorf("task %q: empty factory", code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[code]; ok {
		return fmt.Errorf("task %q already registered", code)
	}
	r.m[code] = f
	return nil
}

func (r *Registry) Lookup(code string) (TaskFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.m[strings.TrimSpace(code)]
	return f, ok
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
