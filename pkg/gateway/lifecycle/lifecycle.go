package lifecycle

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Lifecycle holds process state shared across handlers: the draining flag
// flipped during graceful shutdown and the dependency checks behind /readyz.
type Lifecycle struct {
	draining atomic.Bool

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// AddCheck registers a readiness probe. A later call with the same name
// replaces the earlier one.
func (l *Lifecycle) AddCheck(name string, fn CheckFunc) {
	if l == nil || fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checks == nil {
		l.checks = make(map[string]CheckFunc)
	}
	l.checks[name] = fn
}

// CheckResult is the outcome of one readiness probe.
type CheckResult struct {
	Name string
	Err  error
}

// Check runs every registered probe sequentially in name order.
func (l *Lifecycle) Check(ctx context.Context) []CheckResult {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	names := make([]string, 0, len(l.checks))
	for name := range l.checks {
		names = append(names, name)
	}
	fns := make(map[string]CheckFunc, len(l.checks))
	for name, fn := range l.checks {
		fns[name] = fn
	}
	l.mu.RUnlock()

	sort.Strings(names)
	out := make([]CheckResult, 0, len(names))
	for _, name := range names {
		out = append(out, CheckResult{Name: name, Err: fns[name](ctx)})
	}
	return out
}
