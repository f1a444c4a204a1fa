// Package limiter bounds how many runs of each tool may be in flight at once.
package limiter

import (
	"strings"
	"sync"
)

// Limiter hands out per-tool slots. A tool that is at capacity is rejected
// rather than queued so the caller can answer straight away.
type Limiter struct {
	maxInflight int
	mu          sync.Mutex
	sem         map[string]chan struct{}
}

type Options struct {
	MaxInflight int
}

func New(opts Options) *Limiter {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	return &Limiter{maxInflight: opts.MaxInflight, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve an in-process slot for tool.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (l *Limiter) Allow(tool string) (func(), bool) {
	key := strings.ToLower(tool)
	l.mu.Lock()
	ch, ok := l.sem[key]
	if !ok {
		ch = make(chan struct{}, l.maxInflight)
		l.sem[key] = ch
	}
	l.mu.Unlock()
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, true
	default:
		return func() {}, false
	}
}

// InFlight reports how many slots tool currently holds.
func (l *Limiter) InFlight(tool string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.sem[strings.ToLower(tool)]
	if !ok {
		return 0
	}
	return len(ch)
}
