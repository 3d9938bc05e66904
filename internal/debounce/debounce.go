// Package debounce delays actions until their trigger has been quiet for a
// fixed interval. A Scope owns every timer it creates; closing the scope
// cancels them all.
package debounce

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/url-guardian/client/pkg/logger"
)

type pending struct {
	timer *time.Timer
	id    uint64
}

// Scope holds at most one pending action per key.
type Scope struct {
	name string

	mu      sync.Mutex
	timers  map[string]*pending
	seq     uint64
	closed  bool
	running sync.WaitGroup
}

func NewScope(name string) *Scope {
	return &Scope{
		name:   name,
		timers: make(map[string]*pending),
	}
}

// Schedule (re)starts the timer for key. A pending action for the same key is
// superseded and will never run. It reports false when the scope is closed.
func (s *Scope) Schedule(key string, delay time.Duration, action func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if p, ok := s.timers[key]; ok {
		p.timer.Stop()
		delete(s.timers, key)
		logger.Debug("Debounced action superseded", zap.String("scope", s.name), zap.String("key", key))
	}

	s.seq++
	id := s.seq
	s.timers[key] = &pending{
		id:    id,
		timer: time.AfterFunc(delay, func() { s.fire(key, id, action) }),
	}
	return true
}

func (s *Scope) fire(key string, id uint64, action func()) {
	s.mu.Lock()
	p, ok := s.timers[key]
	// A stopped timer may still have fired; the id tells a superseded run apart.
	if s.closed || !ok || p.id != id {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	action()
}

// Cancel drops the pending action for key, if any.
func (s *Scope) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.timers[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.timers, key)
	return true
}

func (s *Scope) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels all pending timers and waits for actions already running.
// Nothing scheduled on s runs after Close returns. It must not be called from
// inside an action of the same scope.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancelled := len(s.timers)
	for key, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	s.running.Wait()
	logger.Debug("Debounce scope closed", zap.String("scope", s.name), zap.Int("cancelled", cancelled))
}

// Value debounces a single typed input, calling fn with the last value set.
type Value[T any] struct {
	scope *Scope
	key   string
	delay time.Duration
	fn    func(T)
}

func NewValue[T any](scope *Scope, key string, delay time.Duration, fn func(T)) *Value[T] {
	return &Value[T]{scope: scope, key: key, delay: delay, fn: fn}
}

func (v *Value[T]) Set(value T) bool {
	return v.scope.Schedule(v.key, v.delay, func() { v.fn(value) })
}
