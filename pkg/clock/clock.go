// Package clock supplies the external time reading that expiry and auction
// deadlines are compared against. Readings are unix seconds.
package clock

import (
	"math"
	"sync"
	"time"
)

type Clock interface {
	Now() uint64
}

type system struct{}

// System reads the wall clock.
func System() Clock {
	return system{}
}

func (system) Now() uint64 {
	return uint64(time.Now().Unix())
}

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

func NewManual(now uint64) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manual) Advance(seconds uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = AddSat(m.now, seconds)
}

// AddSat adds without wrapping past math.MaxUint64.
func AddSat(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
