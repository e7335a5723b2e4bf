package verify

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker stops calls to the verification endpoint after failThreshold
// consecutive transport failures. While open every call is refused until
// openFor has elapsed; then a single probe is let through.
type Breaker struct {
	mu            sync.Mutex
	st            breakerState
	fails         int
	failThreshold int
	openFor       time.Duration
	reopenAt      time.Time
	probing       bool
	now           func() time.Time
}

func NewBreaker(failThreshold int, openFor time.Duration) *Breaker {
	if failThreshold <= 0 {
		failThreshold = 5
	}
	if openFor <= 0 {
		openFor = 15 * time.Second
	}
	return &Breaker{failThreshold: failThreshold, openFor: openFor, now: time.Now}
}

// Allow reports whether a call may proceed. A true result in the half-open
// state reserves the probe slot; the caller must report Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stateOpen:
		if b.now().Before(b.reopenAt) || b.probing {
			return false
		}
		b.st = stateHalfOpen
		b.probing = true
		return true
	case stateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) Success() {
	b.mu.Lock()
	b.fails = 0
	b.st = stateClosed
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == stateHalfOpen {
		b.trip()
		return
	}
	b.fails++
	if b.fails >= b.failThreshold {
		b.trip()
	}
}

// Release frees a reserved probe slot without recording an outcome. Used when
// the caller gave up before the endpoint answered.
func (b *Breaker) Release() {
	b.mu.Lock()
	if b.st == stateHalfOpen {
		b.probing = false
	}
	b.mu.Unlock()
}

// Open reports whether calls are currently being refused.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st == stateOpen && b.now().Before(b.reopenAt)
}

func (b *Breaker) trip() {
	b.st = stateOpen
	b.reopenAt = b.now().Add(b.openFor)
	b.probing = false
}
