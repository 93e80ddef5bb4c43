// Package breaker implements an inline circuit breaker: a small
// rolling-window error-rate counter guarded by a mutex, deliberately
// not pulling in an external breaker library (see DESIGN.md).
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned by Execute when the breaker is open (or
// half-open and a probe is already in flight) and the call is
// rejected without being attempted.
var ErrOpen = errors.New("circuit breaker is open")

// Config configures the rolling window and trip thresholds.
type Config struct {
	// ErrorThreshold is the fraction of failed calls (0..1) in the
	// window that trips the breaker, once MinVolume is met.
	ErrorThreshold float64
	// MinVolume is the minimum number of calls observed in the window
	// before the error rate is even considered.
	MinVolume int
	// Window is the total rolling-window duration.
	Window time.Duration
	// Buckets is how many sub-buckets Window is divided into.
	Buckets int
	// ResetTimeout is how long Open is held before allowing a single
	// half-open probe.
	ResetTimeout time.Duration
}

// DefaultConfig is a 50% error threshold, 5 request minimum volume
// over a 10s/10-bucket rolling window, 30s reset.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.5,
		MinVolume:      5,
		Window:         10 * time.Second,
		Buckets:        10,
		ResetTimeout:   30 * time.Second,
	}
}

type bucket struct {
	successes int
	failures  int
	start     time.Time
}

// Breaker is one circuit breaker instance; construct one per
// dependency (engine-search, catalog-variants, cache, ...).
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	buckets       []bucket
	currentIdx    int
	openedAt      time.Time
	halfOpenInUse bool

	onStateChange func(name string, from, to State)
}

// New constructs a breaker with the given name and config. onChange,
// if non-nil, is invoked on every state transition (wired to metrics).
func New(name string, cfg Config, onChange func(name string, from, to State)) *Breaker {
	b := &Breaker{
		name:          name,
		cfg:           cfg,
		buckets:       make([]bucket, cfg.Buckets),
		onStateChange: onChange,
	}
	now := time.Now()
	for i := range b.buckets {
		b.buckets[i].start = now
	}
	return b
}

func (b *Breaker) bucketDuration() time.Duration {
	return b.cfg.Window / time.Duration(b.cfg.Buckets)
}

// rotate advances currentIdx to the bucket for "now", clearing any
// buckets that have aged out of the window as it passes over them.
func (b *Breaker) rotate(now time.Time) {
	bd := b.bucketDuration()
	cur := &b.buckets[b.currentIdx]
	if now.Sub(cur.start) < bd {
		return
	}
	elapsedBuckets := int(now.Sub(cur.start) / bd)
	if elapsedBuckets > b.cfg.Buckets {
		elapsedBuckets = b.cfg.Buckets
	}
	for i := 0; i < elapsedBuckets; i++ {
		b.currentIdx = (b.currentIdx + 1) % b.cfg.Buckets
		b.buckets[b.currentIdx] = bucket{start: now}
	}
}

func (b *Breaker) windowCounts() (successes, failures int) {
	for _, bucket := range b.buckets {
		successes += bucket.successes
		failures += bucket.failures
	}
	return
}

// Allow reports whether a call may proceed right now, transitioning
// Open -> HalfOpen when the reset timeout has elapsed. A call that
// Allow permits must be paired with a Report call once it finishes; a
// rejected call is not reported.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.rotate(now)

	switch b.state {
	case Closed:
		return true
	case Open:
		if now.Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.transition(HalfOpen)
			b.halfOpenInUse = true
			return true
		}
		return false
	case HalfOpen:
		if b.halfOpenInUse {
			return false
		}
		b.halfOpenInUse = true
		return true
	default:
		return false
	}
}

// Report records the outcome of a call that Allow permitted.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.rotate(now)

	if b.state == HalfOpen {
		b.halfOpenInUse = false
		if success {
			b.resetBuckets(now)
			b.transition(Closed)
		} else {
			b.transition(Open)
			b.openedAt = now
		}
		return
	}

	cur := &b.buckets[b.currentIdx]
	if success {
		cur.successes++
	} else {
		cur.failures++
	}

	if b.state == Closed {
		successes, failures := b.windowCounts()
		total := successes + failures
		if total >= b.cfg.MinVolume {
			rate := float64(failures) / float64(total)
			if rate >= b.cfg.ErrorThreshold {
				b.transition(Open)
				b.openedAt = now
			}
		}
	}
}

func (b *Breaker) resetBuckets(now time.Time) {
	for i := range b.buckets {
		b.buckets[i] = bucket{start: now}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// State returns the current breaker state for introspection (health
// checks, metrics).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn through the breaker: fails fast with ErrOpen if the
// breaker rejects the call, otherwise runs fn and reports its outcome.
// Context cancellation and deadline errors count as failures.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.Allow() {
		return zero, ErrOpen
	}
	result, err := fn(ctx)
	b.Report(err == nil)
	return result, err
}
