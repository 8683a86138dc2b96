package usecase

import (
	"sync"
)

// AttemptKey identifies the attempt counter for one (message, consumer) pair.
type AttemptKey struct {
	MessageID    string
	ConsumerName string
}

// defaultMaxAttempts bounds retries before quarantine when no limit is
// configured.
const defaultMaxAttempts = 3

// AttemptTracker counts processing attempts per message within this process
// and owns the configured attempt limit. Counts are volatile; a restart
// starts counting again from zero, which only delays quarantine and never
// breaks exactly-once.
type AttemptTracker struct {
	mu          sync.Mutex
	attempts    map[AttemptKey]int
	maxAttempts int
}

// NewAttemptTracker creates an empty tracker with the given attempt limit.
func NewAttemptTracker(maxAttempts int) *AttemptTracker {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &AttemptTracker{
		attempts:    make(map[AttemptKey]int),
		maxAttempts: maxAttempts,
	}
}

// Increment bumps the counter for the key and returns the new attempt number.
func (t *AttemptTracker) Increment(key AttemptKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[key]++
	return t.attempts[key]
}

// Current returns the attempt count without modifying it.
func (t *AttemptTracker) Current(key AttemptKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[key]
}

// Clear removes the counter for a key. Called on success, quarantine and
// manual retry so stale counts never leak into a later redelivery cycle.
func (t *AttemptTracker) Clear(key AttemptKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, key)
}

// ExceedsLimit reports whether the attempt number has reached the limit.
func (t *AttemptTracker) ExceedsLimit(attempt int) bool {
	return attempt >= t.maxAttempts
}

// MaxAttempts returns the configured attempt limit.
func (t *AttemptTracker) MaxAttempts() int {
	return t.maxAttempts
}

// Len returns the number of tracked keys.
func (t *AttemptTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.attempts)
}
