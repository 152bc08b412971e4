package annotate

import "sync"

// PairKey keys relationship-level retries by ordered definition pair.
type PairKey struct {
	FromID int64
	ToID   int64
}

// AspectKey keys symbol-level retries by definition and aspect.
type AspectKey struct {
	DefinitionID int64
	Aspect       string
}

type retryEntry struct {
	attempts  int
	lastError string
}

// RetryQueue tracks transient classification failures with a bounded
// attempt budget. It lives for one scheduler run and is never
// persisted. The key is generic so pair-keyed and aspect-keyed retries
// share one implementation.
type RetryQueue[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*retryEntry
}

// NewRetryQueue returns an empty queue.
func NewRetryQueue[K comparable]() *RetryQueue[K] {
	return &RetryQueue[K]{entries: make(map[K]*retryEntry)}
}

// Add records a failure: the attempt counter increments and the stored
// message is replaced with the latest.
func (q *RetryQueue[K]) Add(key K, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entries[key]
	if e == nil {
		e = &retryEntry{}
		q.entries[key] = e
	}
	e.attempts++
	e.lastError = message
}

// GetRetryable returns the keys with attempt counts strictly below the
// ceiling.
func (q *RetryQueue[K]) GetRetryable(maxAttempts int) []K {
	q.mu.Lock()
	defer q.mu.Unlock()
	var keys []K
	for key, e := range q.entries {
		if e.attempts < maxAttempts {
			keys = append(keys, key)
		}
	}
	return keys
}

// Exhausted returns the keys at or past the attempt ceiling.
func (q *RetryQueue[K]) Exhausted(maxAttempts int) []K {
	q.mu.Lock()
	defer q.mu.Unlock()
	var keys []K
	for key, e := range q.entries {
		if e.attempts >= maxAttempts {
			keys = append(keys, key)
		}
	}
	return keys
}

// Attempts returns the attempt count for a key, 0 if absent.
func (q *RetryQueue[K]) Attempts(key K) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.entries[key]; e != nil {
		return e.attempts
	}
	return 0
}

// LastError returns the most recent failure message for a key.
func (q *RetryQueue[K]) LastError(key K) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.entries[key]; e != nil {
		return e.lastError
	}
	return ""
}

// Clear empties the queue.
func (q *RetryQueue[K]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[K]*retryEntry)
}

// Len returns the number of tracked keys.
func (q *RetryQueue[K]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
