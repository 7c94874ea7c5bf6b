package utils

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// WorkerPool runs jobs on a bounded number of goroutines.
type WorkerPool struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool that runs at most maxWorkers jobs at once.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{semaphore: make(chan struct{}, maxWorkers)}
}

// Submit enqueues a job, blocking while the pool is full. It returns false
// without running the job when ctx is done first.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) bool {
	select {
	case wp.semaphore <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()
		job()
	}()
	return true
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Throttle enforces a randomized minimum delay between operations sharing a
// key. Each key keeps its own "next allowed time" clock.
type Throttle struct {
	min, max time.Duration

	mu   sync.Mutex
	next map[string]time.Time

	now    func() time.Time
	jitter func(n int64) int64
}

// NewThrottle spaces operations on the same key by a delay drawn uniformly
// from [min, max].
func NewThrottle(min, max time.Duration) *Throttle {
	if max < min {
		max = min
	}
	return &Throttle{
		min:    min,
		max:    max,
		next:   make(map[string]time.Time),
		now:    time.Now,
		jitter: rand.Int64N,
	}
}

func (t *Throttle) delay() time.Duration {
	span := int64(t.max - t.min)
	if span <= 0 {
		return t.min
	}
	return t.min + time.Duration(t.jitter(span+1))
}

// Reserve claims the next slot for key and returns when it starts.
func (t *Throttle) Reserve(key string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := t.now()
	if n, ok := t.next[key]; ok && n.After(at) {
		at = n
	}
	t.next[key] = at.Add(t.delay())
	return at
}

// Wait blocks until key may issue its next operation or ctx is done.
func (t *Throttle) Wait(ctx context.Context, key string) error {
	wait := time.Until(t.Reserve(key))
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// URLSet is a thread-safe set for tracking visited URLs.
type URLSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Contains returns true if the URL has already been visited.
func (s *URLSet) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[url]
	return exists
}

// Size returns the number of unique URLs tracked.
func (s *URLSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
