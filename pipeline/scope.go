package pipeline

import "sync"

// Scope lets a caller shrink a running pipeline. Once the item budget is
// spent or Stop is called, sources stop paginating; listings already being
// processed still finish.
type Scope struct {
	mu      sync.Mutex
	limit   int // 0 means unlimited
	taken   int
	stopped bool
}

// NewScope returns a scope allowing at most limit listings across all
// sources; 0 means no limit.
func NewScope(limit int) *Scope {
	return &Scope{limit: limit}
}

// Reduce lowers the item budget to n. It never raises it.
func (s *Scope) Reduce(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if s.limit == 0 || n < s.limit {
		s.limit = n
		if n == 0 {
			s.stopped = true
		}
	}
}

// Stop ends pagination on every source.
func (s *Scope) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Taken returns how many listings have been admitted.
func (s *Scope) Taken() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken
}

// take admits one more listing, or reports that the budget is spent.
func (s *Scope) take() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || (s.limit > 0 && s.taken >= s.limit) {
		return false
	}
	s.taken++
	return true
}
