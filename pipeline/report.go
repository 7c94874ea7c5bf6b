package pipeline

import (
	"sort"
	"sync"
	"time"
)

// SourceReport counts what happened to one source's listings in a run.
type SourceReport struct {
	Source    string
	Seen      int
	Persisted int
	New       int
	Updated   int
	Filtered  int
	Failed    int
	// FailedBy groups failures by reason category (fetch_failed, ...).
	FailedBy map[string]int
	// Error is set when pagination itself broke off early.
	Error string

	mu sync.Mutex
}

func newSourceReport(name string) *SourceReport {
	return &SourceReport{Source: name, FailedBy: make(map[string]int)}
}

func (r *SourceReport) update(fn func(r *SourceReport)) {
	r.mu.Lock()
	fn(r)
	r.mu.Unlock()
}

func (r *SourceReport) fail(category string) {
	r.update(func(r *SourceReport) {
		r.Failed++
		r.FailedBy[category]++
	})
}

// Report summarizes a pipeline run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Sources  []*SourceReport
}

// Totals sums the per-source counts.
func (r *Report) Totals() *SourceReport {
	t := newSourceReport("total")
	for _, s := range r.Sources {
		t.Seen += s.Seen
		t.Persisted += s.Persisted
		t.New += s.New
		t.Updated += s.Updated
		t.Filtered += s.Filtered
		t.Failed += s.Failed
		for k, v := range s.FailedBy {
			t.FailedBy[k] += v
		}
	}
	return t
}

// Source returns the report for name, or nil.
func (r *Report) Source(name string) *SourceReport {
	for _, s := range r.Sources {
		if s.Source == name {
			return s
		}
	}
	return nil
}

// FailureCategories returns the sorted reason categories seen in the run.
func (r *Report) FailureCategories() []string {
	var cats []string
	for k := range r.Totals().FailedBy {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	return cats
}
