package query

import (
	"sync"
	"time"

	"trackline/internal/domain"
)

// Searcher drives an interactive activity view. It holds an in-memory
// snapshot and the currently active spec; criteria submissions are
// normalized against that spec (so repeated sort requests toggle
// direction) and committed through a debouncer, after which the
// filtered, sorted view is pushed to the sink.
type Searcher struct {
	mu       sync.Mutex
	snapshot []domain.Activity
	spec     Spec
	deb      *Debouncer
	sink     func([]domain.Activity, Spec)
}

// NewSearcher returns a searcher delivering views to sink. A
// non-positive delay falls back to DefaultDebounce. The initial spec is
// the zero spec normalized, i.e. everything in created_at descending.
func NewSearcher(delay time.Duration, sink func([]domain.Activity, Spec)) *Searcher {
	s := &Searcher{
		spec: Normalize(Criteria{}, nil),
		sink: sink,
	}
	s.deb = NewDebouncer(delay, s.commit)
	return s
}

// SetSnapshot replaces the backing data and re-emits the current view
// immediately. Mutations (task toggles, creates, deletes) go through
// here so derived statuses refresh without waiting out a debounce.
func (s *Searcher) SetSnapshot(items []domain.Activity) {
	s.mu.Lock()
	s.snapshot = append([]domain.Activity(nil), items...)
	spec := s.spec
	s.mu.Unlock()
	s.emit(spec)
}

// Submit schedules a criteria change. Only the latest submission
// within the quiet period is applied.
func (s *Searcher) Submit(raw Criteria) {
	s.mu.Lock()
	spec := Normalize(raw, &s.spec)
	s.spec = spec
	s.mu.Unlock()
	s.deb.Submit(spec)
}

// Spec returns the currently active spec.
func (s *Searcher) Spec() Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Stop cancels any pending commit.
func (s *Searcher) Stop() {
	s.deb.Stop()
}

func (s *Searcher) commit(spec Spec) {
	s.emit(spec)
}

func (s *Searcher) emit(spec Spec) {
	s.mu.Lock()
	items := append([]domain.Activity(nil), s.snapshot...)
	s.mu.Unlock()
	s.sink(Apply(items, spec), spec)
}
