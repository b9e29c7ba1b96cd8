package query_test

import (
	"testing"
	"time"

	"trackline/internal/domain"
	"trackline/internal/query"
)

func TestDebouncerCommitsOnlyLatest(t *testing.T) {
	commits := make(chan query.Spec, 8)
	d := query.NewDebouncer(30*time.Millisecond, func(s query.Spec) { commits <- s })
	defer d.Stop()

	// Rapid-fire submissions within the quiet period collapse to one.
	d.Submit(query.Spec{Search: "r"})
	d.Submit(query.Spec{Search: "re"})
	d.Submit(query.Spec{Search: "rep"})

	select {
	case got := <-commits:
		if got.Search != "rep" {
			t.Fatalf("expected latest spec, got %q", got.Search)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("commit never fired")
	}
	select {
	case got := <-commits:
		t.Fatalf("unexpected extra commit %q", got.Search)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	commits := make(chan query.Spec, 1)
	d := query.NewDebouncer(30*time.Millisecond, func(s query.Spec) { commits <- s })
	d.Submit(query.Spec{Search: "x"})
	d.Stop()

	select {
	case <-commits:
		t.Fatalf("commit after Stop")
	case <-time.After(150 * time.Millisecond):
	}
	// Submissions after Stop are ignored.
	d.Submit(query.Spec{Search: "y"})
	select {
	case <-commits:
		t.Fatalf("commit after Stop submission")
	case <-time.After(150 * time.Millisecond):
	}
}

type view struct {
	items []domain.Activity
	spec  query.Spec
}

func TestSearcherDebouncedViews(t *testing.T) {
	views := make(chan view, 8)
	s := query.NewSearcher(30*time.Millisecond, func(items []domain.Activity, spec query.Spec) {
		views <- view{items: items, spec: spec}
	})
	defer s.Stop()

	// Snapshot changes emit immediately with the active spec.
	s.SetSnapshot([]domain.Activity{
		activity(1, "write report", "2024-01-01T00:00:00Z", task(false)),
		activity(2, "standup", "2024-01-02T00:00:00Z", task(true)),
	})
	first := <-views
	if len(first.items) != 2 || first.items[0].ID != 2 {
		t.Fatalf("initial view: got %+v", first.items)
	}

	// Criteria changes wait out the debounce, keeping only the latest.
	s.Submit(query.Criteria{Search: "rep"})
	s.Submit(query.Criteria{Search: "report"})
	select {
	case got := <-views:
		if got.spec.Search != "report" || len(got.items) != 1 || got.items[0].ID != 1 {
			t.Fatalf("filtered view: got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("filtered view never arrived")
	}

	// A mutation refresh re-derives status against the same criteria.
	s.SetSnapshot([]domain.Activity{
		activity(1, "write report", "2024-01-01T00:00:00Z", task(true)),
		activity(2, "standup", "2024-01-02T00:00:00Z", task(true)),
	})
	refreshed := <-views
	if len(refreshed.items) != 1 || query.Status(refreshed.items[0]) != domain.StatusCompleted {
		t.Fatalf("refreshed view: got %+v", refreshed.items)
	}
}

func TestSearcherSortToggleAcrossSubmissions(t *testing.T) {
	views := make(chan view, 8)
	s := query.NewSearcher(10*time.Millisecond, func(items []domain.Activity, spec query.Spec) {
		views <- view{items: items, spec: spec}
	})
	defer s.Stop()

	s.Submit(query.Criteria{Sort: "title"})
	got := <-views
	if got.spec.Direction != query.Asc {
		t.Fatalf("first title sort should be asc, got %s", got.spec.Direction)
	}
	s.Submit(query.Criteria{Sort: "title"})
	got = <-views
	if got.spec.Direction != query.Desc {
		t.Fatalf("repeated title sort should toggle to desc, got %s", got.spec.Direction)
	}
}
