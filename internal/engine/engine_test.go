package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"trackline/internal/config"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/migrate"
	"trackline/internal/query"
	"trackline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env := &testEnv{Engine: eng, Ctx: context.Background(), clock: &now}
	env.Engine.Now = func() time.Time { return *env.clock }
	return env
}

// tick advances the fake clock so consecutive writes get distinct
// created_at values.
func (env *testEnv) tick() {
	*env.clock = env.clock.Add(time.Minute)
}

func (env *testEnv) mustCreate(t *testing.T, opts engine.ActivityCreateOptions) domain.Activity {
	t.Helper()
	opts.ActorID = "tester"
	a, err := env.Engine.CreateActivity(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	env.tick()
	return a
}

func (env *testEnv) mustAddTask(t *testing.T, activityID int64, title string) domain.Task {
	t.Helper()
	task, err := env.Engine.AddTask(env.Ctx, engine.TaskCreateOptions{ActivityID: activityID, Title: title, ActorID: "tester"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	env.tick()
	return task
}

func TestActivityLifecycle(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActivityCreateOptions{
		Title:       "Quarterly report",
		Description: "compile numbers",
		StartDate:   "2024-03-01",
	})
	if a.ID == 0 || a.StartDate == nil || *a.StartDate != "2024-03-01T00:00:00Z" {
		t.Fatalf("created: %+v", a)
	}

	title := "Quarterly report v2"
	clear := ""
	a, err := env.Engine.UpdateActivity(env.Ctx, engine.ActivityUpdateOptions{
		ID:        a.ID,
		Title:     &title,
		StartDate: &clear,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.Title != title || a.StartDate != nil {
		t.Fatalf("partial update: %+v", a)
	}
	if a.Description != "compile numbers" {
		t.Fatalf("untouched field changed: %q", a.Description)
	}

	if err := env.Engine.DeleteActivity(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetActivity(env.Ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateActivityValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{ActorID: "tester"}); err == nil {
		t.Fatalf("expected title required error")
	}
	if _, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{Title: "x", StartDate: "tomorrow", ActorID: "tester"}); err == nil {
		t.Fatalf("expected invalid start_date error")
	}
}

func TestTaskToggleReDerivesStatus(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActivityCreateOptions{Title: "launch"})
	t1 := env.mustAddTask(t, a.ID, "write")
	t2 := env.mustAddTask(t, a.ID, "review")

	got, err := env.Engine.GetActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if query.Status(got) != domain.StatusPending {
		t.Fatalf("no completed tasks: got %s", query.Status(got))
	}

	got, err = env.Engine.SetTaskCompleted(env.Ctx, a.ID, t1.ID, true, "tester")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if query.Status(got) != domain.StatusInProgress {
		t.Fatalf("one of two completed: got %s", query.Status(got))
	}

	got, err = env.Engine.SetTaskCompleted(env.Ctx, a.ID, t2.ID, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if query.Status(got) != domain.StatusCompleted {
		t.Fatalf("all completed: got %s", query.Status(got))
	}

	// Un-completing drops it straight back to in_progress.
	got, err = env.Engine.SetTaskCompleted(env.Ctx, a.ID, t1.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if query.Status(got) != domain.StatusInProgress {
		t.Fatalf("after uncomplete: got %s", query.Status(got))
	}

	// Deleting the last incomplete task completes the activity.
	if err := env.Engine.DeleteTask(env.Ctx, a.ID, t1.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	got, err = env.Engine.GetActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if query.Status(got) != domain.StatusCompleted {
		t.Fatalf("after delete: got %s", query.Status(got))
	}
}

func TestDeleteActivityCascadesTasks(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActivityCreateOptions{Title: "doomed"})
	env.mustAddTask(t, a.ID, "one")
	env.mustAddTask(t, a.ID, "two")
	if err := env.Engine.DeleteActivity(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	var count int
	row := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM tasks WHERE activity_id=?`, a.ID)
	if err := row.Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected cascade, %d tasks left", count)
	}
}

func TestTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActivityCreateOptions{Title: "x"})
	if _, err := env.Engine.SetTaskCompleted(env.Ctx, a.ID, 999, true, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.AddTask(env.Ctx, engine.TaskCreateOptions{ActivityID: 999, Title: "t", ActorID: "tester"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for missing activity, got %v", err)
	}
}

func seedListFixture(t *testing.T, env *testEnv) {
	t.Helper()
	a := env.mustCreate(t, engine.ActivityCreateOptions{Title: "Write report", Description: "quarterly numbers", StartDate: "2024-03-05", EndDate: "2024-03-20"})
	task := env.mustAddTask(t, a.ID, "draft")
	env.mustAddTask(t, a.ID, "polish")
	if _, err := env.Engine.SetTaskCompleted(env.Ctx, a.ID, task.ID, true, "tester"); err != nil {
		t.Fatal(err)
	}

	b := env.mustCreate(t, engine.ActivityCreateOptions{Title: "Review report", StartDate: "2024-03-10"})
	done := env.mustAddTask(t, b.ID, "read")
	if _, err := env.Engine.SetTaskCompleted(env.Ctx, b.ID, done.ID, true, "tester"); err != nil {
		t.Fatal(err)
	}

	env.mustCreate(t, engine.ActivityCreateOptions{Title: "Standup", Description: "daily sync"})
}

func TestListActivitiesFiltering(t *testing.T) {
	env := newTestEnv(t)
	seedListFixture(t, env)

	items, spec, err := env.Engine.ListActivities(env.Ctx, query.Criteria{Search: "report"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("search: expected 2, got %d", len(items))
	}
	// Default order is created_at descending, so the later create first.
	if items[0].Title != "Review report" || items[1].Title != "Write report" {
		t.Fatalf("order: %s, %s", items[0].Title, items[1].Title)
	}
	if spec.Sort != query.FieldCreatedAt || spec.Direction != query.Desc {
		t.Fatalf("spec: %+v", spec)
	}

	items, _, err = env.Engine.ListActivities(env.Ctx, query.Criteria{Status: "in_progress"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Write report" {
		t.Fatalf("status filter: %+v", items)
	}

	// The end date bound excludes activities without an end date.
	items, _, err = env.Engine.ListActivities(env.Ctx, query.Criteria{EndDate: "2024-03-31"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Write report" {
		t.Fatalf("end bound: %+v", items)
	}

	// Conjunction of criteria.
	items, _, err = env.Engine.ListActivities(env.Ctx, query.Criteria{Search: "report", Status: "completed", StartDate: "2024-03-01"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Review report" {
		t.Fatalf("conjunction: %+v", items)
	}

	items, _, err = env.Engine.ListActivities(env.Ctx, query.Criteria{Search: "no such thing"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty result, got %d", len(items))
	}
}

// The compiled store path and the in-memory path are two renderings of
// the same rules; for any criteria they must produce identical
// sequences.
func TestStoreAndMemoryPathsAgree(t *testing.T) {
	env := newTestEnv(t)
	seedListFixture(t, env)

	all, _, err := env.Engine.ListActivities(env.Ctx, query.Criteria{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	cases := []query.Criteria{
		{},
		{Search: "report"},
		{Status: "pending"},
		{Status: "completed"},
		{StartDate: "2024-03-06"},
		{EndDate: "2024-03-31"},
		{Sort: "title"},
		{Sort: "title", Direction: "desc"},
		{Sort: "status", Direction: "asc"},
		{Sort: "start_date", Direction: "desc"},
		{Sort: "end_date"},
		{Search: "report", Status: "in_progress", Sort: "title"},
	}
	for _, raw := range cases {
		spec := query.Normalize(raw, nil)
		fromStore, _, err := env.Engine.ListActivities(env.Ctx, raw, 0, 0)
		if err != nil {
			t.Fatalf("%+v: %v", raw, err)
		}
		inMemory := query.Apply(all, spec)
		if len(fromStore) != len(inMemory) {
			t.Fatalf("%+v: store %d vs memory %d", raw, len(fromStore), len(inMemory))
		}
		for i := range fromStore {
			if fromStore[i].ID != inMemory[i].ID {
				t.Fatalf("%+v: position %d store id %d vs memory id %d", raw, i, fromStore[i].ID, inMemory[i].ID)
			}
		}
	}
}

// Case folding for search must be identical on both paths; SQLite's
// built-in LOWER only folds ASCII, so accented terms exercise the
// registered fold function.
func TestSearchCaseFoldingAgreesAcrossPaths(t *testing.T) {
	env := newTestEnv(t)
	accented := env.mustCreate(t, engine.ActivityCreateOptions{Title: "Visite au CAFÉ"})
	env.mustCreate(t, engine.ActivityCreateOptions{Title: "Standup"})

	all, _, err := env.Engine.ListActivities(env.Ctx, query.Criteria{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, term := range []string{"café", "CAFÉ", "Café", "au caf"} {
		raw := query.Criteria{Search: term}
		fromStore, spec, err := env.Engine.ListActivities(env.Ctx, raw, 0, 0)
		if err != nil {
			t.Fatalf("%q: %v", term, err)
		}
		inMemory := query.Apply(all, spec)
		if len(fromStore) != 1 || len(inMemory) != 1 {
			t.Fatalf("%q: store matched %d, memory matched %d", term, len(fromStore), len(inMemory))
		}
		if fromStore[0].ID != accented.ID || inMemory[0].ID != accented.ID {
			t.Fatalf("%q: wrong match, store id %d memory id %d", term, fromStore[0].ID, inMemory[0].ID)
		}
	}
}

func TestListPagination(t *testing.T) {
	env := newTestEnv(t)
	seedListFixture(t, env)

	page, _, err := env.Engine.ListActivities(env.Ctx, query.Criteria{}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("limit: got %d", len(page))
	}
	rest, _, err := env.Engine.ListActivities(env.Ctx, query.Criteria{}, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].ID == page[0].ID || rest[0].ID == page[1].ID {
		t.Fatalf("offset page: %+v", rest)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	seedListFixture(t, env)
	counts, err := env.Engine.Stats(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.StatusPending] != 1 || counts[domain.StatusInProgress] != 1 || counts[domain.StatusCompleted] != 1 {
		t.Fatalf("counts: %+v", counts)
	}
}

func TestEventsAppended(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActivityCreateOptions{Title: "evented"})
	task := env.mustAddTask(t, a.ID, "t")
	if _, err := env.Engine.SetTaskCompleted(env.Ctx, a.ID, task.ID, true, "tester"); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != "task.toggle" || events[0].ActorID != "tester" {
		t.Fatalf("newest event: %+v", events[0])
	}
}
