package engine

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"trackline/internal/config"
	"trackline/internal/domain"
	"trackline/internal/events"
	"trackline/internal/query"
	"trackline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ActivityCreateOptions are parameters for creating an activity.
type ActivityCreateOptions struct {
	Title       string
	Description string
	URL         string
	StartDate   string
	EndDate     string
	ActorID     string
}

func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	if opts.Title == "" {
		return domain.Activity{}, errors.New("title is required")
	}
	start, err := normalizeInstant(opts.StartDate)
	if err != nil {
		return domain.Activity{}, errors.New("invalid start_date")
	}
	end, err := normalizeInstant(opts.EndDate)
	if err != nil {
		return domain.Activity{}, errors.New("invalid end_date")
	}
	// start after end is stored as given; ordering between the two is
	// not enforced.
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Activity{
		Title:       opts.Title,
		Description: opts.Description,
		URL:         optionalString(opts.URL),
		StartDate:   start,
		EndDate:     end,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertActivity(ctx, tx, a)
	if err != nil {
		return domain.Activity{}, err
	}
	a.ID = id
	if err := e.Events.Append(ctx, tx, "activity.create", "activity", formatID(id), opts.ActorID, events.EventPayload{"title": a.Title}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	a.Tasks = []domain.Task{}
	return a, nil
}

// ActivityUpdateOptions are parameters for a partial activity update.
// Nil pointers leave fields unchanged; empty-string pointers clear the
// optional date and url fields.
type ActivityUpdateOptions struct {
	ID          int64
	Title       *string
	Description *string
	URL         *string
	StartDate   *string
	EndDate     *string
	ActorID     string
}

func (e Engine) UpdateActivity(ctx context.Context, opts ActivityUpdateOptions) (domain.Activity, error) {
	if opts.Title != nil && *opts.Title == "" {
		return domain.Activity{}, errors.New("title is required")
	}
	u := repo.ActivityUpdate{
		Title:       opts.Title,
		Description: opts.Description,
		URL:         opts.URL,
		UpdatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	var err error
	if u.StartDate, err = normalizeInstantPtr(opts.StartDate); err != nil {
		return domain.Activity{}, errors.New("invalid start_date")
	}
	if u.EndDate, err = normalizeInstantPtr(opts.EndDate); err != nil {
		return domain.Activity{}, errors.New("invalid end_date")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateActivity(ctx, tx, opts.ID, u); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.update", "activity", formatID(opts.ID), opts.ActorID, nil); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return e.Repo.GetActivity(ctx, opts.ID)
}

func (e Engine) DeleteActivity(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteActivity(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "activity.delete", "activity", formatID(id), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetActivity(ctx context.Context, id int64) (domain.Activity, error) {
	return e.Repo.GetActivity(ctx, id)
}

// ListActivities normalizes the raw criteria bag and runs the compiled
// filter against the store. The returned sequence is already ordered;
// derived status is computed per activity by the presentation layer
// via query.Status.
func (e Engine) ListActivities(ctx context.Context, raw query.Criteria, limit, offset int) ([]domain.Activity, query.Spec, error) {
	spec := query.Normalize(raw, nil)
	items, err := e.Repo.ListActivities(ctx, spec, limit, offset)
	if err != nil {
		return nil, spec, err
	}
	return items, spec, nil
}

// TaskCreateOptions are parameters for adding a task to an activity.
type TaskCreateOptions struct {
	ActivityID  int64
	Title       string
	Description string
	ActorID     string
}

func (e Engine) AddTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if _, err := e.Repo.GetActivity(ctx, opts.ActivityID); err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ActivityID:  opts.ActivityID,
		Title:       opts.Title,
		Description: opts.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "task.create", "task", formatID(id), opts.ActorID, events.EventPayload{"activity_id": opts.ActivityID}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// SetTaskCompleted flips a task's completion flag and returns the
// owning activity so callers can re-derive its status immediately.
func (e Engine) SetTaskCompleted(ctx context.Context, activityID, taskID int64, completed bool, actorID string) (domain.Activity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTaskCompleted(ctx, tx, activityID, taskID, completed, e.now().UTC().Format(time.RFC3339)); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.toggle", "task", formatID(taskID), actorID, events.EventPayload{"completed": completed}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return e.Repo.GetActivity(ctx, activityID)
}

func (e Engine) DeleteTask(ctx context.Context, activityID, taskID int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, activityID, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.delete", "task", formatID(taskID), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats counts activities per derived status.
func (e Engine) Stats(ctx context.Context) (map[domain.Status]int, error) {
	return e.Repo.CountByStatus(ctx)
}

// normalizeInstant accepts calendar dates or RFC 3339 instants and
// stores them as RFC 3339 UTC. Empty means unset.
func normalizeInstant(raw string) (*string, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		v := t.UTC().Format(time.RFC3339)
		return &v, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	v := t.UTC().Format(time.RFC3339)
	return &v, nil
}

// normalizeInstantPtr keeps the nil/empty distinction used by partial
// updates: nil means unchanged, empty string means clear.
func normalizeInstantPtr(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	if *raw == "" {
		empty := ""
		return &empty, nil
	}
	return normalizeInstant(*raw)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
