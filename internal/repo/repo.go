package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"trackline/internal/domain"
	"trackline/internal/query"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const activityColumns = `a.id, a.title, a.description, a.url, a.start_date, a.end_date, a.created_at, a.updated_at`

func scanActivity(scan func(...any) error) (domain.Activity, error) {
	var a domain.Activity
	var url, start, end sql.NullString
	if err := scan(&a.ID, &a.Title, &a.Description, &url, &start, &end, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	if url.Valid {
		a.URL = &url.String
	}
	if start.Valid {
		a.StartDate = &start.String
	}
	if end.Valid {
		a.EndDate = &end.String
	}
	return a, nil
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO activities(title,description,url,start_date,end_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		a.Title, a.Description, nullableStringPtr(a.URL), nullableStringPtr(a.StartDate), nullableStringPtr(a.EndDate), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetActivity(ctx context.Context, id int64) (domain.Activity, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities a WHERE a.id=?`, id)
	a, err := scanActivity(row.Scan)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	tasks, err := r.ListTasks(ctx, a.ID)
	if err != nil {
		return a, err
	}
	a.Tasks = tasks
	return a, nil
}

// ActivityUpdate carries the fields of a partial activity update. Nil
// pointers leave the column unchanged; setting URL, StartDate or
// EndDate to a pointer at an empty string clears the column.
type ActivityUpdate struct {
	Title       *string
	Description *string
	URL         *string
	StartDate   *string
	EndDate     *string
	UpdatedAt   string
}

func (r Repo) UpdateActivity(ctx context.Context, tx *sql.Tx, id int64, u ActivityUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *u.Description)
	}
	if u.URL != nil {
		fields = append(fields, "url=?")
		args = append(args, nullable(*u.URL))
	}
	if u.StartDate != nil {
		fields = append(fields, "start_date=?")
		args = append(args, nullable(*u.StartDate))
	}
	if u.EndDate != nil {
		fields = append(fields, "end_date=?")
		args = append(args, nullable(*u.EndDate))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, u.UpdatedAt, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE activities SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteActivity removes an activity; its tasks go with it through the
// foreign key cascade.
func (r Repo) DeleteActivity(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActivities runs the compiled filter/order over the store and
// returns matching activities with their tasks attached. limit <= 0
// means no limit; offset applies only when a limit is set.
func (r Repo) ListActivities(ctx context.Context, spec query.Spec, limit, offset int) ([]domain.Activity, error) {
	c := query.Compile(spec)
	q := `SELECT ` + activityColumns + ` FROM activities a ` + c.Where + ` ` + c.OrderBy
	args := c.Args
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT ?%d OFFSET ?%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.attachTasks(ctx, res)
}

// attachTasks loads the tasks for every listed activity in one query
// and distributes them in creation order.
func (r Repo) attachTasks(ctx context.Context, activities []domain.Activity) ([]domain.Activity, error) {
	if len(activities) == 0 {
		return activities, nil
	}
	placeholders := make([]string, len(activities))
	args := make([]any, len(activities))
	for i, a := range activities {
		placeholders[i] = "?"
		args[i] = a.ID
	}
	q := `SELECT id,activity_id,title,description,completed,created_at,updated_at FROM tasks WHERE activity_id IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byActivity := map[int64][]domain.Task{}
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.ActivityID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		byActivity[t.ActivityID] = append(byActivity[t.ActivityID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range activities {
		activities[i].Tasks = byActivity[activities[i].ID]
	}
	return activities, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(activity_id,title,description,completed,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		t.ActivityID, t.Title, t.Description, t.Completed, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, activityID, id int64) (domain.Task, error) {
	var t domain.Task
	err := r.DB.QueryRowContext(ctx, `SELECT id,activity_id,title,description,completed,created_at,updated_at FROM tasks WHERE id=? AND activity_id=?`, id, activityID).
		Scan(&t.ID, &t.ActivityID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) SetTaskCompleted(ctx context.Context, tx *sql.Tx, activityID, id int64, completed bool, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET completed=?, updated_at=? WHERE id=? AND activity_id=?`,
		completed, updatedAt, id, activityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, activityID, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND activity_id=?`, id, activityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns an activity's tasks in creation order.
func (r Repo) ListTasks(ctx context.Context, activityID int64) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,activity_id,title,description,completed,created_at,updated_at FROM tasks WHERE activity_id=? ORDER BY id ASC`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.ActivityID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountByStatus aggregates activities per derived status using the
// same rank expression the compiled ORDER BY uses.
func (r Repo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	q := `SELECT ` + query.StatusRankSQL() + ` AS status_rank, COUNT(*) FROM activities a GROUP BY status_rank`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Status]int{
		domain.StatusPending:    0,
		domain.StatusInProgress: 0,
		domain.StatusCompleted:  0,
	}
	for rows.Next() {
		var rank, count int
		if err := rows.Scan(&rank, &count); err != nil {
			return nil, err
		}
		switch rank {
		case 1:
			res[domain.StatusInProgress] = count
		case 2:
			res[domain.StatusCompleted] = count
		default:
			res[domain.StatusPending] = count
		}
	}
	return res, rows.Err()
}

// LatestEvents returns the newest n events, optionally filtered by
// type, entity kind, and entity id.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{}
	args := []any{}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	q := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entity sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entity, &e.ActorID, &e.PayloadJSON); err != nil {
			return nil, err
		}
		if entity.Valid {
			e.EntityID = &entity.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
