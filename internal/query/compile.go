package query

import (
	"fmt"
	"strings"

	"trackline/internal/domain"
)

// Compiled is a spec rendered for the SQLite store: a WHERE fragment
// with ?N placeholders, the bound parameters in placeholder order, and
// an ORDER BY expression. The fragments reference the activities table
// by its query alias "a".
type Compiled struct {
	Where   string
	Args    []any
	OrderBy string
}

const (
	taskCountExpr = `(SELECT COUNT(*) FROM tasks t WHERE t.activity_id = a.id)`
	doneCountExpr = `(SELECT COUNT(*) FROM tasks t WHERE t.activity_id = a.id AND t.completed = 1)`
)

// Compile renders the spec's matching and ordering rules as store
// conditions equivalent to Matches and Compare. Unset criteria are
// omitted entirely, never emitted as vacuous always-true clauses, and
// every textual value is passed as a bound parameter.
func Compile(s Spec) Compiled {
	var clauses []string
	var args []any

	if s.Search != "" {
		// One placeholder index shared across both LIKE occurrences.
		// ulower is the Unicode case fold registered by internal/db;
		// the built-in LOWER folds ASCII only and would diverge from
		// the in-memory evaluator on accented terms.
		n := len(args) + 1
		clauses = append(clauses, fmt.Sprintf(`(ulower(a.title) LIKE ?%d OR ulower(a.description) LIKE ?%d)`, n, n))
		args = append(args, "%"+strings.ToLower(s.Search)+"%")
	}
	if s.StartDate != nil {
		clauses = append(clauses, fmt.Sprintf(`a.start_date >= ?%d`, len(args)+1))
		args = append(args, *s.StartDate)
	}
	if s.EndDate != nil {
		clauses = append(clauses, fmt.Sprintf(`a.end_date <= ?%d`, len(args)+1))
		args = append(args, *s.EndDate)
	}
	if c := statusClause(s.Status); c != "" {
		clauses = append(clauses, c)
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	return Compiled{Where: where, Args: args, OrderBy: orderBy(s)}
}

// statusClause renders the derived status over task cardinality with
// the same classification Status uses: pending means no tasks or no
// completed tasks, completed means a non-empty fully completed list.
func statusClause(status domain.Status) string {
	switch status {
	case domain.StatusPending:
		return fmt.Sprintf(`(%s = 0 OR %s = 0)`, taskCountExpr, doneCountExpr)
	case domain.StatusInProgress:
		return fmt.Sprintf(`(%s > 0 AND %s < %s)`, doneCountExpr, doneCountExpr, taskCountExpr)
	case domain.StatusCompleted:
		return fmt.Sprintf(`(%s > 0 AND %s = %s)`, taskCountExpr, doneCountExpr, taskCountExpr)
	}
	return ""
}

// StatusRankSQL mirrors Status().Rank() as a CASE expression over the
// activities table alias "a". The zero-completed branch also covers
// the zero-task case.
func StatusRankSQL() string {
	return fmt.Sprintf(`CASE WHEN %s = 0 THEN 0 WHEN %s = %s THEN 2 ELSE 1 END`,
		doneCountExpr, doneCountExpr, taskCountExpr)
}

func orderBy(s Spec) string {
	dir := "ASC"
	if s.Direction == Desc {
		dir = "DESC"
	}
	var primary string
	switch s.Sort {
	case FieldTitle:
		primary = "a.title " + dir
	case FieldStartDate:
		primary = "a.start_date " + dir + " NULLS LAST"
	case FieldEndDate:
		primary = "a.end_date " + dir + " NULLS LAST"
	case FieldStatus:
		primary = StatusRankSQL() + " " + dir
	default:
		// created_at is already the primary key; repeating it in the
		// tie-break would be redundant.
		return "ORDER BY a.created_at " + dir + ", a.id DESC"
	}
	// created_at DESC, id DESC tie-break applies whatever the primary
	// key or direction, matching Compare.
	return "ORDER BY " + primary + ", a.created_at DESC, a.id DESC"
}
