package query

import (
	"strings"
	"time"

	"trackline/internal/domain"
)

// Field is an activity sort key.
type Field string

const (
	FieldCreatedAt Field = "created_at"
	FieldTitle     Field = "title"
	FieldStartDate Field = "start_date"
	FieldEndDate   Field = "end_date"
	FieldStatus    Field = "status"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Criteria is the raw, untrusted criteria bag as it arrives from query
// string parameters or UI state. All fields are optional strings.
type Criteria struct {
	Search    string
	StartDate string
	EndDate   string
	Status    string
	Sort      string
	Direction string
}

// Spec is a normalized filter specification. Unset criteria are
// pass-through and all set criteria combine with AND; Normalize is the
// usual constructor.
type Spec struct {
	Search    string
	StartDate *string // inclusive lower bound on start_date, RFC 3339
	EndDate   *string // inclusive upper bound on end_date, RFC 3339
	Status    domain.Status
	Sort      Field
	Direction Direction
}

// Normalize builds a Spec from raw criteria. It is total: malformed or
// unknown values degrade to their pass-through default instead of
// failing. prev, when non-nil, is the previously active spec; asking
// for the same sort field again without an explicit direction toggles
// ascending and descending.
func Normalize(raw Criteria, prev *Spec) Spec {
	s := Spec{
		Search:    strings.TrimSpace(raw.Search),
		StartDate: parseBound(raw.StartDate, false),
		EndDate:   parseBound(raw.EndDate, true),
		Sort:      FieldCreatedAt,
		Direction: Desc,
	}

	switch strings.ToLower(strings.TrimSpace(raw.Status)) {
	case "new", "pending":
		s.Status = domain.StatusPending
	case "in_progress":
		s.Status = domain.StatusInProgress
	case "completed":
		s.Status = domain.StatusCompleted
	}

	sort := Field(strings.ToLower(strings.TrimSpace(raw.Sort)))
	switch sort {
	case FieldCreatedAt, FieldTitle, FieldStartDate, FieldEndDate, FieldStatus:
	default:
		// Unknown sort falls back to created_at descending.
		return s
	}
	s.Sort = sort
	s.Direction = Asc

	switch strings.ToLower(strings.TrimSpace(raw.Direction)) {
	case "asc":
		s.Direction = Asc
	case "desc":
		s.Direction = Desc
	default:
		if prev != nil && prev.Sort == sort {
			s.Direction = toggle(prev.Direction)
		}
	}
	return s
}

func toggle(d Direction) Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// parseBound accepts calendar dates or RFC 3339 instants and
// canonicalizes to an RFC 3339 UTC instant: start of day for lower
// bounds, end of day for upper bounds, so both bounds stay inclusive
// under lexicographic comparison. Unparseable input means unset.
func parseBound(raw string, upper bool) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil
		}
		v := t.UTC().Format(time.RFC3339)
		return &v
	}
	if upper {
		t = t.Add(24*time.Hour - time.Second)
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}
