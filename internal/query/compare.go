package query

import (
	"strings"

	"trackline/internal/domain"
)

// Compare imposes a strict total order over activities for the spec's
// sort field and direction. The primary key comparison is reversed for
// descending; the tie-break is always created_at descending then id
// descending, regardless of the primary field or direction. Null dates
// sort last in both directions.
func Compare(a, b domain.Activity, s Spec) int {
	if c := comparePrimary(a, b, s); c != 0 {
		return c
	}
	if c := strings.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

func comparePrimary(a, b domain.Activity, s Spec) int {
	var c int
	switch s.Sort {
	case FieldTitle:
		c = strings.Compare(a.Title, b.Title)
	case FieldStartDate:
		return compareNullableDate(a.StartDate, b.StartDate, s.Direction)
	case FieldEndDate:
		return compareNullableDate(a.EndDate, b.EndDate, s.Direction)
	case FieldStatus:
		c = sign(Status(a).Rank() - Status(b).Rank())
	default:
		// RFC 3339 UTC strings compare chronologically.
		c = strings.Compare(a.CreatedAt, b.CreatedAt)
	}
	return directed(c, s.Direction)
}

// compareNullableDate orders by date with nulls last whatever the
// direction, so the null check happens before the reversal.
func compareNullableDate(a, b *string, dir Direction) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return directed(strings.Compare(*a, *b), dir)
}

func directed(c int, dir Direction) int {
	if dir == Desc {
		return -c
	}
	return c
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}
