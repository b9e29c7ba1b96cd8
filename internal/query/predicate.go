package query

import (
	"strings"

	"trackline/internal/domain"
)

// Matches reports whether a single activity satisfies the spec. Every
// criterion defaults to true when unset; set criteria combine with
// AND. The compiled store predicate (Compile) renders these same
// rules criterion by criterion and must never diverge from them.
func Matches(a domain.Activity, s Spec) bool {
	return matchesSearch(a, s) && matchesDates(a, s) && matchesStatus(a, s)
}

func matchesSearch(a domain.Activity, s Spec) bool {
	if s.Search == "" {
		return true
	}
	needle := strings.ToLower(s.Search)
	return strings.Contains(strings.ToLower(a.Title), needle) ||
		strings.Contains(strings.ToLower(a.Description), needle)
}

// matchesDates applies the inclusive bounds. A null date on the
// activity fails a bound that was explicitly requested; it never
// passes vacuously.
func matchesDates(a domain.Activity, s Spec) bool {
	if s.StartDate != nil {
		if a.StartDate == nil || *a.StartDate < *s.StartDate {
			return false
		}
	}
	if s.EndDate != nil {
		if a.EndDate == nil || *a.EndDate > *s.EndDate {
			return false
		}
	}
	return true
}

func matchesStatus(a domain.Activity, s Spec) bool {
	if s.Status == "" {
		return true
	}
	return Status(a) == s.Status
}
