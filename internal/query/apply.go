package query

import (
	"sort"

	"trackline/internal/domain"
)

// Apply is the in-memory rendering of a spec: keep the activities that
// match, then order them stably with Compare. The input slice is left
// untouched. Re-applying the same spec to its own output returns the
// same sequence.
func Apply(activities []domain.Activity, s Spec) []domain.Activity {
	out := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		if Matches(a, s) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i], out[j], s) < 0
	})
	return out
}
