package query

import "trackline/internal/domain"

// Status derives an activity's status from its task list:
// no tasks or no completed tasks is pending, all tasks completed is
// completed, anything in between is in_progress. An activity with an
// empty task list is pending, not an error.
func Status(a domain.Activity) domain.Status {
	total := len(a.Tasks)
	done := 0
	for _, t := range a.Tasks {
		if t.Completed {
			done++
		}
	}
	switch {
	case total == 0 || done == 0:
		return domain.StatusPending
	case done == total:
		return domain.StatusCompleted
	default:
		return domain.StatusInProgress
	}
}
