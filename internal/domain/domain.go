package domain

// Status classifies an activity from its tasks' completion state.
// It is always derived at read time, never stored.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Rank gives the fixed ordering pending < in_progress < completed.
func (s Status) Rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

type Activity struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
	StartDate   *string `json:"start_date,omitempty" format:"date-time"`
	EndDate     *string `json:"end_date,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	Tasks       []Task  `json:"tasks"`
}

type Task struct {
	ID          int64  `json:"id"`
	ActivityID  int64  `json:"activity_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Event is one append-only audit log entry.
type Event struct {
	ID          int64   `json:"id"`
	TS          string  `json:"ts"`
	Type        string  `json:"type"`
	EntityKind  string  `json:"entity_kind"`
	EntityID    *string `json:"entity_id,omitempty"`
	ActorID     string  `json:"actor_id"`
	PayloadJSON string  `json:"payload_json"`
}
