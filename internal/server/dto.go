package server

import (
	"trackline/internal/domain"
	"trackline/internal/query"
)

// Request payloads

type CreateActivityRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
}

type UpdateActivityRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

type SetTaskCompletedRequest struct {
	Completed *bool `json:"completed"`
}

// Response payloads

type TaskResponse struct {
	ID          int64  `json:"id"`
	ActivityID  int64  `json:"activity_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type ActivityResponse struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	URL         *string        `json:"url,omitempty"`
	Status      string         `json:"status" enum:"pending,in_progress,completed"`
	StartDate   *string        `json:"start_date,omitempty" format:"date-time"`
	EndDate     *string        `json:"end_date,omitempty" format:"date-time"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
	UpdatedAt   string         `json:"updated_at" format:"date-time"`
	Tasks       []TaskResponse `json:"tasks"`
}

type activityListBody struct {
	Items []ActivityResponse `json:"items"`
	// Message distinguishes an empty match set from a fetch error.
	Message string `json:"message,omitempty"`
}

type taskListBody struct {
	Items []TaskResponse `json:"items"`
}

type statsBody struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

type deletedBody struct {
	Message string `json:"message"`
}

// Conversion helpers

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse(t)
}

// activityResponse attaches the derived status label; status is
// recomputed from the task list on every read, never cached.
func activityResponse(a domain.Activity) ActivityResponse {
	tasks := make([]TaskResponse, 0, len(a.Tasks))
	for _, t := range a.Tasks {
		tasks = append(tasks, taskResponse(t))
	}
	return ActivityResponse{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		URL:         a.URL,
		Status:      string(query.Status(a)),
		StartDate:   a.StartDate,
		EndDate:     a.EndDate,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		Tasks:       tasks,
	}
}

func mapActivities(items []domain.Activity) []ActivityResponse {
	res := make([]ActivityResponse, 0, len(items))
	for _, a := range items {
		res = append(res, activityResponse(a))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
