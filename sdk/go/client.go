package tracklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Trackline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID         int64  `json:"id"`
	ActivityID int64  `json:"activity_id"`
	Title      string `json:"title"`
	Completed  bool   `json:"completed"`
	CreatedAt  string `json:"created_at"`
}

// Activity represents the API activity model with its derived status.
type Activity struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         *string `json:"url,omitempty"`
	Status      string  `json:"status"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	Tasks       []Task  `json:"tasks"`
}

// ListFilters are the optional criteria for ListActivities. Zero
// values mean the filter is not applied.
type ListFilters struct {
	Search    string
	StartDate string
	EndDate   string
	Status    string
	Sort      string
	Direction string
	Limit     int
	Offset    int
}

// ActivityList is the list response; Message is set when the filtered
// result is empty.
type ActivityList struct {
	Items   []Activity `json:"items"`
	Message string     `json:"message,omitempty"`
}

// Stats holds activity counts per derived status.
type Stats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListActivities fetches activities matching the filters.
func (c *Client) ListActivities(ctx context.Context, f ListFilters) (ActivityList, error) {
	params := url.Values{}
	set := func(k, v string) {
		if v != "" {
			params.Set(k, v)
		}
	}
	set("search", f.Search)
	set("startDate", f.StartDate)
	set("endDate", f.EndDate)
	set("status", f.Status)
	set("sort", f.Sort)
	set("direction", f.Direction)
	if f.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", f.Limit))
	}
	if f.Offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", f.Offset))
	}
	endpoint := "v0/activities"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp ActivityList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateActivity creates an activity.
func (c *Client) CreateActivity(ctx context.Context, title, description, startDate, endDate string) (Activity, error) {
	body := map[string]any{"title": title, "description": description}
	if startDate != "" {
		body["start_date"] = startDate
	}
	if endDate != "" {
		body["end_date"] = endDate
	}
	var resp Activity
	err := c.do(ctx, http.MethodPost, "v0/activities", body, &resp)
	return resp, err
}

// DeleteActivity removes an activity and its tasks.
func (c *Client) DeleteActivity(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("v0/activities/%d", id), nil, nil)
}

// AddTask adds a task to an activity.
func (c *Client) AddTask(ctx context.Context, activityID int64, title string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/activities/%d/tasks", activityID), map[string]any{"title": title}, &resp)
	return resp, err
}

// SetTaskCompleted flips a task's completion flag and returns the
// owning activity with its freshly derived status.
func (c *Client) SetTaskCompleted(ctx context.Context, activityID, taskID int64, completed bool) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("v0/activities/%d/tasks/%d", activityID, taskID), map[string]any{"completed": completed}, &resp)
	return resp, err
}

// GetStats returns activity counts per derived status.
func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "v0/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
