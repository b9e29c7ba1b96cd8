package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/query"
	"trackline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"activity not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Trackline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Trackline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerActivities(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerStats(group, cfg.Engine)

	return router, nil
}

// requestIDMiddleware tags every request with a correlation id.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine/repo errors to the envelope. A store failure
// is surfaced as query_failed so callers never mistake it for an empty
// match set.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "query_failed", "query failed", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}, error) {
		resp := &struct {
			Body struct {
				Status string `json:"status" example:"ok"`
			}
		}{}
		resp.Body.Status = "ok"
		return resp, nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
		Description: "Filter, sort and search activities. Unknown criteria values degrade to their pass-through defaults.",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Search    string `query:"search"`
		StartDate string `query:"startDate"`
		EndDate   string `query:"endDate"`
		Status    string `query:"status"`
		Sort      string `query:"sort"`
		Direction string `query:"direction"`
		Limit     int    `query:"limit" default:"50"`
		Offset    int    `query:"offset"`
	}) (*struct {
		Body activityListBody `json:"body"`
	}, error) {
		raw := query.Criteria{
			Search:    input.Search,
			StartDate: input.StartDate,
			EndDate:   input.EndDate,
			Status:    input.Status,
			Sort:      input.Sort,
			Direction: input.Direction,
		}
		items, _, err := e.ListActivities(ctx, raw, normalizeLimit(input.Limit), max(input.Offset, 0))
		if err != nil {
			return nil, handleError(err)
		}
		body := activityListBody{Items: mapActivities(items)}
		if len(body.Items) == 0 {
			body.Message = "No activities found matching your criteria."
		}
		return &struct {
			Body activityListBody `json:"body"`
		}{Body: body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Create activity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateActivityRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			URL:         stringOrEmpty(input.Body.URL),
			StartDate:   stringOrEmpty(input.Body.StartDate),
			EndDate:     stringOrEmpty(input.Body.EndDate),
			ActorID:     actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		a, err := e.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-activity",
		Method:      http.MethodPatch,
		Path:        "/activities/{id}",
		Summary:     "Update activity",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID   int64                 `path:"id"`
		Body UpdateActivityRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		a, err := e.UpdateActivity(ctx, engine.ActivityUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			URL:         input.Body.URL,
			StartDate:   input.Body.StartDate,
			EndDate:     input.Body.EndDate,
			ActorID:     actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-activity",
		Method:      http.MethodDelete,
		Path:        "/activities/{id}",
		Summary:     "Delete activity",
		Description: "Deletes the activity and, through cascading ownership, its tasks.",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body deletedBody `json:"body"`
	}, error) {
		if err := e.DeleteActivity(ctx, input.ID, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body deletedBody `json:"body"`
		}{Body: deletedBody{Message: "Activity deleted successfully"}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/activities/{activity_id}/tasks",
		Summary:       "Add task to activity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ActivityID int64             `path:"activity_id"`
		Body       CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		t, err := e.AddTask(ctx, engine.TaskCreateOptions{
			ActivityID:  input.ActivityID,
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			ActorID:     actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}/tasks",
		Summary:     "List tasks for activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActivityID int64 `path:"activity_id"`
	}) (*struct {
		Body taskListBody `json:"body"`
	}, error) {
		if _, err := e.GetActivity(ctx, input.ActivityID); err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.ListTasks(ctx, input.ActivityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskListBody `json:"body"`
		}{Body: taskListBody{Items: mapTasks(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-completed",
		Method:      http.MethodPatch,
		Path:        "/activities/{activity_id}/tasks/{id}",
		Summary:     "Set task completion",
		Description: "Flips the completion flag and returns the owning activity with its freshly derived status.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ActivityID int64                   `path:"activity_id"`
		ID         int64                   `path:"id"`
		Body       SetTaskCompletedRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		if input.Body.Completed == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "completed status must be a boolean", nil)
		}
		a, err := e.SetTaskCompleted(ctx, input.ActivityID, input.ID, *input.Body.Completed, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/activities/{activity_id}/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ActivityID int64 `path:"activity_id"`
		ID         int64 `path:"id"`
	}) (*struct {
		Body deletedBody `json:"body"`
	}, error) {
		if err := e.DeleteTask(ctx, input.ActivityID, input.ID, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body deletedBody `json:"body"`
		}{Body: deletedBody{Message: "Task deleted successfully"}}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Activity counts per derived status",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body statsBody `json:"body"`
	}, error) {
		counts, err := e.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body statsBody `json:"body"`
		}{Body: statsBody{
			Pending:    counts[domain.StatusPending],
			InProgress: counts[domain.StatusInProgress],
			Completed:  counts[domain.StatusCompleted],
		}}, nil
	})
}

func normalizeLimit(limit int) int {
	const maxLimit = 200
	if limit <= 0 {
		return 50
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
