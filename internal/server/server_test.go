package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"trackline/internal/config"
	"trackline/internal/db"
	"trackline/internal/engine"
	"trackline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createActivity(t *testing.T, srv *testServer, body map[string]any) ActivityResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/activities", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create activity status %d: %s", res.StatusCode, string(data))
	}
	var created ActivityResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	return created
}

func addTask(t *testing.T, srv *testServer, activityID int64, title string) TaskResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+activityPath(activityID)+"/tasks", map[string]any{"title": title}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return created
}

func activityPath(id int64) string {
	return "/v0/activities/" + strconv.FormatInt(id, 10)
}

func int64String(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestActivityTaskFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	created := createActivity(t, srv, map[string]any{
		"title":       "Ship release",
		"description": "cut and publish",
		"start_date":  "2024-03-01",
	})
	if created.Status != "pending" || created.StartDate == nil {
		t.Fatalf("created activity: %+v", created)
	}

	first := addTask(t, srv, created.ID, "tag version")
	addTask(t, srv, created.ID, "write changelog")

	// Completing one of two tasks moves the activity to in_progress;
	// the toggle response carries the re-derived status.
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+activityPath(created.ID)+"/tasks/"+int64String(first.ID), map[string]any{"completed": true}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toggle status %d: %s", res.StatusCode, string(data))
	}
	var toggled ActivityResponse
	if err := json.Unmarshal(data, &toggled); err != nil {
		t.Fatalf("unmarshal toggle: %v", err)
	}
	if toggled.Status != "in_progress" {
		t.Fatalf("expected in_progress, got %s", toggled.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+activityPath(created.ID), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var fetched ActivityResponse
	if err := json.Unmarshal(data, &fetched); err != nil {
		t.Fatal(err)
	}
	if len(fetched.Tasks) != 2 || fetched.Status != "in_progress" {
		t.Fatalf("fetched: %+v", fetched)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+activityPath(created.ID), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+activityPath(created.ID), nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d: %s", res.StatusCode, string(data))
	}
}

func TestListFilteringAndEmptyMessage(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	report := createActivity(t, srv, map[string]any{"title": "Write report"})
	createActivity(t, srv, map[string]any{"title": "Standup", "description": "daily sync"})
	done := addTask(t, srv, report.ID, "draft")
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+activityPath(report.ID)+"/tasks/"+int64String(done.ID), map[string]any{"completed": true}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toggle: %d %s", res.StatusCode, string(data))
	}

	var list struct {
		Items   []ActivityResponse `json:"items"`
		Message string             `json:"message"`
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities?search=report&status=completed", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != report.ID || list.Items[0].Status != "completed" {
		t.Fatalf("filtered list: %s", string(data))
	}
	if list.Message != "" {
		t.Fatalf("non-empty result must carry no message, got %q", list.Message)
	}

	// An empty match set is a 200 with the message, never an error.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities?search=nonexistent", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("empty list: %d %s", res.StatusCode, string(data))
	}
	list.Items = nil
	list.Message = ""
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 0 || list.Message != "No activities found matching your criteria." {
		t.Fatalf("empty list body: %s", string(data))
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	createActivity(t, srv, map[string]any{"title": "pending one"})
	a := createActivity(t, srv, map[string]any{"title": "completed one"})
	task := addTask(t, srv, a.ID, "only")
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+activityPath(a.ID)+"/tasks/"+int64String(task.ID), map[string]any{"completed": true}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toggle: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stats", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", res.StatusCode, string(data))
	}
	var stats statsBody
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 || stats.InProgress != 0 || stats.Completed != 1 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/999", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "not_found" || envelope.Error.Message == "" {
		t.Fatalf("envelope: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{"title": ""}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequiredForMutations(t *testing.T) {
	const secret = "test-secret"
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: secret})
	defer cleanup()
	client := srv.Client()

	// Reads stay open.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unauthenticated read: %d %s", res.StatusCode, string(data))
	}

	// Mutations without a token are rejected.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{"title": "x"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	// A garbage token is rejected outright.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{"title": "x"}, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", res.StatusCode, string(data))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{"title": "x"}, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("authenticated create: %d %s", res.StatusCode, string(data))
	}
}
