package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"issueline/internal/config"
	"issueline/internal/domain"
	"issueline/internal/engine"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Snapshot = false
	e, err := engine.Open(context.Background(), engine.Options{StoreDir: t.TempDir(), Config: cfg})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Actor: "http"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		_ = e.Close()
	})
	return srv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
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

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return out
}

func createIssue(t *testing.T, srv *httptest.Server, body map[string]any) domain.Issue {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/issues", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create issue status %d: %s", res.StatusCode, data)
	}
	return decode[domain.Issue](t, data)
}

func TestIssueLifecycle(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	a := createIssue(t, srv, map[string]any{"title": "design"})
	b := createIssue(t, srv, map[string]any{"title": "implement", "priority": 0, "issue_type": "feature"})
	if a.Status != domain.StatusOpen || a.Priority != domain.PriorityMedium || a.IssueType != "task" {
		t.Fatalf("unexpected defaults %+v", a)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/dependencies", map[string]any{
		"blocked_id": b.ID,
		"blocker_id": a.ID,
	}, map[string]string{"X-Actor": "planner"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add dependency status %d: %s", res.StatusCode, data)
	}
	if dep := decode[domain.Dependency](t, data); dep.Actor != "planner" {
		t.Fatalf("expected actor from header, got %+v", dep)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/ready", nil, nil)
	ready := decode[ReadyResponse](t, data)
	if res.StatusCode != http.StatusOK || ready.Count != 1 || ready.ReadyIssues[0].ID != a.ID {
		t.Fatalf("unexpected ready %d: %s", res.StatusCode, data)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/blocked", nil, nil)
	blocked := decode[BlockedResponse](t, data)
	if blocked.Count != 1 || blocked.BlockedIssues[0].Issue.ID != b.ID || blocked.BlockedIssues[0].Blockers[0].ID != a.ID {
		t.Fatalf("unexpected blocked: %s", data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/issues/"+a.ID+"/close", map[string]any{"reason": "done"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, data)
	}
	if closed := decode[domain.Issue](t, data); closed.Status != domain.StatusClosed || closed.CloseReason != "done" {
		t.Fatalf("unexpected closed issue %+v", closed)
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/ready?issue_type=feature&limit=5", nil, nil)
	ready = decode[ReadyResponse](t, data)
	if ready.Count != 1 || ready.ReadyIssues[0].ID != b.ID {
		t.Fatalf("expected b ready after close: %s", data)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/blocked", nil, nil)
	if got := string(data); !strings.Contains(got, `"blocked_issues":[]`) {
		t.Fatalf("expected empty blocked list, got %s", got)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/issues/"+b.ID, map[string]any{
		"assignee": "ann",
		"metadata": map[string]any{"estimate": 3},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, data)
	}
	updated := decode[domain.Issue](t, data)
	if updated.Assignee != "ann" || updated.Metadata["estimate"] != float64(3) {
		t.Fatalf("unexpected update %+v", updated)
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/issues?status=open&assignee=ann", nil, nil)
	if list := decode[IssueListResponse](t, data); list.Count != 1 || list.Issues[0].ID != b.ID {
		t.Fatalf("unexpected list: %s", data)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/issues?priority=critical", nil, nil)
	if list := decode[IssueListResponse](t, data); list.Count != 1 {
		t.Fatalf("unexpected priority filter result: %s", data)
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/issues/"+b.ID+"/dependencies", nil, nil)
	if deps := decode[DependenciesResponse](t, data); deps.Count != 1 || deps.Dependencies[0].ID != a.ID {
		t.Fatalf("unexpected dependencies: %s", data)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/issues/"+a.ID+"/dependents", nil, nil)
	if deps := decode[DependentsResponse](t, data); deps.Count != 1 || deps.Dependents[0].ID != b.ID {
		t.Fatalf("unexpected dependents: %s", data)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/issues/"+b.ID+"/events", nil, nil)
	if history := decode[EventListResponse](t, data); history.Count != 3 {
		t.Fatalf("expected create, dependency and update events: %s", data)
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if health := decode[HealthResponse](t, data); health.Status != "ok" || health.Sequence != 5 {
		t.Fatalf("unexpected health: %s", data)
	}
}

func TestCloseWithoutBody(t *testing.T) {
	srv := newTestServer(t)
	a := createIssue(t, srv, map[string]any{"title": "a"})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/issues/"+a.ID+"/close", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, data)
	}
	if closed := decode[domain.Issue](t, data); closed.Status != domain.StatusClosed {
		t.Fatalf("unexpected issue %+v", closed)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	a := createIssue(t, srv, map[string]any{"title": "a"})
	b := createIssue(t, srv, map[string]any{"title": "b"})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/dependencies", map[string]any{
		"blocked_id": a.ID,
		"blocker_id": b.ID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add dependency status %d: %s", res.StatusCode, data)
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing issue", http.MethodGet, "/v0/issues/nope", nil, http.StatusNotFound, "not_found"},
		{"cycle", http.MethodPost, "/v0/dependencies", map[string]any{"blocked_id": b.ID, "blocker_id": a.ID}, http.StatusConflict, "dependency_cycle"},
		{"self dependency", http.MethodPost, "/v0/dependencies", map[string]any{"blocked_id": a.ID, "blocker_id": a.ID}, http.StatusBadRequest, "validation_error"},
		{"unknown blocker", http.MethodPost, "/v0/dependencies", map[string]any{"blocked_id": a.ID, "blocker_id": "nope"}, http.StatusNotFound, "not_found"},
		{"immutable field", http.MethodPatch, "/v0/issues/" + a.ID, map[string]any{"status": "closed"}, http.StatusBadRequest, "validation_error"},
		{"empty title", http.MethodPost, "/v0/issues", map[string]any{"title": ""}, http.StatusBadRequest, "validation_error"},
		{"priority out of range", http.MethodPost, "/v0/issues", map[string]any{"title": "x", "priority": 7}, http.StatusBadRequest, "validation_error"},
		{"bad priority filter", http.MethodGet, "/v0/ready?priority=urgent", nil, http.StatusBadRequest, "validation_error"},
		{"bad list priority filter", http.MethodGet, "/v0/issues?priority=urgent", nil, http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, srv.Client(), tc.method, srv.URL+tc.path, tc.body, nil)
			if res.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, res.StatusCode, data)
			}
			var env struct {
				Error apiErrorBody `json:"error"`
			}
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("unmarshal envelope: %v", err)
			}
			if env.Error.Code != tc.code || env.Error.Message == "" {
				t.Fatalf("unexpected envelope %s", data)
			}
		})
	}

	_, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/dependencies", map[string]any{"blocked_id": b.ID, "blocker_id": a.ID}, nil)
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	_ = json.Unmarshal(data, &env)
	path, _ := env.Error.Details["path"].([]any)
	if len(path) != 2 {
		t.Fatalf("expected cycle path in details, got %s", data)
	}
}

func TestToolEndpoint(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tool", map[string]any{
		"operation": "create",
		"params":    map[string]any{"title": "from agent", "priority": "high"},
	}, map[string]string{"X-Actor": "agent"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("tool status %d: %s", res.StatusCode, data)
	}
	var result struct {
		Success bool `json:"success"`
		Output  struct {
			Issue domain.Issue `json:"issue"`
		} `json:"output"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Output.Issue.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected tool result %s", data)
	}

	_, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tool", map[string]any{"operation": "explode"}, nil)
	if !strings.Contains(string(data), `"success":false`) || !strings.Contains(string(data), `"validation_error"`) {
		t.Fatalf("expected failed result, got %s", data)
	}
}

func TestOpenAPIAndDocs(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	for _, p := range []string{"/v0/issues", "/v0/ready", "/v0/blocked", "/v0/tool", "/v0/issues/{id}/close"} {
		if !strings.Contains(string(data), `"`+p+`"`) {
			t.Fatalf("openapi document missing %s", p)
		}
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/docs", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "/v0/openapi.json") {
		t.Fatalf("unexpected docs response %d", res.StatusCode)
	}
}

func TestQueryFilters(t *testing.T) {
	srv := newTestServer(t)
	epic := createIssue(t, srv, map[string]any{"title": "epic", "issue_type": "epic", "assignee": "bob"})
	ann := createIssue(t, srv, map[string]any{"title": "ann's", "assignee": "ann", "priority": 1, "parent_id": epic.ID})
	createIssue(t, srv, map[string]any{"title": "bob's", "assignee": "bob", "issue_type": "bug"})

	cases := []struct {
		path string
		key  string
		want int
	}{
		{"/v0/ready?assignee=ann", "ready_issues", 1},
		{"/v0/ready?assignee=bob", "ready_issues", 2},
		{"/v0/ready?priority=high", "ready_issues", 1},
		{"/v0/ready?parent_id=" + epic.ID, "ready_issues", 1},
		{"/v0/issues?assignee=ann", "issues", 1},
		{"/v0/issues?issue_type=bug", "issues", 1},
		{"/v0/issues?issue_type=epic&assignee=ann", "issues", 0},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+tc.path, nil, nil)
			if res.StatusCode != http.StatusOK {
				t.Fatalf("status %d: %s", res.StatusCode, data)
			}
			body := decode[map[string]any](t, data)
			if body["count"] != float64(tc.want) {
				t.Fatalf("expected count %d, got %s", tc.want, data)
			}
			if tc.path == "/v0/ready?assignee=ann" {
				first := body[tc.key].([]any)[0].(map[string]any)
				if first["id"] != ann.ID {
					t.Fatalf("unexpected issue %s", data)
				}
			}
		})
	}
}
