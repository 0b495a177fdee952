package tool_test

import (
	"context"
	"encoding/json"
	"testing"

	"issueline/internal/config"
	"issueline/internal/domain"
	"issueline/internal/engine"
	"issueline/internal/tool"
)

func newTool(t *testing.T) tool.Tool {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Snapshot = false
	eng, err := engine.Open(context.Background(), engine.Options{StoreDir: t.TempDir(), Config: cfg})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return tool.Tool{Store: eng, Actor: "agent"}
}

func run(t *testing.T, tl tool.Tool, op string, params map[string]any) tool.Result {
	t.Helper()
	return tl.Execute(context.Background(), tool.Request{Operation: op, Params: params})
}

func mustRun(t *testing.T, tl tool.Tool, op string, params map[string]any) map[string]any {
	t.Helper()
	res := run(t, tl, op, params)
	if !res.Success {
		t.Fatalf("%s failed: %+v", op, res.Error)
	}
	return res.Output
}

func TestToolWorkflow(t *testing.T) {
	tl := newTool(t)
	a := mustRun(t, tl, "create", map[string]any{"title": "design", "unknown_key": "ignored"})["issue"].(domain.Issue)
	b := mustRun(t, tl, "create", map[string]any{"title": "implement", "priority": "high"})["issue"].(domain.Issue)
	if a.Priority != domain.PriorityMedium || b.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected priorities %d/%d", a.Priority, b.Priority)
	}

	mustRun(t, tl, "add_dependency", map[string]any{"blocked_id": b.ID, "blocker_id": a.ID})
	ready := mustRun(t, tl, "get_ready", nil)
	if ready["count"] != 1 || ready["ready_issues"].([]domain.Issue)[0].ID != a.ID {
		t.Fatalf("unexpected ready %+v", ready)
	}
	blocked := mustRun(t, tl, "get_blocked", nil)
	entries := blocked["blocked_issues"].([]domain.BlockedIssue)
	if blocked["count"] != 1 || entries[0].Issue.ID != b.ID || entries[0].Blockers[0].ID != a.ID {
		t.Fatalf("unexpected blocked %+v", blocked)
	}

	closed := mustRun(t, tl, "close", map[string]any{"issue_id": a.ID, "reason": "shipped"})["issue"].(domain.Issue)
	if closed.Status != domain.StatusClosed || closed.CloseReason != "shipped" {
		t.Fatalf("unexpected closed issue %+v", closed)
	}
	ready = mustRun(t, tl, "get_ready", map[string]any{"limit": float64(5), "sort": "age"})
	if ready["count"] != 1 || ready["ready_issues"].([]domain.Issue)[0].ID != b.ID {
		t.Fatalf("unexpected ready after close %+v", ready)
	}

	updated := mustRun(t, tl, "update", map[string]any{"issue_id": b.ID, "assignee": "ann", "priority": "0"})["issue"].(domain.Issue)
	if updated.Assignee != "ann" || updated.Priority != domain.PriorityCritical {
		t.Fatalf("unexpected update %+v", updated)
	}
	listed := mustRun(t, tl, "list", map[string]any{"assignee": "ann", "color": "red"})
	if listed["count"] != 1 {
		t.Fatalf("unexpected list %+v", listed)
	}
	history := mustRun(t, tl, "get_events", map[string]any{"issue_id": b.ID})
	if history["count"] != 3 {
		t.Fatalf("expected create, dependency and update events, got %+v", history)
	}
	deps := mustRun(t, tl, "get_dependencies", map[string]any{"issue_id": b.ID})
	if deps["count"] != 1 {
		t.Fatalf("unexpected dependencies %+v", deps)
	}
}

func TestToolErrors(t *testing.T) {
	tl := newTool(t)
	a := mustRun(t, tl, "create", map[string]any{"title": "a"})["issue"].(domain.Issue)
	b := mustRun(t, tl, "create", map[string]any{"title": "b"})["issue"].(domain.Issue)
	mustRun(t, tl, "add_dependency", map[string]any{"blocked_id": a.ID, "blocker_id": b.ID})

	cases := []struct {
		name   string
		op     string
		params map[string]any
		code   string
	}{
		{"missing operation", "", nil, "validation_error"},
		{"unknown operation", "delete", nil, "validation_error"},
		{"missing title", "create", map[string]any{}, "validation_error"},
		{"bad priority", "create", map[string]any{"title": "x", "priority": "urgent"}, "validation_error"},
		{"missing issue", "get", map[string]any{"issue_id": "nope"}, "not_found"},
		{"get without id", "get", map[string]any{}, "validation_error"},
		{"self dependency", "add_dependency", map[string]any{"blocked_id": a.ID, "blocker_id": a.ID}, "validation_error"},
		{"cycle", "add_dependency", map[string]any{"blocked_id": b.ID, "blocker_id": a.ID}, "dependency_cycle"},
		{"immutable field", "update", map[string]any{"issue_id": a.ID, "status": "closed"}, "validation_error"},
		{"bad filter value", "list", map[string]any{"priority": "urgent"}, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := run(t, tl, tc.op, tc.params)
			if res.Success || res.Error == nil {
				t.Fatalf("expected failure, got %+v", res)
			}
			if res.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s (%s)", tc.code, res.Error.Code, res.Error.Message)
			}
		})
	}
}

func TestResultJSONShape(t *testing.T) {
	tl := newTool(t)
	res := run(t, tl, "get_blocked", nil)
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"success":true,"output":{"blocked_issues":[],"count":0}}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestInputSchemaListsOperations(t *testing.T) {
	schema := tool.InputSchema()
	op := schema["properties"].(map[string]any)["operation"].(map[string]any)
	enum := op["enum"].([]string)
	if len(enum) != len(tool.Operations()) || len(enum) != 11 {
		t.Fatalf("unexpected operations %v", enum)
	}
}
