// Package tool exposes the issue store as a single operation-selector tool
// for agent runtimes.
package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"issueline/internal/domain"
	"issueline/internal/engine"
	"issueline/internal/events"
)

const (
	Name        = "issue_manager"
	Description = "Manage issues in the persistent issue queue with dependency tracking"
)

// Store is the subset of the engine the tool drives.
type Store interface {
	CreateIssue(ctx context.Context, opts engine.IssueCreateOptions) (domain.Issue, error)
	ListIssues(ctx context.Context, filter domain.IssueFilter) ([]domain.Issue, error)
	GetIssue(ctx context.Context, id string) (domain.Issue, error)
	UpdateIssueFields(ctx context.Context, id string, fields map[string]any, actorID string) (domain.Issue, error)
	CloseIssue(ctx context.Context, id string, opts engine.CloseOptions) (domain.Issue, error)
	AddDependency(ctx context.Context, blockedID, blockerID, actorID string) (domain.Dependency, error)
	GetReadyIssues(ctx context.Context, opts engine.ReadyOptions) ([]domain.Issue, error)
	GetBlockedIssues(ctx context.Context) ([]domain.BlockedIssue, error)
	Blockers(ctx context.Context, id string) ([]domain.Issue, error)
	Dependents(ctx context.Context, id string) ([]domain.Issue, error)
	IssueEvents(ctx context.Context, id string) ([]events.Event, error)
}

var _ Store = (*engine.Engine)(nil)

type Request struct {
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params,omitempty"`
}

type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Tool struct {
	Store Store
	// Actor is recorded on events unless a call passes its own.
	Actor  string
	Logger *slog.Logger
}

type handler func(t Tool, ctx context.Context, params map[string]any) (map[string]any, error)

var operations = map[string]handler{
	"create":           Tool.create,
	"list":             Tool.list,
	"get":              Tool.get,
	"update":           Tool.update,
	"close":            Tool.close,
	"add_dependency":   Tool.addDependency,
	"get_ready":        Tool.getReady,
	"get_blocked":      Tool.getBlocked,
	"get_dependencies": Tool.getDependencies,
	"get_dependents":   Tool.getDependents,
	"get_events":       Tool.getEvents,
}

// Operations lists the accepted operation names.
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one operation. Failures are reported in the result, never
// as a Go error.
func (t Tool) Execute(ctx context.Context, req Request) Result {
	if req.Operation == "" {
		return failure(domain.ValidationError{Field: "operation", Msg: "operation is required"})
	}
	op, ok := operations[req.Operation]
	if !ok {
		return failure(domain.ValidationError{Field: "operation", Msg: fmt.Sprintf("unknown operation: %s", req.Operation)})
	}
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	out, err := op(t, ctx, params)
	if err != nil {
		t.logger().Warn("tool operation failed", "operation", req.Operation, "error", err)
		return failure(err)
	}
	return Result{Success: true, Output: out}
}

func (t Tool) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func failure(err error) Result {
	return Result{Error: &Error{Code: ErrorCode(err), Message: err.Error()}}
}

// ErrorCode classifies an engine error for callers outside the process.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCycle):
		return "dependency_cycle"
	case errors.Is(err, domain.ErrDuplicateIssue):
		return "duplicate_issue"
	case errors.Is(err, domain.ErrCorruption):
		return "log_corrupted"
	case errors.Is(err, engine.ErrLocked):
		return "store_locked"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal_error"
	}
}

func (t Tool) actor(params map[string]any) (string, error) {
	actor, err := optString(params, "actor")
	if err != nil || actor != "" {
		return actor, err
	}
	return t.Actor, nil
}

func (t Tool) create(ctx context.Context, params map[string]any) (map[string]any, error) {
	p := pick(params, "title", "description", "priority", "issue_type", "assignee", "parent_id", "discovered_from", "metadata", "actor")
	var (
		opts engine.IssueCreateOptions
		err  error
	)
	if opts.Title, err = optString(p, "title"); err != nil {
		return nil, err
	}
	if opts.Description, err = optString(p, "description"); err != nil {
		return nil, err
	}
	if opts.IssueType, err = optString(p, "issue_type"); err != nil {
		return nil, err
	}
	if opts.Assignee, err = optString(p, "assignee"); err != nil {
		return nil, err
	}
	if opts.ParentID, err = optString(p, "parent_id"); err != nil {
		return nil, err
	}
	if opts.DiscoveredFrom, err = optString(p, "discovered_from"); err != nil {
		return nil, err
	}
	if opts.Priority, err = optPriority(p); err != nil {
		return nil, err
	}
	if raw, ok := p["metadata"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, domain.ValidationError{Field: "metadata", Msg: "must be an object"}
		}
		opts.Metadata = m
	}
	if opts.ActorID, err = t.actor(p); err != nil {
		return nil, err
	}
	issue, err := t.Store.CreateIssue(ctx, opts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue": issue}, nil
}

func (t Tool) list(ctx context.Context, params map[string]any) (map[string]any, error) {
	filter, err := parseFilter(params, "status", "assignee", "issue_type", "priority", "parent_id")
	if err != nil {
		return nil, err
	}
	issues, err := t.Store.ListIssues(ctx, filter)
	if err != nil {
		return nil, err
	}
	return map[string]any{"issues": nonNil(issues), "count": len(issues)}, nil
}

func (t Tool) get(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, err := requireString(params, "issue_id")
	if err != nil {
		return nil, err
	}
	issue, err := t.Store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue": issue}, nil
}

func (t Tool) update(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, err := requireString(params, "issue_id")
	if err != nil {
		return nil, err
	}
	actor, err := t.actor(params)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(params))
	for k, v := range params {
		if k != "issue_id" && k != "actor" {
			fields[k] = v
		}
	}
	issue, err := t.Store.UpdateIssueFields(ctx, id, fields, actor)
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue": issue}, nil
}

func (t Tool) close(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, err := requireString(params, "issue_id")
	if err != nil {
		return nil, err
	}
	reason, err := optString(params, "reason")
	if err != nil {
		return nil, err
	}
	actor, err := t.actor(params)
	if err != nil {
		return nil, err
	}
	issue, err := t.Store.CloseIssue(ctx, id, engine.CloseOptions{Reason: reason, ActorID: actor})
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue": issue}, nil
}

func (t Tool) addDependency(ctx context.Context, params map[string]any) (map[string]any, error) {
	blocked, err := requireString(params, "blocked_id")
	if err != nil {
		return nil, err
	}
	blocker, err := requireString(params, "blocker_id")
	if err != nil {
		return nil, err
	}
	actor, err := t.actor(params)
	if err != nil {
		return nil, err
	}
	dep, err := t.Store.AddDependency(ctx, blocked, blocker, actor)
	if err != nil {
		return nil, err
	}
	return map[string]any{"dependency": dep}, nil
}

func (t Tool) getReady(ctx context.Context, params map[string]any) (map[string]any, error) {
	filter, err := parseFilter(params, "assignee", "issue_type", "priority", "parent_id", "limit")
	if err != nil {
		return nil, err
	}
	limit, err := optInt(params, "limit")
	if err != nil {
		return nil, err
	}
	issues, err := t.Store.GetReadyIssues(ctx, engine.ReadyOptions{Filter: filter, Limit: limit})
	if err != nil {
		return nil, err
	}
	return map[string]any{"ready_issues": nonNil(issues), "count": len(issues)}, nil
}

func (t Tool) getBlocked(ctx context.Context, params map[string]any) (map[string]any, error) {
	blocked, err := t.Store.GetBlockedIssues(ctx)
	if err != nil {
		return nil, err
	}
	if blocked == nil {
		blocked = []domain.BlockedIssue{}
	}
	return map[string]any{"blocked_issues": blocked, "count": len(blocked)}, nil
}

func (t Tool) getDependencies(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, err := requireString(params, "issue_id")
	if err != nil {
		return nil, err
	}
	issues, err := t.Store.Blockers(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"dependencies": nonNil(issues), "count": len(issues)}, nil
}

func (t Tool) getDependents(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, err := requireString(params, "issue_id")
	if err != nil {
		return nil, err
	}
	issues, err := t.Store.Dependents(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"dependents": nonNil(issues), "count": len(issues)}, nil
}

func (t Tool) getEvents(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, err := requireString(params, "issue_id")
	if err != nil {
		return nil, err
	}
	evts, err := t.Store.IssueEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if evts == nil {
		evts = []events.Event{}
	}
	return map[string]any{"events": evts, "count": len(evts)}, nil
}

func nonNil(issues []domain.Issue) []domain.Issue {
	if issues == nil {
		return []domain.Issue{}
	}
	return issues
}

// pick keeps only the allowed keys.
func pick(params map[string]any, allowed ...string) map[string]any {
	out := make(map[string]any, len(allowed))
	for k, v := range params {
		if slices.Contains(allowed, k) {
			out[k] = v
		}
	}
	return out
}

func parseFilter(params map[string]any, allowed ...string) (domain.IssueFilter, error) {
	var f domain.IssueFilter
	params = pick(params, allowed...)
	status, err := optString(params, "status")
	if err != nil {
		return f, err
	}
	f.Status = domain.Status(status)
	if f.Assignee, err = optString(params, "assignee"); err != nil {
		return f, err
	}
	if f.IssueType, err = optString(params, "issue_type"); err != nil {
		return f, err
	}
	if f.ParentID, err = optString(params, "parent_id"); err != nil {
		return f, err
	}
	if f.Priority, err = optPriority(params); err != nil {
		return f, err
	}
	return f, nil
}

func optString(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", domain.ValidationError{Field: key, Msg: fmt.Sprintf("must be a string, got %T", raw)}
	}
	return s, nil
}

func requireString(params map[string]any, key string) (string, error) {
	s, err := optString(params, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", domain.ValidationError{Field: key, Msg: key + " is required"}
	}
	return s, nil
}

func optPriority(params map[string]any) (*domain.Priority, error) {
	raw, ok := params["priority"]
	if !ok || raw == nil {
		return nil, nil
	}
	p, err := domain.PriorityFromValue(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func optInt(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, domain.ValidationError{Field: key, Msg: "must be an integer"}
		}
		return int(v), nil
	default:
		return 0, domain.ValidationError{Field: key, Msg: fmt.Sprintf("must be an integer, got %T", raw)}
	}
}
