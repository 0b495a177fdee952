package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"issueline/internal/domain"
	"issueline/internal/events"
	"issueline/internal/index"
)

// IssueCreateOptions are parameters for creating an issue. A nil Priority
// and an empty IssueType take the configured defaults.
type IssueCreateOptions struct {
	Title          string
	Description    string
	Priority       *domain.Priority
	IssueType      string
	Assignee       string
	ParentID       string
	DiscoveredFrom string
	Metadata       map[string]any
	ActorID        string
}

func (e *Engine) CreateIssue(ctx context.Context, opts IssueCreateOptions) (domain.Issue, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Issue{}, domain.ValidationError{Field: "title", Msg: "title is required"}
	}
	priority := e.Config.Issues.DefaultPriority
	if opts.Priority != nil {
		priority = *opts.Priority
	}
	if !priority.Valid() {
		return domain.Issue{}, domain.ValidationError{Field: "priority", Msg: fmt.Sprintf("priority must be 0-4, got %d", priority)}
	}
	issueType := opts.IssueType
	if issueType == "" {
		issueType = e.Config.Issues.DefaultType
	}
	if !e.Config.AllowsType(issueType) {
		return domain.Issue{}, domain.ValidationError{Field: "issue_type", Msg: fmt.Sprintf("unknown issue type %q (allowed: %s)", issueType, strings.Join(e.Config.Issues.Types, ", "))}
	}
	id, err := e.newID()
	if err != nil {
		return domain.Issue{}, err
	}

	idx, err := e.commit(ctx, func(cur *index.Index) (events.Event, bool, error) {
		for field, ref := range map[string]string{"parent_id": opts.ParentID, "discovered_from": opts.DiscoveredFrom} {
			if ref != "" && !cur.Has(ref) {
				return events.Event{}, false, fmt.Errorf("%s: %w", field, domain.NotFoundError{ID: ref})
			}
		}
		evt, err := events.New(events.IssueCreated, e.actor(opts.ActorID), e.now(), events.IssueCreatedPayload{
			ID:             id,
			Title:          title,
			Description:    opts.Description,
			Priority:       priority,
			IssueType:      issueType,
			Assignee:       opts.Assignee,
			ParentID:       opts.ParentID,
			DiscoveredFrom: opts.DiscoveredFrom,
			Metadata:       opts.Metadata,
		})
		return evt, true, err
	})
	if err != nil {
		return domain.Issue{}, fmt.Errorf("create issue: %w", err)
	}
	issue, _ := idx.Get(id)
	return issue, nil
}

func (e *Engine) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	issue, ok := e.current().Get(id)
	if !ok {
		return domain.Issue{}, domain.NotFoundError{ID: id}
	}
	return issue, nil
}

// ListIssues returns the issues matching filter in creation order.
func (e *Engine) ListIssues(ctx context.Context, filter domain.IssueFilter) ([]domain.Issue, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	if filter.Priority != nil && !filter.Priority.Valid() {
		return nil, domain.ValidationError{Field: "priority", Msg: fmt.Sprintf("priority must be 0-4, got %d", *filter.Priority)}
	}
	return e.current().List(filter), nil
}

// IssueUpdate names the fields to change; nil fields are left alone. A
// nil value in Metadata removes that key.
type IssueUpdate struct {
	Title       *string
	Description *string
	Priority    *domain.Priority
	IssueType   *string
	Assignee    *string
	Metadata    map[string]any
	ActorID     string
}

func (u IssueUpdate) empty() bool {
	return u.Title == nil && u.Description == nil && u.Priority == nil &&
		u.IssueType == nil && u.Assignee == nil && len(u.Metadata) == 0
}

// UpdateIssue changes mutable fields. It is allowed on closed issues and
// never changes status.
func (e *Engine) UpdateIssue(ctx context.Context, id string, upd IssueUpdate) (domain.Issue, error) {
	if upd.empty() {
		return domain.Issue{}, domain.ValidationError{Msg: "no fields to update"}
	}
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			return domain.Issue{}, domain.ValidationError{Field: "title", Msg: "title must not be empty"}
		}
		upd.Title = &t
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		return domain.Issue{}, domain.ValidationError{Field: "priority", Msg: fmt.Sprintf("priority must be 0-4, got %d", *upd.Priority)}
	}
	if upd.IssueType != nil {
		if *upd.IssueType == "" {
			return domain.Issue{}, domain.ValidationError{Field: "issue_type", Msg: "issue_type must not be empty"}
		}
		if !e.Config.AllowsType(*upd.IssueType) {
			return domain.Issue{}, domain.ValidationError{Field: "issue_type", Msg: fmt.Sprintf("unknown issue type %q", *upd.IssueType)}
		}
	}

	idx, err := e.commit(ctx, func(cur *index.Index) (events.Event, bool, error) {
		if !cur.Has(id) {
			return events.Event{}, false, domain.NotFoundError{ID: id}
		}
		evt, err := events.New(events.IssueUpdated, e.actor(upd.ActorID), e.now(), events.IssueUpdatedPayload{
			ID:          id,
			Title:       upd.Title,
			Description: upd.Description,
			Priority:    upd.Priority,
			IssueType:   upd.IssueType,
			Assignee:    upd.Assignee,
			Metadata:    upd.Metadata,
		})
		return evt, true, err
	})
	if err != nil {
		return domain.Issue{}, fmt.Errorf("update issue %s: %w", id, err)
	}
	issue, _ := idx.Get(id)
	return issue, nil
}

var immutableFields = map[string]bool{
	"id":              true,
	"status":          true,
	"created_at":      true,
	"updated_at":      true,
	"closed_at":       true,
	"close_reason":    true,
	"parent_id":       true,
	"discovered_from": true,
}

// UpdateIssueFields applies a loosely typed field map such as a decoded
// JSON body. Immutable or unknown keys are rejected.
func (e *Engine) UpdateIssueFields(ctx context.Context, id string, fields map[string]any, actorID string) (domain.Issue, error) {
	upd, err := ParseIssueUpdate(fields)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("update issue %s: %w", id, err)
	}
	upd.ActorID = actorID
	return e.UpdateIssue(ctx, id, upd)
}

// ParseIssueUpdate converts a field map into an IssueUpdate.
func ParseIssueUpdate(fields map[string]any) (IssueUpdate, error) {
	var upd IssueUpdate
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := fields[key]
		if immutableFields[key] {
			return IssueUpdate{}, domain.ValidationError{Field: key, Msg: "field cannot be changed with update"}
		}
		switch key {
		case "title", "description", "issue_type", "assignee":
			s, err := stringField(key, val)
			if err != nil {
				return IssueUpdate{}, err
			}
			switch key {
			case "title":
				upd.Title = s
			case "description":
				upd.Description = s
			case "issue_type":
				upd.IssueType = s
			case "assignee":
				upd.Assignee = s
			}
		case "priority":
			p, err := domain.PriorityFromValue(val)
			if err != nil {
				return IssueUpdate{}, err
			}
			upd.Priority = &p
		case "metadata":
			m, err := metadataField(val)
			if err != nil {
				return IssueUpdate{}, err
			}
			upd.Metadata = m
		default:
			return IssueUpdate{}, domain.ValidationError{Field: key, Msg: "unknown field"}
		}
	}
	return upd, nil
}

func stringField(key string, val any) (*string, error) {
	if val == nil {
		if key == "assignee" || key == "description" {
			s := ""
			return &s, nil
		}
		return nil, domain.ValidationError{Field: key, Msg: "must not be null"}
	}
	s, ok := val.(string)
	if !ok {
		return nil, domain.ValidationError{Field: key, Msg: fmt.Sprintf("must be a string, got %T", val)}
	}
	return &s, nil
}

func metadataField(val any) (map[string]any, error) {
	switch m := val.(type) {
	case map[string]any:
		return m, nil
	case json.RawMessage:
		var out map[string]any
		if err := json.Unmarshal(m, &out); err != nil {
			return nil, domain.ValidationError{Field: "metadata", Msg: "must be an object"}
		}
		return out, nil
	default:
		return nil, domain.ValidationError{Field: "metadata", Msg: fmt.Sprintf("must be an object, got %T", val)}
	}
}

type CloseOptions struct {
	Reason  string
	ActorID string
}

// CloseIssue closes an open issue. Closing a closed issue returns it
// unchanged and appends nothing.
func (e *Engine) CloseIssue(ctx context.Context, id string, opts CloseOptions) (domain.Issue, error) {
	idx, err := e.commit(ctx, func(cur *index.Index) (events.Event, bool, error) {
		issue, ok := cur.Get(id)
		if !ok {
			return events.Event{}, false, domain.NotFoundError{ID: id}
		}
		if issue.Status == domain.StatusClosed {
			return events.Event{}, false, nil
		}
		evt, err := events.New(events.IssueClosed, e.actor(opts.ActorID), e.now(), events.IssueClosedPayload{
			ID:     id,
			Reason: opts.Reason,
		})
		return evt, true, err
	})
	if err != nil {
		return domain.Issue{}, fmt.Errorf("close issue %s: %w", id, err)
	}
	issue, _ := idx.Get(id)
	return issue, nil
}
