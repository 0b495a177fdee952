package domain

import "time"

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

type Issue struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Priority       Priority       `json:"priority" minimum:"0" maximum:"4"`
	IssueType      string         `json:"issue_type"`
	Status         Status         `json:"status" enum:"open,closed"`
	Assignee       string         `json:"assignee,omitempty"`
	ParentID       string         `json:"parent_id,omitempty"`
	DiscoveredFrom string         `json:"discovered_from,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CloseReason    string         `json:"close_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at" format:"date-time"`
	UpdatedAt      time.Time      `json:"updated_at" format:"date-time"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty" format:"date-time"`
}

// Clone returns a copy that shares no mutable state with i.
func (i Issue) Clone() Issue {
	out := i
	out.Metadata = CloneMetadata(i.Metadata)
	if i.ClosedAt != nil {
		closed := *i.ClosedAt
		out.ClosedAt = &closed
	}
	return out
}

// Dependency is a "blocks" edge: BlockedID cannot be ready until BlockerID is closed.
type Dependency struct {
	BlockedID string    `json:"blocked_id"`
	BlockerID string    `json:"blocker_id"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// BlockedIssue pairs an open issue with the blockers that are still open.
type BlockedIssue struct {
	Issue    Issue   `json:"issue"`
	Blockers []Issue `json:"blockers"`
}

// IssueFilter selects issues by equality. Zero-value fields do not filter.
type IssueFilter struct {
	Status    Status
	Assignee  string
	IssueType string
	// Priority is a pointer so that filtering for priority 0 (critical)
	// is distinguishable from no filter.
	Priority *Priority
	ParentID string
}

// Matches reports whether the issue satisfies every set field of the filter.
func (f IssueFilter) Matches(i Issue) bool {
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	if f.Assignee != "" && i.Assignee != f.Assignee {
		return false
	}
	if f.IssueType != "" && i.IssueType != f.IssueType {
		return false
	}
	if f.Priority != nil && i.Priority != *f.Priority {
		return false
	}
	if f.ParentID != "" && i.ParentID != f.ParentID {
		return false
	}
	return true
}

// CloneMetadata deep-copies the nested maps and slices produced by JSON decoding.
func CloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMetadata(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return v
	}
}
