package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"issueline/internal/domain"
)

type Type string

const (
	IssueCreated    Type = "issue_created"
	IssueUpdated    Type = "issue_updated"
	IssueClosed     Type = "issue_closed"
	DependencyAdded Type = "dependency_added"
)

func (t Type) Valid() bool {
	switch t {
	case IssueCreated, IssueUpdated, IssueClosed, DependencyAdded:
		return true
	}
	return false
}

// Event is one line of the log.
type Event struct {
	Seq       int64           `json:"sequence_no"`
	Timestamp time.Time       `json:"timestamp" format:"date-time"`
	Actor     string          `json:"actor"`
	Type      Type            `json:"event_type" enum:"issue_created,issue_updated,issue_closed,dependency_added"`
	Payload   json.RawMessage `json:"payload"`
}

type IssueCreatedPayload struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Priority       domain.Priority `json:"priority"`
	IssueType      string          `json:"issue_type"`
	Assignee       string          `json:"assignee,omitempty"`
	ParentID       string          `json:"parent_id,omitempty"`
	DiscoveredFrom string          `json:"discovered_from,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// IssueUpdatedPayload carries only the changed fields. A nil metadata value
// removes that key.
type IssueUpdatedPayload struct {
	ID          string           `json:"id"`
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Priority    *domain.Priority `json:"priority,omitempty"`
	IssueType   *string          `json:"issue_type,omitempty"`
	Assignee    *string          `json:"assignee,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

type IssueClosedPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

type DependencyAddedPayload struct {
	BlockedID string `json:"blocked_id"`
	BlockerID string `json:"blocker_id"`
}

// New builds an unsequenced event; the log assigns the sequence number
// unless the caller already set one.
func New(typ Type, actor string, ts time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		Timestamp: ts.UTC(),
		Actor:     actor,
		Type:      typ,
		Payload:   data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload (seq %d): %w", e.Type, e.Seq, err)
	}
	return nil
}

// IssueIDs returns the issue IDs the event touches.
func (e Event) IssueIDs() []string {
	var ref struct {
		ID        string `json:"id"`
		BlockedID string `json:"blocked_id"`
		BlockerID string `json:"blocker_id"`
	}
	if err := json.Unmarshal(e.Payload, &ref); err != nil {
		return nil
	}
	var ids []string
	for _, id := range []string{ref.ID, ref.BlockedID, ref.BlockerID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e Event) encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %d: %w", e.Seq, err)
	}
	return append(data, '\n'), nil
}

func decodeRecord(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if e.Seq <= 0 {
		return Event{}, errors.New("missing sequence_no")
	}
	if !e.Type.Valid() {
		return Event{}, fmt.Errorf("unknown event_type %q", e.Type)
	}
	if len(e.Payload) == 0 {
		return Event{}, errors.New("missing payload")
	}
	return e, nil
}
