// Package index folds the event log into the in-memory issue state.
//
// An Index is a pure function of the events applied to it: every timestamp
// comes from the event, never from the clock. Readers treat a published
// Index as immutable; writers Clone, Apply and publish the clone.
package index

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"issueline/internal/domain"
	"issueline/internal/events"
	"issueline/internal/graph"
)

type Index struct {
	issues map[string]domain.Issue
	order  []string
	deps   []domain.Dependency
	graph  *graph.Graph
	seq    int64
}

func New() *Index {
	return &Index{
		issues: make(map[string]domain.Issue),
		graph:  graph.New(),
	}
}

// Fold builds an Index from events in log order.
func Fold(evts []events.Event) (*Index, error) {
	idx := New()
	for _, evt := range evts {
		if err := idx.Apply(evt); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Restore rebuilds an Index from previously folded state. issues and deps
// must be in creation order.
func Restore(seq int64, issues []domain.Issue, deps []domain.Dependency) (*Index, error) {
	idx := New()
	for _, issue := range issues {
		if _, exists := idx.issues[issue.ID]; exists {
			return nil, domain.DuplicateIssueError{ID: issue.ID}
		}
		idx.issues[issue.ID] = issue.Clone()
		idx.order = append(idx.order, issue.ID)
	}
	for _, dep := range deps {
		if err := idx.addDependency(dep); err != nil {
			return nil, err
		}
	}
	idx.seq = seq
	return idx, nil
}

// Clone returns a copy that can be mutated without affecting idx. Issue
// values are shared until replaced, so Apply never mutates them in place.
func (idx *Index) Clone() *Index {
	return &Index{
		issues: maps.Clone(idx.issues),
		order:  slices.Clip(idx.order),
		deps:   slices.Clip(idx.deps),
		graph:  idx.graph.Clone(),
		seq:    idx.seq,
	}
}

// Seq is the sequence number of the last applied event.
func (idx *Index) Seq() int64 { return idx.seq }

func (idx *Index) Len() int { return len(idx.order) }

// Apply folds one event. On error idx is left unchanged.
func (idx *Index) Apply(evt events.Event) error {
	if evt.Seq <= idx.seq {
		return fmt.Errorf("apply event %d: already at sequence %d", evt.Seq, idx.seq)
	}
	ts := evt.Timestamp.UTC()
	var err error
	switch evt.Type {
	case events.IssueCreated:
		var p events.IssueCreatedPayload
		if err = evt.Decode(&p); err == nil {
			err = idx.applyCreated(p, ts)
		}
	case events.IssueUpdated:
		var p events.IssueUpdatedPayload
		if err = evt.Decode(&p); err == nil {
			err = idx.applyUpdated(p, ts)
		}
	case events.IssueClosed:
		var p events.IssueClosedPayload
		if err = evt.Decode(&p); err == nil {
			err = idx.applyClosed(p, ts)
		}
	case events.DependencyAdded:
		var p events.DependencyAddedPayload
		if err = evt.Decode(&p); err == nil {
			err = idx.addDependency(domain.Dependency{
				BlockedID: p.BlockedID,
				BlockerID: p.BlockerID,
				Actor:     evt.Actor,
				CreatedAt: ts,
			})
		}
	default:
		err = fmt.Errorf("unknown event_type %q", evt.Type)
	}
	if err != nil {
		return fmt.Errorf("apply event %d (%s): %w", evt.Seq, evt.Type, err)
	}
	idx.seq = evt.Seq
	return nil
}

func (idx *Index) applyCreated(p events.IssueCreatedPayload, ts time.Time) error {
	if p.ID == "" {
		return domain.ValidationError{Field: "id", Msg: "missing"}
	}
	if _, exists := idx.issues[p.ID]; exists {
		return domain.DuplicateIssueError{ID: p.ID}
	}
	idx.issues[p.ID] = domain.Issue{
		ID:             p.ID,
		Title:          p.Title,
		Description:    p.Description,
		Priority:       p.Priority,
		IssueType:      p.IssueType,
		Status:         domain.StatusOpen,
		Assignee:       p.Assignee,
		ParentID:       p.ParentID,
		DiscoveredFrom: p.DiscoveredFrom,
		Metadata:       domain.CloneMetadata(p.Metadata),
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	idx.order = append(idx.order, p.ID)
	return nil
}

func (idx *Index) applyUpdated(p events.IssueUpdatedPayload, ts time.Time) error {
	current, ok := idx.issues[p.ID]
	if !ok {
		return domain.NotFoundError{ID: p.ID}
	}
	issue := current.Clone()
	if p.Title != nil {
		issue.Title = *p.Title
	}
	if p.Description != nil {
		issue.Description = *p.Description
	}
	if p.Priority != nil {
		issue.Priority = *p.Priority
	}
	if p.IssueType != nil {
		issue.IssueType = *p.IssueType
	}
	if p.Assignee != nil {
		issue.Assignee = *p.Assignee
	}
	for k, v := range p.Metadata {
		if v == nil {
			delete(issue.Metadata, k)
			continue
		}
		if issue.Metadata == nil {
			issue.Metadata = make(map[string]any)
		}
		issue.Metadata[k] = v
	}
	if len(issue.Metadata) == 0 {
		issue.Metadata = nil
	}
	issue.UpdatedAt = ts
	idx.issues[p.ID] = issue
	return nil
}

func (idx *Index) applyClosed(p events.IssueClosedPayload, ts time.Time) error {
	current, ok := idx.issues[p.ID]
	if !ok {
		return domain.NotFoundError{ID: p.ID}
	}
	if current.Status == domain.StatusClosed {
		return nil
	}
	issue := current.Clone()
	issue.Status = domain.StatusClosed
	issue.CloseReason = p.Reason
	issue.ClosedAt = &ts
	issue.UpdatedAt = ts
	idx.issues[p.ID] = issue
	return nil
}

func (idx *Index) addDependency(dep domain.Dependency) error {
	if _, ok := idx.issues[dep.BlockedID]; !ok {
		return domain.NotFoundError{ID: dep.BlockedID}
	}
	if _, ok := idx.issues[dep.BlockerID]; !ok {
		return domain.NotFoundError{ID: dep.BlockerID}
	}
	if idx.graph.HasEdge(dep.BlockedID, dep.BlockerID) {
		return nil
	}
	if path, cyc := idx.graph.WouldCycle(dep.BlockedID, dep.BlockerID); cyc {
		return domain.CycleError{BlockedID: dep.BlockedID, BlockerID: dep.BlockerID, Path: path}
	}
	idx.graph.AddEdge(dep.BlockedID, dep.BlockerID)
	idx.deps = append(idx.deps, dep)
	return nil
}
