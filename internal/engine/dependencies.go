package engine

import (
	"context"
	"fmt"
	"slices"

	"issueline/internal/domain"
	"issueline/internal/events"
	"issueline/internal/index"
)

// AddDependency records that blockedID cannot be ready until blockerID is
// closed. Re-adding an existing edge returns it without appending.
func (e *Engine) AddDependency(ctx context.Context, blockedID, blockerID, actorID string) (domain.Dependency, error) {
	if blockedID == "" || blockerID == "" {
		return domain.Dependency{}, domain.ValidationError{Field: "blocked_id", Msg: "blocked_id and blocker_id are required"}
	}
	if blockedID == blockerID {
		return domain.Dependency{}, domain.ValidationError{Field: "blocker_id", Msg: fmt.Sprintf("issue %s cannot block itself", blockedID)}
	}
	idx, err := e.commit(ctx, func(cur *index.Index) (events.Event, bool, error) {
		for _, id := range []string{blockedID, blockerID} {
			if !cur.Has(id) {
				return events.Event{}, false, domain.NotFoundError{ID: id}
			}
		}
		if cur.HasDependency(blockedID, blockerID) {
			return events.Event{}, false, nil
		}
		if path, cyc := cur.WouldCycle(blockedID, blockerID); cyc {
			return events.Event{}, false, domain.CycleError{BlockedID: blockedID, BlockerID: blockerID, Path: path}
		}
		evt, err := events.New(events.DependencyAdded, e.actor(actorID), e.now(), events.DependencyAddedPayload{
			BlockedID: blockedID,
			BlockerID: blockerID,
		})
		return evt, true, err
	})
	if err != nil {
		return domain.Dependency{}, fmt.Errorf("add dependency %s -> %s: %w", blockedID, blockerID, err)
	}
	dep, _ := idx.Dependency(blockedID, blockerID)
	return dep, nil
}

type ReadyOptions struct {
	Filter domain.IssueFilter
	// Limit caps the result after ordering; zero means no limit.
	Limit int
}

// GetReadyIssues returns open issues with no open blockers, most urgent and
// oldest first.
func (e *Engine) GetReadyIssues(ctx context.Context, opts ReadyOptions) ([]domain.Issue, error) {
	if opts.Limit < 0 {
		return nil, domain.ValidationError{Field: "limit", Msg: "limit must not be negative"}
	}
	if opts.Filter.Status == domain.StatusClosed {
		return nil, nil
	}
	return e.current().Ready(opts.Filter, opts.Limit), nil
}

// GetBlockedIssues returns open issues paired with their open blockers.
func (e *Engine) GetBlockedIssues(ctx context.Context) ([]domain.BlockedIssue, error) {
	return e.current().Blocked(), nil
}

// Blockers returns every issue id depends on, open or closed.
func (e *Engine) Blockers(ctx context.Context, id string) ([]domain.Issue, error) {
	idx := e.current()
	if !idx.Has(id) {
		return nil, domain.NotFoundError{ID: id}
	}
	return idx.Blockers(id), nil
}

// Dependents returns every issue that depends on id, open or closed.
func (e *Engine) Dependents(ctx context.Context, id string) ([]domain.Issue, error) {
	idx := e.current()
	if !idx.Has(id) {
		return nil, domain.NotFoundError{ID: id}
	}
	return idx.Dependents(id), nil
}

// Events returns the committed events in log order. An empty issueID
// returns every event.
func (e *Engine) Events(ctx context.Context, issueID string) ([]events.Event, error) {
	if issueID != "" && !e.current().Has(issueID) {
		return nil, domain.NotFoundError{ID: issueID}
	}
	e.mu.Lock()
	seq := e.current().Seq()
	evts, err := e.Log.Replay(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := evts[:0]
	for _, evt := range evts {
		if evt.Seq > seq {
			break
		}
		if issueID == "" || slices.Contains(evt.IssueIDs(), issueID) {
			out = append(out, evt)
		}
	}
	return out, nil
}

// IssueEvents returns the history of one issue.
func (e *Engine) IssueEvents(ctx context.Context, issueID string) ([]events.Event, error) {
	if issueID == "" {
		return nil, domain.ValidationError{Field: "issue_id", Msg: "issue_id is required"}
	}
	return e.Events(ctx, issueID)
}
