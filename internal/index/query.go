package index

import (
	"slices"

	"issueline/internal/domain"
)

// Get returns a copy of the issue.
func (idx *Index) Get(id string) (domain.Issue, bool) {
	issue, ok := idx.issues[id]
	if !ok {
		return domain.Issue{}, false
	}
	return issue.Clone(), true
}

// Has reports whether the issue exists without copying it.
func (idx *Index) Has(id string) bool {
	_, ok := idx.issues[id]
	return ok
}

// Issues returns copies of every issue in creation order.
func (idx *Index) Issues() []domain.Issue {
	return idx.List(domain.IssueFilter{})
}

// List returns copies of the issues matching filter, in creation order.
func (idx *Index) List(filter domain.IssueFilter) []domain.Issue {
	out := make([]domain.Issue, 0, len(idx.order))
	for _, id := range idx.order {
		issue := idx.issues[id]
		if filter.Matches(issue) {
			out = append(out, issue.Clone())
		}
	}
	return out
}

// Dependencies returns every edge in insertion order.
func (idx *Index) Dependencies() []domain.Dependency {
	return slices.Clone(idx.deps)
}

// Ready returns the open issues whose blockers are all closed, narrowed by
// filter and cut to limit when limit > 0.
func (idx *Index) Ready(filter domain.IssueFilter, limit int) []domain.Issue {
	return idx.graph.Ready(idx.List(filter), idx.lookup, limit)
}

// Blocked returns the open issues that still wait on an open blocker.
func (idx *Index) Blocked() []domain.BlockedIssue {
	return idx.graph.Blocked(idx.Issues(), idx.lookup)
}

// IsReady reports whether the issue is open with every blocker closed.
func (idx *Index) IsReady(id string) bool {
	issue, ok := idx.issues[id]
	return ok && idx.graph.IsReady(issue, idx.lookup)
}

// Blockers returns every issue id waits on, regardless of status.
func (idx *Index) Blockers(id string) []domain.Issue {
	return idx.resolve(idx.graph.BlockersOf(id))
}

// Dependents returns every issue waiting on id, regardless of status.
func (idx *Index) Dependents(id string) []domain.Issue {
	return idx.resolve(idx.graph.DependentsOf(id))
}

// WouldCycle reports whether blocked -> blocker would close a cycle.
func (idx *Index) WouldCycle(blocked, blocker string) ([]string, bool) {
	return idx.graph.WouldCycle(blocked, blocker)
}

// HasDependency reports whether the edge already exists.
func (idx *Index) HasDependency(blocked, blocker string) bool {
	return idx.graph.HasEdge(blocked, blocker)
}

// Dependency returns the recorded edge.
func (idx *Index) Dependency(blocked, blocker string) (domain.Dependency, bool) {
	for _, dep := range idx.deps {
		if dep.BlockedID == blocked && dep.BlockerID == blocker {
			return dep, true
		}
	}
	return domain.Dependency{}, false
}

func (idx *Index) resolve(ids []string) []domain.Issue {
	out := make([]domain.Issue, 0, len(ids))
	for _, id := range ids {
		if issue, ok := idx.issues[id]; ok {
			out = append(out, issue.Clone())
		}
	}
	return out
}

func (idx *Index) lookup(id string) (domain.Issue, bool) {
	issue, ok := idx.issues[id]
	return issue, ok
}
