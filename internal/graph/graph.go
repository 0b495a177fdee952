// Package graph holds the "blocks" dependency edges between issues and
// derives readiness from them.
package graph

import (
	"cmp"
	"slices"

	"issueline/internal/domain"
)

// Lookup resolves an issue by ID from the caller's current state.
type Lookup func(id string) (domain.Issue, bool)

// Graph is a directed acyclic graph of blocks edges. Edge lists keep
// insertion order. The zero value is not usable; call New.
type Graph struct {
	// blockedBy: issue ID -> IDs it waits on (forward edges).
	// blocks: issue ID -> IDs waiting on it (reverse edges).
	blockedBy map[string][]string
	blocks    map[string][]string
}

func New() *Graph {
	return &Graph{
		blockedBy: make(map[string][]string),
		blocks:    make(map[string][]string),
	}
}

// Clone copies the adjacency maps. Slices are clipped so appends on either
// side never write into shared backing arrays.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		blockedBy: make(map[string][]string, len(g.blockedBy)),
		blocks:    make(map[string][]string, len(g.blocks)),
	}
	for k, v := range g.blockedBy {
		out.blockedBy[k] = slices.Clip(v)
	}
	for k, v := range g.blocks {
		out.blocks[k] = slices.Clip(v)
	}
	return out
}

// HasEdge reports whether blocked already waits on blocker.
func (g *Graph) HasEdge(blocked, blocker string) bool {
	return slices.Contains(g.blockedBy[blocked], blocker)
}

// AddEdge records that blocked waits on blocker. Callers check WouldCycle
// first; AddEdge does not.
func (g *Graph) AddEdge(blocked, blocker string) {
	if g.HasEdge(blocked, blocker) {
		return
	}
	g.blockedBy[blocked] = append(g.blockedBy[blocked], blocker)
	g.blocks[blocker] = append(g.blocks[blocker], blocked)
}

// WouldCycle reports whether adding blocked -> blocker would close a cycle.
// When it would, the returned path runs from blocker to blocked over
// existing blockedBy edges. A self edge is a cycle of length one.
func (g *Graph) WouldCycle(blocked, blocker string) ([]string, bool) {
	if blocked == blocker {
		return []string{blocker}, true
	}
	prev := map[string]string{blocker: ""}
	queue := []string{blocker}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.blockedBy[current] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = current
			if next == blocked {
				return tracePath(prev, blocker, blocked), true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

func tracePath(prev map[string]string, from, to string) []string {
	var path []string
	for at := to; ; at = prev[at] {
		path = append(path, at)
		if at == from {
			break
		}
	}
	slices.Reverse(path)
	return path
}

// BlockersOf returns the IDs id waits on, in edge insertion order.
func (g *Graph) BlockersOf(id string) []string {
	return slices.Clone(g.blockedBy[id])
}

// DependentsOf returns the IDs waiting on id, in edge insertion order.
func (g *Graph) DependentsOf(id string) []string {
	return slices.Clone(g.blocks[id])
}

// IsReady reports whether the issue is open and every blocker is closed.
// A blocker that cannot be resolved counts as open.
func (g *Graph) IsReady(issue domain.Issue, lookup Lookup) bool {
	if issue.Status != domain.StatusOpen {
		return false
	}
	for _, id := range g.blockedBy[issue.ID] {
		if _, open := openBlocker(id, lookup); open {
			return false
		}
	}
	return true
}

// openBlocker resolves a blocker and reports whether it still blocks. An
// unresolvable blocker is reported as an open stub carrying only its ID.
func openBlocker(id string, lookup Lookup) (domain.Issue, bool) {
	blocker, ok := lookup(id)
	if !ok {
		return domain.Issue{ID: id, Status: domain.StatusOpen}, true
	}
	if blocker.Status == domain.StatusClosed {
		return domain.Issue{}, false
	}
	return blocker, true
}

func (g *Graph) openBlockers(id string, lookup Lookup, pos map[string]int) []domain.Issue {
	var out []domain.Issue
	for _, blockerID := range g.blockedBy[id] {
		if blocker, open := openBlocker(blockerID, lookup); open {
			out = append(out, blocker.Clone())
		}
	}
	slices.SortFunc(out, func(a, b domain.Issue) int {
		return cmp.Compare(pos[a.ID], pos[b.ID])
	})
	SortIssues(out)
	return out
}

// Ready returns the ready subset of issues, ordered by SortIssues and cut to
// limit when limit > 0. issues must be in creation order.
func (g *Graph) Ready(issues []domain.Issue, lookup Lookup, limit int) []domain.Issue {
	var out []domain.Issue
	for _, issue := range issues {
		if g.IsReady(issue, lookup) {
			out = append(out, issue)
		}
	}
	SortIssues(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Blocked returns every open issue with at least one open blocker, paired
// with those blockers. issues must be every issue, in creation order.
func (g *Graph) Blocked(issues []domain.Issue, lookup Lookup) []domain.BlockedIssue {
	pos := make(map[string]int, len(issues))
	var open []domain.Issue
	for i, issue := range issues {
		pos[issue.ID] = i
		if issue.Status == domain.StatusOpen {
			open = append(open, issue)
		}
	}
	SortIssues(open)
	var out []domain.BlockedIssue
	for _, issue := range open {
		if blockers := g.openBlockers(issue.ID, lookup, pos); len(blockers) > 0 {
			out = append(out, domain.BlockedIssue{Issue: issue, Blockers: blockers})
		}
	}
	return out
}

// SortIssues orders by priority ascending, then created_at ascending. The
// sort is stable, so input in creation order keeps it for equal keys.
func SortIssues(issues []domain.Issue) {
	slices.SortStableFunc(issues, func(a, b domain.Issue) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
