package graph_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"issueline/internal/domain"
	"issueline/internal/graph"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	issues []domain.Issue
	byID   map[string]domain.Issue
}

func (f *fixture) add(id string, p domain.Priority, status domain.Status) {
	issue := domain.Issue{
		ID:        id,
		Title:     id,
		Priority:  p,
		Status:    status,
		CreatedAt: base.Add(time.Duration(len(f.issues)) * time.Second),
	}
	f.issues = append(f.issues, issue)
	f.byID[id] = issue
}

func (f *fixture) lookup(id string) (domain.Issue, bool) {
	issue, ok := f.byID[id]
	return issue, ok
}

func newFixture() *fixture {
	return &fixture{byID: map[string]domain.Issue{}}
}

func ids(issues []domain.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.ID)
	}
	return out
}

func TestWouldCycle(t *testing.T) {
	g := graph.New()
	// a waits on b, b waits on c
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	if _, cyc := g.WouldCycle("a", "c"); cyc {
		t.Fatalf("a -> c is a shortcut, not a cycle")
	}
	path, cyc := g.WouldCycle("c", "a")
	if !cyc {
		t.Fatalf("expected c -> a to close a cycle")
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, path); diff != "" {
		t.Fatalf("cycle path mismatch (-want +got):\n%s", diff)
	}
	if _, cyc := g.WouldCycle("a", "a"); !cyc {
		t.Fatalf("expected self edge to be a cycle")
	}
}

func TestAddEdgeIgnoresDuplicates(t *testing.T) {
	g := graph.New()
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")
	if got := g.BlockersOf("a"); len(got) != 1 {
		t.Fatalf("expected single blocker, got %v", got)
	}
	if got := g.DependentsOf("b"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected dependent a, got %v", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := graph.New()
	g.AddEdge("a", "b")
	c := g.Clone()
	c.AddEdge("a", "c")
	g.AddEdge("a", "d")
	if diff := cmp.Diff([]string{"b", "d"}, g.BlockersOf("a")); diff != "" {
		t.Fatalf("original changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b", "c"}, c.BlockersOf("a")); diff != "" {
		t.Fatalf("clone changed (-want +got):\n%s", diff)
	}
}

func TestReadyOrderingAndLimit(t *testing.T) {
	f := newFixture()
	f.add("p2", 2, domain.StatusOpen)
	f.add("p0", 0, domain.StatusOpen)
	f.add("p4", 4, domain.StatusOpen)
	f.add("p1", 1, domain.StatusOpen)
	g := graph.New()

	got := ids(g.Ready(f.issues, f.lookup, 0))
	if diff := cmp.Diff([]string{"p0", "p1", "p2", "p4"}, got); diff != "" {
		t.Fatalf("ready order (-want +got):\n%s", diff)
	}
	got = ids(g.Ready(f.issues, f.lookup, 2))
	if diff := cmp.Diff([]string{"p0", "p1"}, got); diff != "" {
		t.Fatalf("ready limit (-want +got):\n%s", diff)
	}
}

func TestReadyTieKeepsCreationOrder(t *testing.T) {
	f := newFixture()
	for _, id := range []string{"x", "y", "z"} {
		f.issues = append(f.issues, domain.Issue{ID: id, Status: domain.StatusOpen, Priority: 2, CreatedAt: base})
		f.byID[id] = f.issues[len(f.issues)-1]
	}
	got := ids(graph.New().Ready(f.issues, f.lookup, 0))
	if diff := cmp.Diff([]string{"x", "y", "z"}, got); diff != "" {
		t.Fatalf("tie order (-want +got):\n%s", diff)
	}
}

func TestReadyAndBlocked(t *testing.T) {
	f := newFixture()
	f.add("a", 2, domain.StatusOpen)
	f.add("b", 1, domain.StatusOpen)
	f.add("c", 0, domain.StatusClosed)
	f.add("d", 3, domain.StatusOpen)
	g := graph.New()
	g.AddEdge("a", "b") // a waits on open b
	g.AddEdge("d", "c") // d waits on closed c

	ready := ids(g.Ready(f.issues, f.lookup, 0))
	if diff := cmp.Diff([]string{"b", "d"}, ready); diff != "" {
		t.Fatalf("ready (-want +got):\n%s", diff)
	}
	blocked := g.Blocked(f.issues, f.lookup)
	if len(blocked) != 1 || blocked[0].Issue.ID != "a" {
		t.Fatalf("expected only a blocked, got %+v", blocked)
	}
	if diff := cmp.Diff([]string{"b"}, ids(blocked[0].Blockers)); diff != "" {
		t.Fatalf("blockers (-want +got):\n%s", diff)
	}

	// ready and blocked partition the open issues
	seen := map[string]bool{}
	for _, id := range ready {
		seen[id] = true
	}
	for _, b := range blocked {
		if seen[b.Issue.ID] {
			t.Fatalf("%s is both ready and blocked", b.Issue.ID)
		}
		seen[b.Issue.ID] = true
	}
	for _, issue := range f.issues {
		if issue.Status == domain.StatusOpen && !seen[issue.ID] {
			t.Fatalf("open issue %s is neither ready nor blocked", issue.ID)
		}
	}
}

func TestBlockerListOrdering(t *testing.T) {
	f := newFixture()
	f.add("target", 2, domain.StatusOpen)
	f.add("low", 3, domain.StatusOpen)
	f.add("crit", 0, domain.StatusOpen)
	f.add("done", 0, domain.StatusClosed)
	g := graph.New()
	g.AddEdge("target", "low")
	g.AddEdge("target", "done")
	g.AddEdge("target", "crit")

	blocked := g.Blocked(f.issues, f.lookup)
	var got []string
	for _, b := range blocked {
		if b.Issue.ID == "target" {
			got = ids(b.Blockers)
		}
	}
	if diff := cmp.Diff([]string{"crit", "low"}, got); diff != "" {
		t.Fatalf("blocker order (-want +got):\n%s", diff)
	}
}

func TestUnresolvedBlockerStaysBlocking(t *testing.T) {
	f := newFixture()
	f.add("a", 1, domain.StatusOpen)
	g := graph.New()
	g.AddEdge("a", "ghost")

	if ready := g.Ready(f.issues, f.lookup, 0); len(ready) != 0 {
		t.Fatalf("expected nothing ready, got %v", ids(ready))
	}
	blocked := g.Blocked(f.issues, f.lookup)
	if len(blocked) != 1 || blocked[0].Issue.ID != "a" {
		t.Fatalf("expected a blocked, got %+v", blocked)
	}
	if diff := cmp.Diff([]string{"ghost"}, ids(blocked[0].Blockers)); diff != "" {
		t.Fatalf("blockers (-want +got):\n%s", diff)
	}
}

func TestBlockersAreCopies(t *testing.T) {
	f := newFixture()
	f.add("a", 1, domain.StatusOpen)
	f.add("b", 2, domain.StatusOpen)
	blocker := f.byID["a"]
	blocker.Metadata = map[string]any{"k": "v"}
	f.byID["a"] = blocker
	g := graph.New()
	g.AddEdge("b", "a")

	blocked := g.Blocked(f.issues, f.lookup)
	if len(blocked) != 1 {
		t.Fatalf("expected one blocked issue, got %+v", blocked)
	}
	blocked[0].Blockers[0].Metadata["k"] = "changed"
	if f.byID["a"].Metadata["k"] != "v" {
		t.Fatalf("blocker metadata shared with lookup source")
	}
}
