package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"issueline/internal/config"
	"issueline/internal/domain"
	"issueline/internal/engine"
	"issueline/internal/events"
	"issueline/internal/index"
)

func snapshotConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Snapshot = true
	return cfg
}

func replayIssues(t *testing.T, dir string) []domain.Issue {
	t.Helper()
	evts, err := mustLog(t, dir).Replay(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	idx, err := index.Fold(evts)
	if err != nil {
		t.Fatal(err)
	}
	return idx.Issues()
}

func seedStore(t *testing.T, env testEnv) {
	t.Helper()
	a := env.create(t, "a", 2)
	b := env.create(t, "b", 0)
	if _, err := env.Engine.AddDependency(env.Ctx, a.ID, b.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateIssueFields(env.Ctx, a.ID, map[string]any{"metadata": map[string]any{"labels": []any{"x", "y"}}}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CloseIssue(env.Ctx, b.ID, engine.CloseOptions{Reason: "done"}); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotRestoreEqualsReplay(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnvWith(t, dir, snapshotConfig())
	seedStore(t, env)
	saved, err := env.Engine.SaveSnapshot(env.Ctx)
	if err != nil || !saved {
		t.Fatalf("save snapshot: saved=%v err=%v", saved, err)
	}
	again, err := env.Engine.SaveSnapshot(env.Ctx)
	if err != nil || again {
		t.Fatalf("unchanged index should not be saved again: saved=%v err=%v", again, err)
	}
	_ = env.Engine.Close()

	reopened := newTestEnvWith(t, dir, snapshotConfig())
	status, err := reopened.Engine.VerifySnapshot(reopened.Ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !status.Valid || status.LastSeq != 5 {
		t.Fatalf("unexpected status %+v", status)
	}
	got, _ := reopened.Engine.ListIssues(reopened.Ctx, domain.IssueFilter{})
	if diff := cmp.Diff(replayIssues(t, dir), got); diff != "" {
		t.Fatalf("restored state differs from replay (-replay +restored):\n%s", diff)
	}
	blocked, _ := reopened.Engine.GetBlockedIssues(reopened.Ctx)
	if len(blocked) != 0 {
		t.Fatalf("expected nothing blocked, got %+v", blocked)
	}
	blockers, _ := reopened.Engine.Blockers(reopened.Ctx, got[0].ID)
	if len(blockers) != 1 {
		t.Fatalf("dependency lost in snapshot: %+v", blockers)
	}
}

func TestSnapshotTailsNewerEvents(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnvWith(t, dir, snapshotConfig())
	seedStore(t, env)
	_ = env.Engine.Close()

	// a writer without snapshots appends past the saved snapshot
	plain := config.Default()
	plain.Store.Snapshot = false
	writer := newTestEnvWith(t, dir, plain)
	c := writer.create(t, "c", 1)
	_ = writer.Engine.Close()

	reopened := newTestEnvWith(t, dir, snapshotConfig())
	if _, err := reopened.Engine.GetIssue(reopened.Ctx, c.ID); err != nil {
		t.Fatalf("event after snapshot not replayed: %v", err)
	}
	if reopened.Engine.Sequence() != 6 {
		t.Fatalf("expected seq 6, got %d", reopened.Engine.Sequence())
	}
	got, _ := reopened.Engine.ListIssues(reopened.Ctx, domain.IssueFilter{})
	if diff := cmp.Diff(replayIssues(t, dir), got); diff != "" {
		t.Fatalf("state differs from replay:\n%s", diff)
	}
}

func TestSnapshotIgnoredWhenLogRewritten(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnvWith(t, dir, snapshotConfig())
	seedStore(t, env)
	_ = env.Engine.Close()

	path := filepath.Join(dir, events.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rewritten := strings.Replace(string(data), `"title":"a"`, `"title":"A"`, 1)
	if err := os.WriteFile(path, []byte(rewritten), 0o644); err != nil {
		t.Fatal(err)
	}

	reopened := newTestEnvWith(t, dir, snapshotConfig())
	status, err := reopened.Engine.VerifySnapshot(reopened.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Valid || status.Reason == "" {
		t.Fatalf("expected stale snapshot, got %+v", status)
	}
	got, _ := reopened.Engine.ListIssues(reopened.Ctx, domain.IssueFilter{})
	if got[0].Title != "A" {
		t.Fatalf("expected replayed title from rewritten log, got %q", got[0].Title)
	}
}

func TestSnapshotDisabled(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SaveSnapshot(env.Ctx); !errors.Is(err, engine.ErrSnapshotsDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}
