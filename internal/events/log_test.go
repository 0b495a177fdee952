package events_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"issueline/internal/domain"
	"issueline/internal/events"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func openLog(t *testing.T, dir string) *events.Log {
	t.Helper()
	l, err := events.Open(dir, events.Options{})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func appendCreated(t *testing.T, l *events.Log, id string) events.Event {
	t.Helper()
	evt, err := events.New(events.IssueCreated, "tester", testTime, events.IssueCreatedPayload{
		ID: id, Title: "issue " + id, Priority: domain.PriorityDefault, IssueType: "task",
	})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	evt, err = l.Append(context.Background(), evt)
	if err != nil {
		t.Fatalf("append %s: %v", id, err)
	}
	return evt
}

func TestAppendAssignsSequence(t *testing.T) {
	l := openLog(t, t.TempDir())
	first := appendCreated(t, l, "a")
	second := appendCreated(t, l, "b")
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", first.Seq, second.Seq)
	}
	if l.LastSeq() != 2 {
		t.Fatalf("expected last seq 2, got %d", l.LastSeq())
	}

	stale, _ := events.New(events.IssueClosed, "tester", testTime, events.IssueClosedPayload{ID: "a"})
	stale.Seq = 2
	if _, err := l.Append(context.Background(), stale); err == nil {
		t.Fatalf("expected non-increasing sequence to be rejected")
	}
}

func TestReplayReadsWhatWasAppended(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)
	appendCreated(t, l, "a")
	appendCreated(t, l, "b")

	reopened := openLog(t, dir)
	evts, err := reopened.Tail(context.Background())
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	var p events.IssueCreatedPayload
	if err := evts[1].Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != "b" || evts[1].Type != events.IssueCreated || !evts[1].Timestamp.Equal(testTime) {
		t.Fatalf("unexpected event %+v payload %+v", evts[1], p)
	}
	if reopened.Offset() != l.Offset() {
		t.Fatalf("offset mismatch: %d vs %d", reopened.Offset(), l.Offset())
	}
	more, err := reopened.Tail(context.Background())
	if err != nil || len(more) != 0 {
		t.Fatalf("expected empty tail, got %d events err=%v", len(more), err)
	}
}

func TestTornTrailingRecordIsIgnoredThenTruncated(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)
	appendCreated(t, l, "a")
	good := l.Offset()

	f, err := os.OpenFile(filepath.Join(dir, events.FileName), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"sequence_no":2,"event_type":"issue_cr`); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	reopened := openLog(t, dir)
	evts, err := reopened.Tail(context.Background())
	if err != nil {
		t.Fatalf("tail with torn record: %v", err)
	}
	if len(evts) != 1 || reopened.Offset() != good {
		t.Fatalf("expected 1 event at offset %d, got %d at %d", good, len(evts), reopened.Offset())
	}

	appendCreated(t, reopened, "b")
	all, err := reopened.Replay(context.Background())
	if err != nil {
		t.Fatalf("replay after truncation: %v", err)
	}
	if len(all) != 2 || all[1].Seq != 2 {
		t.Fatalf("expected clean 2-event log, got %d", len(all))
	}
}

func TestUndecodableFinalLineIsTorn(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)
	appendCreated(t, l, "a")
	f, _ := os.OpenFile(filepath.Join(dir, events.FileName), os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString("{not json}\n")
	_ = f.Close()

	evts, err := openLog(t, dir).Replay(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
}

func TestCorruptMiddleRecord(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir)
	appendCreated(t, l, "a")
	f, _ := os.OpenFile(filepath.Join(dir, events.FileName), os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString("garbage\n")
	_, _ = f.WriteString(`{"sequence_no":2,"timestamp":"2024-01-01T00:00:00Z","actor":"x","event_type":"issue_closed","payload":{"id":"a"}}` + "\n")
	_ = f.Close()

	_, err := openLog(t, dir).Replay(context.Background())
	var corrupt domain.CorruptionError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected corruption error, got %v", err)
	}
	if corrupt.Line != 2 || !errors.Is(err, domain.ErrCorruption) {
		t.Fatalf("expected corruption on line 2, got %+v", corrupt)
	}
}

func TestSequenceRegressionIsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, events.FileName)
	data := `{"sequence_no":1,"timestamp":"2024-01-01T00:00:00Z","actor":"x","event_type":"issue_created","payload":{"id":"a","title":"a","priority":2,"issue_type":"task"}}
{"sequence_no":1,"timestamp":"2024-01-01T00:00:00Z","actor":"x","event_type":"issue_closed","payload":{"id":"a"}}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := openLog(t, dir).Replay(context.Background())
	if !errors.Is(err, domain.ErrCorruption) {
		t.Fatalf("expected corruption, got %v", err)
	}
}

func TestIssueIDs(t *testing.T) {
	evt, _ := events.New(events.DependencyAdded, "tester", testTime, events.DependencyAddedPayload{BlockedID: "a", BlockerID: "b"})
	ids := evt.IssueIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
