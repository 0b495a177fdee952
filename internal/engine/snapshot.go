package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"issueline/internal/events"
	"issueline/internal/index"
	"issueline/internal/repo"
)

var ErrSnapshotsDisabled = errors.New("snapshots are disabled (store.snapshot: false)")

// SnapshotStatus describes the stored snapshot relative to the event log.
type SnapshotStatus struct {
	Present   bool      `json:"present"`
	Valid     bool      `json:"valid"`
	LastSeq   int64     `json:"last_seq"`
	LogOffset int64     `json:"log_offset"`
	SavedAt   time.Time `json:"saved_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (e *Engine) restoreSnapshot(ctx context.Context) (*index.Index, bool) {
	if e.Repo == nil {
		return nil, false
	}
	snap, err := e.Repo.LoadSnapshot(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		e.Logger.Warn("snapshot unreadable; replaying log", "error", err)
		return nil, false
	}
	lines, err := e.matchLog(snap)
	if err != nil {
		e.Logger.Warn("snapshot does not match event log; replaying log", "error", err)
		return nil, false
	}
	idx, err := index.Restore(snap.LastSeq, snap.Issues, snap.Dependencies)
	if err != nil {
		e.Logger.Warn("snapshot restore failed; replaying log", "error", err)
		return nil, false
	}
	e.Log.Seek(events.Cursor{Offset: snap.LogOffset, Line: lines, Seq: snap.LastSeq})
	return idx, true
}

// matchLog checks that the snapshot covers the current log prefix and
// returns the number of lines in that prefix.
func (e *Engine) matchLog(snap repo.Snapshot) (int, error) {
	hash, lines, err := repo.HashPrefix(e.Log.Path(), snap.LogOffset)
	if err != nil {
		return 0, err
	}
	if hash != snap.LogHash {
		return 0, fmt.Errorf("log prefix hash %s differs from snapshot %s", hash, snap.LogHash)
	}
	return lines, nil
}

// SaveSnapshot stores the current index when it is newer than the stored
// snapshot. It reports whether anything was written.
func (e *Engine) SaveSnapshot(ctx context.Context) (bool, error) {
	if e.Repo == nil {
		return false, ErrSnapshotsDisabled
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.current()
	if idx == nil {
		return false, nil
	}
	offset := e.Log.Offset()
	hash, _, err := repo.HashPrefix(e.Log.Path(), offset)
	if err != nil {
		return false, err
	}
	meta, err := e.Repo.LoadMeta(ctx)
	switch {
	case errors.Is(err, repo.ErrNotFound):
	case err != nil:
		return false, err
	case meta.LastSeq > idx.Seq():
		return false, nil
	case meta.LastSeq == idx.Seq() && meta.LogOffset == offset && meta.LogHash == hash:
		return false, nil
	}
	err = e.Repo.SaveSnapshot(ctx, repo.Snapshot{
		LastSeq:      idx.Seq(),
		LogOffset:    offset,
		LogHash:      hash,
		SavedAt:      e.now(),
		Issues:       idx.Issues(),
		Dependencies: idx.Dependencies(),
	})
	if err != nil {
		return false, err
	}
	e.Logger.Info("snapshot saved", "seq", idx.Seq(), "issues", idx.Len())
	return true, nil
}

// VerifySnapshot checks the stored snapshot against the log and against a
// full replay of the events it covers.
func (e *Engine) VerifySnapshot(ctx context.Context) (SnapshotStatus, error) {
	if e.Repo == nil {
		return SnapshotStatus{}, ErrSnapshotsDisabled
	}
	snap, err := e.Repo.LoadSnapshot(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return SnapshotStatus{Reason: "no snapshot saved"}, nil
	}
	if err != nil {
		return SnapshotStatus{}, err
	}
	status := SnapshotStatus{
		Present:   true,
		LastSeq:   snap.LastSeq,
		LogOffset: snap.LogOffset,
		SavedAt:   snap.SavedAt,
	}
	if _, err := e.matchLog(snap); err != nil {
		status.Reason = err.Error()
		return status, nil
	}
	restored, err := index.Restore(snap.LastSeq, snap.Issues, snap.Dependencies)
	if err != nil {
		status.Reason = err.Error()
		return status, nil
	}

	e.mu.Lock()
	evts, err := e.Log.Replay(ctx)
	e.mu.Unlock()
	if err != nil {
		return status, err
	}
	var covered []events.Event
	for _, evt := range evts {
		if evt.Seq <= snap.LastSeq {
			covered = append(covered, evt)
		}
	}
	replayed, err := index.Fold(covered)
	if err != nil {
		return status, err
	}
	same, err := sameState(restored, replayed)
	if err != nil {
		return status, err
	}
	if !same {
		status.Reason = "snapshot state differs from replay"
		return status, nil
	}
	status.Valid = true
	return status, nil
}

func sameState(a, b *index.Index) (bool, error) {
	if a.Seq() != b.Seq() {
		return false, nil
	}
	for _, pair := range [][2]any{
		{a.Issues(), b.Issues()},
		{a.Dependencies(), b.Dependencies()},
	} {
		left, err := json.Marshal(pair[0])
		if err != nil {
			return false, err
		}
		right, err := json.Marshal(pair[1])
		if err != nil {
			return false, err
		}
		if !bytes.Equal(left, right) {
			return false, nil
		}
	}
	return true, nil
}
