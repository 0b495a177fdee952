package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"issueline/internal/domain"
)

// Repo persists the derived index snapshot. The event log stays
// authoritative; a snapshot only shortens startup.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Snapshot is the folded state covering the log prefix [0, LogOffset).
type Snapshot struct {
	LastSeq      int64
	LogOffset    int64
	LogHash      string
	SavedAt      time.Time
	Issues       []domain.Issue
	Dependencies []domain.Dependency
}

// SaveSnapshot replaces the stored snapshot.
func (r Repo) SaveSnapshot(ctx context.Context, s Snapshot) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM snapshot_meta`, `DELETE FROM snapshot_issues`, `DELETE FROM snapshot_dependencies`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
	}
	issueStmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_issues(ord,id,body_json) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer issueStmt.Close()
	for i, issue := range s.Issues {
		body, err := json.Marshal(issue)
		if err != nil {
			return fmt.Errorf("marshal issue %s: %w", issue.ID, err)
		}
		if _, err := issueStmt.ExecContext(ctx, i, issue.ID, string(body)); err != nil {
			return fmt.Errorf("insert snapshot issue %s: %w", issue.ID, err)
		}
	}
	depStmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_dependencies(ord,blocked_id,blocker_id,actor,created_at) VALUES (?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer depStmt.Close()
	for i, dep := range s.Dependencies {
		if _, err := depStmt.ExecContext(ctx, i, dep.BlockedID, dep.BlockerID, dep.Actor, dep.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert snapshot dependency %s->%s: %w", dep.BlockedID, dep.BlockerID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshot_meta(id,last_seq,log_offset,log_hash,saved_at) VALUES (1,?,?,?,?)`,
		s.LastSeq, s.LogOffset, s.LogHash, s.SavedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("insert snapshot meta: %w", err)
	}
	return tx.Commit()
}

// LoadMeta returns the snapshot header without issue bodies.
func (r Repo) LoadMeta(ctx context.Context) (Snapshot, error) {
	var (
		s       Snapshot
		savedAt string
	)
	err := r.DB.QueryRowContext(ctx, `SELECT last_seq,log_offset,log_hash,saved_at FROM snapshot_meta WHERE id=1`).
		Scan(&s.LastSeq, &s.LogOffset, &s.LogHash, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	if s.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return Snapshot{}, fmt.Errorf("parse saved_at: %w", err)
	}
	return s, nil
}

// LoadSnapshot returns the stored snapshot, or ErrNotFound.
func (r Repo) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	s, err := r.LoadMeta(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT body_json FROM snapshot_issues ORDER BY ord`)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return Snapshot{}, err
		}
		var issue domain.Issue
		if err := json.Unmarshal([]byte(body), &issue); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot issue: %w", err)
		}
		s.Issues = append(s.Issues, issue)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	depRows, err := r.DB.QueryContext(ctx, `SELECT blocked_id,blocker_id,actor,created_at FROM snapshot_dependencies ORDER BY ord`)
	if err != nil {
		return Snapshot{}, err
	}
	defer depRows.Close()
	for depRows.Next() {
		var (
			dep       domain.Dependency
			createdAt string
		)
		if err := depRows.Scan(&dep.BlockedID, &dep.BlockerID, &dep.Actor, &createdAt); err != nil {
			return Snapshot{}, err
		}
		if dep.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return Snapshot{}, fmt.Errorf("parse dependency created_at: %w", err)
		}
		s.Dependencies = append(s.Dependencies, dep)
	}
	return s, depRows.Err()
}

// HashPrefix hashes the first n bytes of the file at path and counts the
// newlines in them.
func HashPrefix(path string, n int64) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := blake3.New()
	var lines lineCounter
	copied, err := io.CopyN(io.MultiWriter(h, &lines), f, n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", 0, fmt.Errorf("log is %d bytes, shorter than snapshot offset %d", copied, n)
		}
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), int(lines), nil
}

type lineCounter int

func (c *lineCounter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			*c++
		}
	}
	return len(p), nil
}
