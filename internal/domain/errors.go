package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is; the typed errors below match them.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrDuplicateIssue = errors.New("duplicate issue")
	ErrCycle          = errors.New("dependency cycle")
	ErrCorruption     = errors.New("event log corrupted")
)

// ValidationError indicates malformed or missing caller input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError indicates a referenced issue does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "issue"
	}
	return fmt.Sprintf("%s %s not found", kind, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateIssueError is an ID collision; it signals a broken invariant.
type DuplicateIssueError struct {
	ID string
}

func (e DuplicateIssueError) Error() string {
	return fmt.Sprintf("issue %s already exists", e.ID)
}

func (e DuplicateIssueError) Is(target error) bool { return target == ErrDuplicateIssue }

// CycleError rejects a dependency that would close a cycle. Path runs from
// the proposed blocker back to the blocked issue over existing edges.
type CycleError struct {
	BlockedID string
	BlockerID string
	Path      []string
}

func (e CycleError) Error() string {
	msg := fmt.Sprintf("dependency %s -> %s would create a cycle", e.BlockedID, e.BlockerID)
	if len(e.Path) > 0 {
		msg += " (" + strings.Join(e.Path, " -> ") + ")"
	}
	return msg
}

func (e CycleError) Is(target error) bool { return target == ErrCycle }

// CorruptionError reports an unreadable record that is not a torn final write.
type CorruptionError struct {
	Path   string
	Line   int
	Offset int64
	Err    error
}

func (e CorruptionError) Error() string {
	return fmt.Sprintf("%s:%d (offset %d): corrupt event record: %v", e.Path, e.Line, e.Offset, e.Err)
}

func (e CorruptionError) Is(target error) bool { return target == ErrCorruption }

func (e CorruptionError) Unwrap() error { return e.Err }
