package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"issueline/internal/config"
	"issueline/internal/db"
	"issueline/internal/events"
	"issueline/internal/index"
	"issueline/internal/migrate"
	"issueline/internal/repo"
)

const lockFileName = ".lock"

// ErrLocked is returned when the store lock cannot be acquired in time.
var ErrLocked = errors.New("store is locked by another writer")

type Options struct {
	// StoreDir holds the event log, lock file and snapshot.
	StoreDir string
	Config   *config.Config
	Logger   *slog.Logger
	Now      func() time.Time
	// NewID overrides issue ID generation.
	NewID func() (string, error)
}

// Engine is the issue store. Reads are served from an immutable index
// snapshot; writes are serialized by a mutex and the store file lock.
type Engine struct {
	Log    *events.Log
	Repo   *repo.Repo
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() (string, error)

	storeDir string
	db       *sql.DB
	mu       sync.Mutex
	lock     *flock.Flock
	state    atomic.Pointer[index.Index]
}

// Open loads the store in opts.StoreDir, restoring from a valid snapshot
// when one exists and replaying the log otherwise.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if opts.StoreDir == "" {
		return nil, errors.New("store dir is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("store", opts.StoreDir)

	log, err := events.Open(opts.StoreDir, events.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	e := &Engine{
		Log:      log,
		Config:   cfg,
		Logger:   logger,
		Now:      opts.Now,
		NewID:    opts.NewID,
		storeDir: opts.StoreDir,
		lock:     flock.New(filepath.Join(opts.StoreDir, lockFileName)),
	}
	if cfg.Store.Snapshot {
		if err := e.openSnapshotStore(ctx); err != nil {
			logger.Warn("snapshot store unavailable; using full replay", "error", err)
		}
	}

	start := time.Now()
	idx, restored := e.restoreSnapshot(ctx)
	if idx == nil {
		idx = index.New()
	}
	evts, err := e.Log.Tail(ctx)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("replay %s: %w", e.Log.Path(), err)
	}
	for _, evt := range evts {
		if err := idx.Apply(evt); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("replay %s: %w", e.Log.Path(), err)
		}
	}
	e.state.Store(idx)
	logger.Info("store opened",
		"issues", idx.Len(),
		"seq", idx.Seq(),
		"replayed", len(evts),
		"from_snapshot", restored,
		"elapsed", time.Since(start))
	return e, nil
}

func (e *Engine) openSnapshotStore(ctx context.Context) error {
	conn, err := db.Open(db.Config{StoreDir: e.storeDir})
	if err != nil {
		return err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}
	e.db = conn
	e.Repo = &repo.Repo{DB: conn}
	return nil
}

// Close saves a snapshot when enabled and releases the store files.
func (e *Engine) Close() error {
	var errs []error
	if e.Repo != nil {
		if _, err := e.SaveSnapshot(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("save snapshot: %w", err))
		}
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
		e.db = nil
		e.Repo = nil
	}
	if e.Log != nil {
		errs = append(errs, e.Log.Close())
	}
	return errors.Join(errs...)
}

// StoreDir returns the directory holding the event log.
func (e *Engine) StoreDir() string { return e.storeDir }

// Sequence is the sequence number of the last event reflected in reads.
func (e *Engine) Sequence() int64 { return e.current().Seq() }

func (e *Engine) current() *index.Index { return e.state.Load() }

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) newID() (string, error) {
	var id string
	if e.NewID != nil {
		var err error
		if id, err = e.NewID(); err != nil {
			return "", err
		}
	} else {
		u, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate issue id: %w", err)
		}
		id = u.String()
	}
	if p := e.Config.Issues.IDPrefix; p != "" {
		id = p + "-" + id
	}
	return id, nil
}

func (e *Engine) actor(override string) string {
	if override != "" {
		return override
	}
	if e.Config.Store.Actor != "" {
		return e.Config.Store.Actor
	}
	return "system"
}

// Refresh folds events appended by other processes into the index.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.catchUp(ctx)
	return err
}

// commit serializes one mutation. build sees the caught-up index and
// returns the event to append, or false when nothing needs writing. The
// event is applied to a clone before it is appended, so a rejected event
// never reaches the log.
func (e *Engine) commit(ctx context.Context, build func(cur *index.Index) (events.Event, bool, error)) (*index.Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	unlock, err := e.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := e.catchUp(ctx)
	if err != nil {
		return nil, err
	}
	evt, write, err := build(cur)
	if err != nil || !write {
		return cur, err
	}
	evt.Seq = e.Log.LastSeq() + 1
	next := cur.Clone()
	if err := next.Apply(evt); err != nil {
		return nil, err
	}
	if _, err := e.Log.Append(ctx, evt); err != nil {
		return nil, err
	}
	e.state.Store(next)
	e.Logger.Debug("event committed", "seq", evt.Seq, "type", evt.Type, "actor", evt.Actor)
	return next, nil
}

// catchUp tails the log past the local cursor. Callers hold e.mu.
func (e *Engine) catchUp(ctx context.Context) (*index.Index, error) {
	cur := e.current()
	mark := e.Log.Cursor()
	evts, err := e.Log.Tail(ctx)
	if err != nil {
		return nil, err
	}
	if len(evts) == 0 {
		return cur, nil
	}
	next := cur.Clone()
	for _, evt := range evts {
		if err := next.Apply(evt); err != nil {
			e.Log.Seek(mark)
			return nil, fmt.Errorf("catch up %s: %w", e.Log.Path(), err)
		}
	}
	e.state.Store(next)
	e.Logger.Debug("caught up with external writes", "events", len(evts), "seq", next.Seq())
	return next, nil
}

func (e *Engine) lockStore(ctx context.Context) (func(), error) {
	lockCtx := ctx
	timeout := e.Config.Store.LockTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ok, err := e.lock.TryLockContext(lockCtx, 25*time.Millisecond)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("lock store: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (waited %s)", ErrLocked, e.lock.Path(), timeout)
	}
	return func() {
		if err := e.lock.Unlock(); err != nil {
			e.Logger.Error("unlock store", "error", err)
		}
	}, nil
}
