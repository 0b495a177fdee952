package events

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"issueline/internal/domain"
)

const FileName = "events.jsonl"

type Options struct {
	Logger *slog.Logger
	// ReadRetries bounds retries of transient I/O errors while reading.
	ReadRetries uint64
	// RetryInterval is the first backoff interval; it doubles per retry.
	RetryInterval time.Duration
}

// Log is the append-only JSON Lines event log. It is not safe for concurrent
// use; callers serialize access.
type Log struct {
	path    string
	file    *os.File
	logger  *slog.Logger
	retries uint64
	retryIv time.Duration
	pos     Cursor
}

// Cursor marks the end of the last consumed record.
type Cursor struct {
	Offset int64
	Line   int
	Seq    int64
}

// Open opens or creates the log in dir. It does not read the log; call
// Tail or Replay to consume records.
func Open(dir string, opts Options) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	_, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if created {
		if err := syncDir(dir); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Log{
		path:    path,
		file:    f,
		logger:  logger,
		retries: opts.ReadRetries,
		retryIv: opts.RetryInterval,
	}
	if l.retries == 0 {
		l.retries = 3
	}
	if l.retryIv <= 0 {
		l.retryIv = 100 * time.Millisecond
	}
	return l, nil
}

func (l *Log) Path() string { return l.path }

// Offset is the byte offset just past the last consumed record.
func (l *Log) Offset() int64 { return l.pos.Offset }

// LastSeq is the sequence number of the last consumed record.
func (l *Log) LastSeq() int64 { return l.pos.Seq }

func (l *Log) Cursor() Cursor { return l.pos }

// Seek positions the cursor after a prefix that was consumed elsewhere,
// such as a verified snapshot, or rewinds a Tail whose events were rejected.
func (l *Log) Seek(c Cursor) {
	l.pos = c
}

// Replay reads every complete record from the start of the file without
// moving the cursor.
func (l *Log) Replay(ctx context.Context) ([]Event, error) {
	evts, _, err := l.read(ctx, Cursor{})
	return evts, err
}

// Tail reads the complete records written after the cursor and advances it.
func (l *Log) Tail(ctx context.Context) ([]Event, error) {
	evts, next, err := l.read(ctx, l.pos)
	if err != nil {
		return nil, err
	}
	l.pos = next
	return evts, nil
}

// Append writes one record and fsyncs it. A zero Seq is assigned as the
// next sequence number. On failure the file is truncated back to its prior
// length and the cursor does not move.
func (l *Log) Append(ctx context.Context, evt Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return evt, err
	}
	if evt.Seq == 0 {
		evt.Seq = l.pos.Seq + 1
	}
	if evt.Seq <= l.pos.Seq {
		return evt, fmt.Errorf("append event: sequence_no %d is not after %d", evt.Seq, l.pos.Seq)
	}
	if !evt.Type.Valid() {
		return evt, fmt.Errorf("append event: unknown event_type %q", evt.Type)
	}
	line, err := evt.encode()
	if err != nil {
		return evt, err
	}

	info, err := l.file.Stat()
	if err != nil {
		return evt, fmt.Errorf("stat event log: %w", err)
	}
	switch size := info.Size(); {
	case size > l.pos.Offset:
		l.logger.Warn("truncating unconsumed trailing bytes", "path", l.path, "offset", l.pos.Offset, "bytes", size-l.pos.Offset)
		if err := l.file.Truncate(l.pos.Offset); err != nil {
			return evt, fmt.Errorf("truncate torn record: %w", err)
		}
	case size < l.pos.Offset:
		return evt, domain.CorruptionError{Path: l.path, Offset: size, Err: fmt.Errorf("log shrank below consumed offset %d", l.pos.Offset)}
	}

	n, err := l.file.Write(line)
	if err == nil {
		err = l.file.Sync()
	}
	if err != nil {
		if terr := l.file.Truncate(l.pos.Offset); terr != nil {
			l.logger.Error("rollback of failed append", "path", l.path, "error", terr)
		}
		return evt, fmt.Errorf("append event %d: %w", evt.Seq, err)
	}
	l.pos = Cursor{Offset: l.pos.Offset + int64(n), Line: l.pos.Line + 1, Seq: evt.Seq}
	return evt, nil
}

func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Log) read(ctx context.Context, from Cursor) ([]Event, Cursor, error) {
	var (
		evts []Event
		next Cursor
	)
	op := func() error {
		var err error
		evts, next, err = l.readOnce(ctx, from)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.retryIv
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	notify := func(err error, wait time.Duration) {
		l.logger.Warn("retrying event log read", "path", l.path, "error", err, "wait", wait)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, l.retries), ctx), notify)
	if err != nil {
		return nil, from, err
	}
	return evts, next, nil
}

func (l *Log) readOnce(ctx context.Context, from Cursor) ([]Event, Cursor, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, from, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(from.Offset, io.SeekStart); err != nil {
		return nil, from, fmt.Errorf("seek event log: %w", err)
	}

	r := bufio.NewReader(f)
	cur := from
	var evts []Event
	for {
		if err := ctx.Err(); err != nil {
			return nil, from, err
		}
		data, err := r.ReadBytes('\n')
		if len(data) == 0 && errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.EOF) {
			l.logger.Warn("ignoring torn trailing record", "path", l.path, "offset", cur.Offset, "bytes", len(data))
			break
		}
		if err != nil {
			return nil, from, fmt.Errorf("read event log: %w", err)
		}
		lineNo := cur.Line + 1
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			cur.Offset += int64(len(data))
			cur.Line = lineNo
			continue
		}
		evt, derr := decodeRecord(trimmed)
		if derr != nil {
			if _, perr := r.Peek(1); errors.Is(perr, io.EOF) {
				l.logger.Warn("ignoring undecodable trailing record", "path", l.path, "line", lineNo, "error", derr)
				break
			}
			return nil, from, domain.CorruptionError{Path: l.path, Line: lineNo, Offset: cur.Offset, Err: derr}
		}
		if evt.Seq <= cur.Seq {
			return nil, from, domain.CorruptionError{
				Path:   l.path,
				Line:   lineNo,
				Offset: cur.Offset,
				Err:    fmt.Errorf("sequence_no %d is not after %d", evt.Seq, cur.Seq),
			}
		}
		evts = append(evts, evt)
		cur = Cursor{Offset: cur.Offset + int64(len(data)), Line: lineNo, Seq: evt.Seq}
	}
	return evts, cur, nil
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EIO) || errors.Is(err, syscall.EAGAIN)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open store dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync store dir: %w", err)
	}
	return nil
}
