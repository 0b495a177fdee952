package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const SnapshotFile = "snapshot.db"

type Config struct {
	// StoreDir is the directory holding the event log.
	StoreDir string
}

// Path returns the snapshot database path for a store directory.
func Path(storeDir string) string {
	if storeDir == "" {
		storeDir = "."
	}
	return filepath.Join(storeDir, SnapshotFile)
}

// Open opens the snapshot database. WAL mode lets a reader verify the
// snapshot while another process rewrites it.
func Open(cfg Config) (*sql.DB, error) {
	if err := os.MkdirAll(cfg.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", Path(cfg.StoreDir))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
