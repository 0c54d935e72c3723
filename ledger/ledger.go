// Package ledger is the durable SQLite-backed system of record:
// activity_log, erasure_log, releases, budget, salt_epochs and a
// day_sketch_blob cache. It is the source of truth the in-memory
// WindowStore is always reconstructible from.
//
// A single *sql.DB wrapped in a small struct, schema applied with
// CREATE TABLE IF NOT EXISTS at Open time, and explicit *sql.Tx
// threaded through every mutating call so a caller (the pipeline) can
// compose several ledger operations into one atomic commit.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/faults"
)

const dayLayout = "2006-01-02"

// DayKey formats t as the canonical TEXT day key stored in every table.
func DayKey(t time.Time) string { return t.UTC().Format(dayLayout) }

// ParseDay parses a canonical day key back into a UTC time.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(dayLayout, s)
}

// Ledger wraps the SQLite connection and tracks, per day, whether the
// most recent rebuild of that day had to fall back to a Bloom filter
// for the removed-set side of the diff.
type Ledger struct {
	db     *sql.DB
	logger zerolog.Logger

	bloomMu   sync.Mutex
	bloomUsed map[string]bool
}

// Open creates (if absent) the SQLite file at path, applies the
// schema, and returns a ready Ledger. WAL journaling is set via the
// DSN so readers never block the single writer, mirroring the
// pipeline's single-writer discipline at the storage layer.
func Open(path string, logger zerolog.Logger) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, faults.New(faults.KindFatal, "create data dir: "+err.Error(), "path", dir)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, faults.New(faults.KindFatal, "open sqlite: "+err.Error())
	}
	db.SetMaxOpenConns(1) // single-writer discipline
	if err := db.Ping(); err != nil {
		return nil, faults.New(faults.KindFatal, "ping sqlite: "+err.Error())
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, faults.New(faults.KindFatal, "apply schema: "+err.Error())
	}
	return &Ledger{
		db:        db,
		logger:    logger.With().Str("component", "ledger").Logger(),
		bloomUsed: make(map[string]bool),
	}, nil
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Begin starts a transaction. Callers must Commit or Rollback.
func (l *Ledger) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, faults.New(faults.KindTransient, "begin tx: "+err.Error())
	}
	return tx, nil
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on any error fn returns or panics with.
func (l *Ledger) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := l.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return faults.New(faults.KindTransient, "commit tx: "+err.Error())
	}
	return nil
}

// Backup writes a consistent point-in-time copy of the ledger to
// destPath using SQLite's online `VACUUM INTO`, creating destPath's
// parent directory if needed. Used before rare, high-consequence
// operator operations (salt rotation, budget reset) so a bad mutation
// is always recoverable from the immediately preceding snapshot.
func (l *Ledger) Backup(ctx context.Context, destPath string) error {
	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return faults.New(faults.KindTransient, "create backup dir: "+err.Error(), "path", dir)
		}
	}
	if _, err := l.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return faults.New(faults.KindTransient, "vacuum into backup: "+err.Error(), "dest", destPath)
	}
	return nil
}

func (l *Ledger) markBloomUsed(day string, used bool) {
	l.bloomMu.Lock()
	defer l.bloomMu.Unlock()
	if used {
		l.bloomUsed[day] = true
	} else {
		delete(l.bloomUsed, day)
	}
}

// AnyBloomBias reports whether any of days had its last rebuild fall
// back to a Bloom-filter approximation for the removed set, surfaced
// by releases as a possible-undercount warning.
func (l *Ledger) AnyBloomBias(days []time.Time) bool {
	l.bloomMu.Lock()
	defer l.bloomMu.Unlock()
	for _, d := range days {
		if l.bloomUsed[DayKey(d)] {
			return true
		}
	}
	return false
}
