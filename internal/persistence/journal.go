// Package persistence keeps undelivered events across process restarts in a
// SQLite journal. Event payloads are stored snappy-compressed.
package persistence

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/internal/core"
	"github.com/teracrafts/posthog-go/types"
)

//go:embed schema.sql
var schemaSQL string

// JournalFile is the journal's file name inside the storage directory.
const JournalFile = "events.db"

// Journal stores event records in capture order.
type Journal struct {
	db     *sql.DB
	logger types.Logger
	now    func() time.Time
}

// Open creates or opens the journal database at path.
func Open(path string, logger types.Logger) (*Journal, error) {
	if logger == nil {
		logger = &types.NullLogger{}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to open journal", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to connect to journal", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to configure journal", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to apply journal schema", err)
	}

	return &Journal{db: db, logger: logger, now: time.Now}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Append stores records after any already journaled, in order. Records that
// cannot be encoded are skipped with a warning.
func (j *Journal) Append(ctx context.Context, records []core.EventRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to begin journal write", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pending_events (uuid, name, payload, stored_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to prepare journal write", err)
	}
	defer stmt.Close()

	storedAt := j.now().UnixMilli()
	written := 0
	for _, r := range records {
		raw, err := json.Marshal(r)
		if err != nil {
			j.logger.Warn("Dropping event that cannot be encoded", "event", r.Name, "uuid", r.UUID, "error", err.Error())
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.UUID, r.Name, snappy.Encode(nil, raw), storedAt); err != nil {
			return errors.NewErrorWithCause(errors.ErrStorage, "failed to journal event", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to commit journal write", err)
	}
	j.logger.Debug("Events journaled", "count", written)
	return nil
}

// Drain removes and returns every journaled record in the order appended.
// Rows that cannot be decoded are dropped with a warning.
func (j *Journal) Drain(ctx context.Context) ([]core.EventRecord, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to begin journal read", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT seq, payload FROM pending_events ORDER BY seq`)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to read journal", err)
	}

	var records []core.EventRecord
	for rows.Next() {
		var (
			seq     int64
			payload []byte
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			rows.Close()
			return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to scan journal row", err)
		}
		r, err := decodeRecord(payload)
		if err != nil {
			j.logger.Warn("Dropping unreadable journaled event", "seq", seq, "error", err.Error())
			continue
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to read journal", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_events`); err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to clear journal", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to commit journal read", err)
	}
	return records, nil
}

// Count returns the number of journaled records.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_events`).Scan(&n); err != nil {
		return 0, errors.NewErrorWithCause(errors.ErrStorage, "failed to count journal", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func decodeRecord(payload []byte) (core.EventRecord, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return core.EventRecord{}, err
	}
	var r core.EventRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return core.EventRecord{}, err
	}
	return r, nil
}
