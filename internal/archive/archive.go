package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/utils"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one archived call.
type Entry struct {
	Call        models.CallRecord
	FirstSeenAt time.Time
	HandledAt   time.Time
}

// Archive is a local journal of every call the client has seen.
// Uses SQLite in WAL mode with a single connection.
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal at path. ":memory:" keeps it in memory.
func Open(path string) (*Archive, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, utils.NewAppError("archive.open", "create directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, utils.NewAppError("archive.open", "open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, utils.NewAppError("archive.open", "connect", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, utils.NewAppError("archive.open", fmt.Sprintf("execute %q", pragma), err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, utils.NewAppError("archive.open", "apply schema", err)
	}

	return &Archive{db: db, now: time.Now}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

const upsertCall = `
INSERT INTO calls (call_id, ip, server_name, target_name, target_id, target_reason,
                   client_name, client_id, reported_at, handled, first_seen_at, handled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (call_id, ip, server_name, target_name, target_id, target_reason, client_name, client_id, reported_at)
DO UPDATE SET
    handled    = MAX(calls.handled, excluded.handled),
    handled_at = COALESCE(calls.handled_at, excluded.handled_at)`

// RecordCalls stores calls. Records already journaled are left in place, except that
// a handled copy marks the stored one handled.
func (a *Archive) RecordCalls(ctx context.Context, calls []models.CallRecord) error {
	if len(calls) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError("archive.record", "begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertCall)
	if err != nil {
		return utils.NewAppError("archive.record", "prepare insert", err)
	}
	defer stmt.Close()

	now := a.now().Unix()
	for _, c := range calls {
		var handledAt any
		if c.Handled {
			handledAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			c.CallID, c.IP, c.ServerName, c.TargetName, c.TargetID, c.TargetReason,
			c.ClientName, c.ClientID, c.ReportedAt, boolToInt(c.Handled), now, handledAt,
		); err != nil {
			return utils.NewAppError("archive.record", "insert call "+c.CallID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError("archive.record", "commit", err)
	}
	return nil
}

// MarkHandled flags the journaled copy of call as handled, inserting it when missing.
func (a *Archive) MarkHandled(ctx context.Context, call models.CallRecord) error {
	call.Handled = true
	return a.RecordCalls(ctx, []models.CallRecord{call})
}

// Recent returns up to limit calls, newest report first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx, `
SELECT call_id, ip, server_name, target_name, target_id, target_reason,
       client_name, client_id, reported_at, handled, first_seen_at, handled_at
FROM calls
ORDER BY reported_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, utils.NewAppError("archive.recent", "query", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			handled   int
			firstSeen int64
			handledAt sql.NullInt64
		)
		if err := rows.Scan(
			&e.Call.CallID, &e.Call.IP, &e.Call.ServerName, &e.Call.TargetName, &e.Call.TargetID,
			&e.Call.TargetReason, &e.Call.ClientName, &e.Call.ClientID, &e.Call.ReportedAt,
			&handled, &firstSeen, &handledAt,
		); err != nil {
			return nil, utils.NewAppError("archive.recent", "scan", err)
		}
		e.Call.Handled = handled != 0
		e.FirstSeenAt = time.Unix(firstSeen, 0)
		if handledAt.Valid {
			e.HandledAt = time.Unix(handledAt.Int64, 0)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError("archive.recent", "iterate", err)
	}
	return out, nil
}

// Count returns the number of journaled calls.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&n); err != nil {
		return 0, utils.NewAppError("archive.count", "query", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
