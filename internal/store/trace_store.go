// Package store persists turn traces for operator audit.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"conductor/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// TraceStore records one row per completed turn.
//
// Writes are best-effort from the caller's point of view: the turn handler
// logs a failed Record and carries on.
type TraceStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	ownsDB bool
}

// TurnTrace is the audit record of a single turn.
type TurnTrace struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	ClientTurnID string    `json:"client_turn_id"`
	ScenarioID   string    `json:"scenario_id,omitempty"`
	Routing      string    `json:"routing"`
	Tool         string    `json:"tool,omitempty"`
	Assembly     string    `json:"assembly,omitempty"`
	ContextHash  string    `json:"context_hash,omitempty"`
	HTTPStatus   int       `json:"http_status"`
	ErrorCode    string    `json:"error_code,omitempty"`
	BlockCount   int       `json:"block_count"`
	Coalesced    bool      `json:"coalesced,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// OpenTraceStore opens (creating if needed) the SQLite database at path.
func OpenTraceStore(path string) (*TraceStore, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	// SQLite allows a single writer; serialising here avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ts, err := NewTraceStore(db, path)
	if err != nil {
		db.Close()
		return nil, err
	}
	ts.ownsDB = true
	return ts, nil
}

// NewTraceStore wraps an existing connection and ensures the schema exists.
func NewTraceStore(db *sql.DB, dbPath string) (*TraceStore, error) {
	logging.StoreDebug("Initializing TraceStore at path: %s", dbPath)

	ts := &TraceStore{db: db, dbPath: dbPath}
	if err := ts.ensureSchema(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to ensure trace schema: %v", err)
		return nil, fmt.Errorf("failed to ensure trace schema: %w", err)
	}

	logging.Store("TraceStore ready at %s", dbPath)
	return ts, nil
}

func (ts *TraceStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turn_traces (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		client_turn_id TEXT NOT NULL,
		scenario_id TEXT,
		routing TEXT NOT NULL,
		tool TEXT,
		assembly TEXT,
		context_hash TEXT,
		http_status INTEGER NOT NULL,
		error_code TEXT,
		block_count INTEGER NOT NULL DEFAULT 0,
		coalesced INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turn_traces_created ON turn_traces(created_at);
	CREATE INDEX IF NOT EXISTS idx_turn_traces_client_turn ON turn_traces(client_turn_id);
	`
	if _, err := ts.db.Exec(schema); err != nil {
		return err
	}
	return RunMigrations(ts.db)
}

// Close releases the database if the store opened it.
func (ts *TraceStore) Close() error {
	if !ts.ownsDB {
		return nil
	}
	return ts.db.Close()
}

// Path returns the database location.
func (ts *TraceStore) Path() string {
	return ts.dbPath
}

// ========== Write Operations ==========

// Record stores t. A missing ID or timestamp is filled in.
func (ts *TraceStore) Record(ctx context.Context, t *TurnTrace) error {
	timer := logging.StartTimer(logging.CategoryStore, "Record")
	defer timer.Stop()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	_, err := ts.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO turn_traces
		(id, request_id, client_turn_id, scenario_id, routing, tool, assembly,
		 context_hash, http_status, error_code, block_count, coalesced,
		 duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RequestID, t.ClientTurnID, t.ScenarioID, t.Routing, t.Tool, t.Assembly,
		t.ContextHash, t.HTTPStatus, t.ErrorCode, t.BlockCount, boolToInt(t.Coalesced),
		t.DurationMs, t.CreatedAt.UnixMilli())
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to store turn trace request_id=%s: %v", t.RequestID, err)
		return fmt.Errorf("failed to store turn trace: %w", err)
	}

	logging.StoreDebug("Stored turn trace id=%s request_id=%s status=%d", t.ID, t.RequestID, t.HTTPStatus)
	return nil
}

// ========== Read Operations ==========

const traceColumns = `id, request_id, client_turn_id, scenario_id, routing, tool, assembly,
	context_hash, http_status, error_code, block_count, coalesced, duration_ms, created_at`

// Recent returns up to limit traces, newest first.
func (ts *TraceStore) Recent(ctx context.Context, limit int) ([]TurnTrace, error) {
	if limit <= 0 {
		limit = 50
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	rows, err := ts.db.QueryContext(ctx, `
		SELECT `+traceColumns+`
		FROM turn_traces
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turn traces: %w", err)
	}
	defer rows.Close()
	return scanTraces(rows)
}

// ForClientTurn returns every trace recorded for one client_turn_id, oldest
// first. Retries of the same turn show up as separate rows.
func (ts *TraceStore) ForClientTurn(ctx context.Context, clientTurnID string) ([]TurnTrace, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	rows, err := ts.db.QueryContext(ctx, `
		SELECT `+traceColumns+`
		FROM turn_traces
		WHERE client_turn_id = ?
		ORDER BY created_at ASC, rowid ASC`, clientTurnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turn traces: %w", err)
	}
	defer rows.Close()
	return scanTraces(rows)
}

// StatusCounts returns the number of traces per HTTP status.
func (ts *TraceStore) StatusCounts(ctx context.Context) (map[int]int, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	rows, err := ts.db.QueryContext(ctx, `SELECT http_status, COUNT(*) FROM turn_traces GROUP BY http_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count turn traces: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanTraces(rows *sql.Rows) ([]TurnTrace, error) {
	var out []TurnTrace
	for rows.Next() {
		var (
			t                                       TurnTrace
			scenario, tool, assembly, hash, errCode sql.NullString
			coalesced                               int
			createdMs                               int64
		)
		if err := rows.Scan(&t.ID, &t.RequestID, &t.ClientTurnID, &scenario, &t.Routing, &tool, &assembly,
			&hash, &t.HTTPStatus, &errCode, &t.BlockCount, &coalesced, &t.DurationMs, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan turn trace: %w", err)
		}
		t.ScenarioID = scenario.String
		t.Tool = tool.String
		t.Assembly = assembly.String
		t.ContextHash = hash.String
		t.ErrorCode = errCode.String
		t.Coalesced = coalesced != 0
		t.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
