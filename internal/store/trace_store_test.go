package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *TraceStore {
	t.Helper()
	ts, err := OpenTraceStore(filepath.Join(t.TempDir(), "nested", "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ts.Close() })
	return ts
}

func TestTraceStore_RecordAndRecent(t *testing.T) {
	ts := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	for i, status := range []int{200, 502, 200} {
		require.NoError(t, ts.Record(ctx, &TurnTrace{
			RequestID:    "req",
			ClientTurnID: "turn",
			Routing:      "deterministic",
			Tool:         "run_analysis",
			HTTPStatus:   status,
			DurationMs:   int64(10 * i),
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := ts.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(20), recent[0].DurationMs)
	assert.Equal(t, base.Add(2*time.Second), recent[0].CreatedAt)
	assert.Equal(t, 502, recent[1].HTTPStatus)
	assert.NotEmpty(t, recent[0].ID)
}

func TestTraceStore_ForClientTurn(t *testing.T) {
	ts := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Record(ctx, &TurnTrace{RequestID: "r1", ClientTurnID: "a", Routing: "llm", HTTPStatus: 502, ErrorCode: "MODEL_UNAVAILABLE"}))
	require.NoError(t, ts.Record(ctx, &TurnTrace{RequestID: "r2", ClientTurnID: "a", Routing: "llm", HTTPStatus: 200, Assembly: "fallback", ContextHash: "abc"}))
	require.NoError(t, ts.Record(ctx, &TurnTrace{RequestID: "r3", ClientTurnID: "b", Routing: "llm", HTTPStatus: 200, Coalesced: true}))

	got, err := ts.ForClientTurn(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MODEL_UNAVAILABLE", got[0].ErrorCode)
	assert.Equal(t, "fallback", got[1].Assembly)
	assert.Equal(t, "abc", got[1].ContextHash)

	other, err := ts.ForClientTurn(ctx, "b")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.True(t, other[0].Coalesced)
}

func TestTraceStore_StatusCounts(t *testing.T) {
	ts := openTestStore(t)
	ctx := context.Background()

	for _, status := range []int{200, 200, 504} {
		require.NoError(t, ts.Record(ctx, &TurnTrace{RequestID: "r", ClientTurnID: "c", Routing: "llm", HTTPStatus: status}))
	}

	counts, err := ts.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{200: 2, 504: 1}, counts)
}

func TestTraceStore_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	ctx := context.Background()

	ts, err := OpenTraceStore(path)
	require.NoError(t, err)
	require.NoError(t, ts.Record(ctx, &TurnTrace{RequestID: "r", ClientTurnID: "c", Routing: "llm", HTTPStatus: 200}))
	require.NoError(t, ts.Close())

	reopened, err := OpenTraceStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	recent, err := reopened.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestTraceStore_MigratesOlderSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE turn_traces (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		client_turn_id TEXT NOT NULL,
		routing TEXT NOT NULL,
		tool TEXT,
		http_status INTEGER NOT NULL,
		error_code TEXT,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	assert.Equal(t, 1, SchemaVersion(db))
	require.NoError(t, db.Close())

	ts, err := OpenTraceStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { ts.Close() })
	assert.Equal(t, CurrentSchemaVersion, SchemaVersion(ts.db))

	ctx := context.Background()
	require.NoError(t, ts.Record(ctx, &TurnTrace{RequestID: "r", ClientTurnID: "c", Routing: "llm", HTTPStatus: 200, Assembly: "full", BlockCount: 2}))
	got, err := ts.ForClientTurn(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "full", got[0].Assembly)
	assert.Equal(t, 2, got[0].BlockCount)

	// Running again is a no-op.
	require.NoError(t, RunMigrations(ts.db))
}
