package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepilot/tradepilot/broker"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func sampleDeal(id string, profit float64, at time.Time) broker.Deal {
	return broker.Deal{
		ID:             id,
		PositionTicket: "POS-1",
		Symbol:         "EURUSD",
		Side:           broker.Sell,
		Volume:         1.0,
		Price:          1.1050,
		Profit:         profit,
		Time:           at,
		Reason:         "close",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('deals','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["deals"])
	assert.True(t, found["equity"])
}

func TestSQLiteRecordAndGetDeal(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	at := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	require.NoError(t, j.RecordDeal(sampleDeal("D-1", 490.5, at)))

	got, err := j.GetDeal("D-1")
	require.NoError(t, err)
	assert.Equal(t, broker.Ticket("POS-1"), got.PositionTicket)
	assert.Equal(t, broker.Sell, got.Side)
	assert.InDelta(t, 490.5, got.Profit, 1e-9)
	assert.Equal(t, "close", got.Reason)

	_, err = j.GetDeal("missing")
	assert.Error(t, err)
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:        time.Now(),
		Balance:     100000,
		Equity:      100490,
		MarginUsed:  1100,
		FreeMargin:  99390,
		MarginLevel: 9135,
	}))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM equity`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestDuplicateDealIDRejected(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	at := time.Now()
	require.NoError(t, j.RecordDeal(sampleDeal("D-1", 100, at)))
	assert.Error(t, j.RecordDeal(sampleDeal("D-1", 100, at)))
}
