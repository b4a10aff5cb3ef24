package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCSV(t *testing.T) (*CSV, string, string) {
	t.Helper()

	dir := t.TempDir()
	dealsPath := filepath.Join(dir, "deals.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(dealsPath, equityPath)
	require.NoError(t, err)
	return j, dealsPath, equityPath
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWritesHeaders(t *testing.T) {
	t.Parallel()

	j, dealsPath, equityPath := newTestCSV(t)
	require.NoError(t, j.Close())

	deals := readCSV(t, dealsPath)
	require.Len(t, deals, 1)
	assert.Equal(t, []string{"deal_id", "position_ticket", "symbol", "side", "volume", "price", "profit", "time", "reason"}, deals[0])

	equity := readCSV(t, equityPath)
	require.Len(t, equity, 1)
	assert.Equal(t, "margin_level", equity[0][5])
}

func TestCSVRecordDeal(t *testing.T) {
	t.Parallel()

	j, dealsPath, _ := newTestCSV(t)

	at := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	require.NoError(t, j.RecordDeal(sampleDeal("D-1", -510.25, at)))
	require.NoError(t, j.Close())

	records := readCSV(t, dealsPath)
	require.Len(t, records, 2)
	row := records[1]
	assert.Equal(t, "D-1", row[0])
	assert.Equal(t, "POS-1", row[1])
	assert.Equal(t, "sell", row[3])
	assert.Equal(t, "-510.25", row[6])
	assert.Equal(t, "2026-08-25T14:30:00Z", row[7])
}

func TestCSVRecordEquity(t *testing.T) {
	t.Parallel()

	j, _, equityPath := newTestCSV(t)

	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:    time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC),
		Balance: 100000,
		Equity:  100490,
	}))
	require.NoError(t, j.Close())

	records := readCSV(t, equityPath)
	require.Len(t, records, 2)
	assert.Equal(t, "100000", records[1][1])
	assert.Equal(t, "100490", records[1][2])
}

func TestCSVRecordsAreDurablePerWrite(t *testing.T) {
	t.Parallel()

	j, dealsPath, _ := newTestCSV(t)
	t.Cleanup(func() { _ = j.Close() })

	require.NoError(t, j.RecordDeal(sampleDeal("D-1", 100, time.Now())))

	// Flushed on every record: visible without Close.
	records := readCSV(t, dealsPath)
	assert.Len(t, records, 2)
}
