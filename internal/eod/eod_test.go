package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummarizeDayAggregatesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	day := time.Date(2025, 9, 4, 12, 0, 0, 0, time.FixedZone("IST", 19800))
	journal := `{"Time":"2025-09-04 09:42:16","Symbol":"NIFTY25SEP24700CE","Side":"BUY","OrderID":"SIM-1","Reason":"breakout","Qty":75,"Price":104.6}
{"Time":"2025-09-04 10:12:16","Symbol":"NIFTY25SEP24700CE","Side":"SELL","OrderID":"SIM-2","Reason":"target","Qty":75,"Price":146.4}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-09-04.txt"), []byte(journal), 0o644))

	path, err := SummarizeDay(day)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "eod", "2025-09-04.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}, rows[0])
	require.Equal(t, []string{"NIFTY25SEP24700CE", "75", "104.6000", "75", "146.4000", "3135.00", "7845.00", "10980.00"}, rows[1])
	require.Equal(t, "TOTAL", rows[2][0])
	require.Equal(t, "3135.00", rows[2][5])
}

func TestSummarizeDaySkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	day := time.Date(2025, 9, 4, 12, 0, 0, 0, time.FixedZone("IST", 19800))
	journal := `not json at all
{"Time":"2025-09-04 09:42:16","Symbol":"NIFTY25SEP24650PE","Side":"BUY","OrderID":"SIM-1","Reason":"breakout","Qty":75,"Price":91.3}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-09-04.txt"), []byte(journal), 0o644))

	path, err := SummarizeDay(day)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "NIFTY25SEP24650PE", rows[1][0])
	require.Equal(t, "75", rows[1][1])
	require.Equal(t, "0", rows[1][3], "open position has no sell leg")
}

func TestSummarizeDayWithoutJournal(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	path, err := SummarizeDay(time.Date(2025, 9, 4, 12, 0, 0, 0, time.FixedZone("IST", 19800)))
	require.NoError(t, err)
	require.Empty(t, path)
}
