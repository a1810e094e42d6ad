package tradelog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oi-breakout-bot/internal/types"
)

func openTrade(entry time.Time) types.TradeRecord {
	return types.TradeRecord{
		EntryTime:  entry,
		Index:      "NIFTY",
		Symbol:     "NIFTY25SEP24700CE",
		Direction:  "BUY",
		EntryPrice: 104.6,
		StopLoss:   83.7,
		Target:     146.4,
		Qty:        75,
		Margin:     7845,
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestHistoryStartsEmptyWithoutFile(t *testing.T) {
	h, err := NewHistory(filepath.Join(t.TempDir(), "trade_history.csv"))
	require.NoError(t, err)
	require.Equal(t, 0, h.Len())
}

func TestHistoryAppendWritesOpenTrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.csv")
	h, err := NewHistory(path)
	require.NoError(t, err)

	entry := time.Date(2025, 9, 4, 9, 42, 16, 0, ist)
	idx, err := h.Append(openTrade(entry))
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	require.Equal(t, historyColumns, rows[0])

	row := rows[1]
	require.Equal(t, "2025-09-04 09:42:16", row[0])
	require.Equal(t, "NIFTY", row[1])
	require.Equal(t, "NIFTY25SEP24700CE", row[2])
	require.Equal(t, "BUY", row[3])
	require.Equal(t, "104.6", row[4])
	require.Equal(t, "", row[5], "exit datetime stays empty while open")
	require.Equal(t, "", row[6], "exit price stays empty while open")
	require.Equal(t, "83.7", row[7])
	require.Equal(t, "146.4", row[8])
	require.Equal(t, "75", row[10])
	require.Equal(t, "", row[12], "P&L stays empty while open")
	require.Equal(t, "7845", row[13])
}

func TestHistoryUpdateRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.csv")
	h, err := NewHistory(path)
	require.NoError(t, err)

	entry := time.Date(2025, 9, 4, 9, 42, 16, 0, ist)
	idx, err := h.Append(openTrade(entry))
	require.NoError(t, err)

	closed := openTrade(entry)
	closed.ExitTime = time.Date(2025, 9, 4, 10, 12, 16, 0, ist)
	closed.ExitPrice = 146.4
	closed.TrailingSL = 125.5
	closed.Brokerage = 57.12
	closed.PnL = 3077.88
	closed.PctGain = 39.23
	closed.MaxUp = 3135
	closed.MaxDown = 0
	closed.MaxUpPct = 39.96
	closed.MaxDownPct = 0
	require.NoError(t, h.Update(idx, closed))

	row := readRows(t, path)[1]
	require.Equal(t, "2025-09-04 10:12:16", row[5])
	require.Equal(t, "146.4", row[6])
	require.Equal(t, "125.5", row[9])
	require.Equal(t, "57.12", row[11])
	require.Equal(t, "3077.88", row[12])
	require.Equal(t, "39.23", row[14])
	require.Equal(t, "3135", row[15])
	require.Equal(t, "0", row[16], "closed trade prints zero excursion, not blank")

	reloaded, err := NewHistory(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	got := reloaded.Records()[0]
	require.True(t, got.EntryTime.Equal(closed.EntryTime))
	require.True(t, got.ExitTime.Equal(closed.ExitTime))
	require.Equal(t, closed.EntryPrice, got.EntryPrice)
	require.Equal(t, closed.ExitPrice, got.ExitPrice)
	require.Equal(t, closed.PnL, got.PnL)
	require.Equal(t, closed.Qty, got.Qty)
	require.Equal(t, closed.MaxUpPct, got.MaxUpPct)
}

func TestHistoryKeepsOpenTradeOpenAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.csv")
	h, err := NewHistory(path)
	require.NoError(t, err)
	_, err = h.Append(openTrade(time.Date(2025, 9, 4, 9, 42, 16, 0, ist)))
	require.NoError(t, err)

	reloaded, err := NewHistory(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	require.True(t, reloaded.Records()[0].ExitTime.IsZero())
}

func TestHistoryUpdateOutOfRange(t *testing.T) {
	h, err := NewHistory(filepath.Join(t.TempDir(), "trade_history.csv"))
	require.NoError(t, err)
	require.Error(t, h.Update(0, types.TradeRecord{}))
}

func TestHistorySurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.csv")
	require.NoError(t, os.WriteFile(path, []byte("\"unterminated\n"), 0o644))

	h, err := NewHistory(path)
	require.Error(t, err)
	require.NotNil(t, h)
	require.Equal(t, 0, h.Len())
}
