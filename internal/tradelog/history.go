package tradelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"oi-breakout-bot/internal/types"
)

// historyColumns is the ledger schema. Spreadsheet consumers depend on
// these exact headers and their order.
var historyColumns = []string{
	"Entry DateTime", "Index", "Symbol", "Direction", "Entry Price",
	"Exit DateTime", "Exit Price", "Stop Loss", "Target", "Trailing SL",
	"Quantity", "Brokerage", "P&L", "Margin Required", "% Gain/Loss",
	"max up", "max down", "max up %", "max down %",
}

// DefaultHistoryPath is where the ledger lives unless overridden.
func DefaultHistoryPath() string {
	return filepath.Join(logDir(), "trade_history.csv")
}

// History is the on-disk trade ledger. A trade is appended open at
// entry and updated in place at exit; the whole file is rewritten on
// every change so readers always see a complete CSV.
type History struct {
	mu      sync.Mutex
	path    string
	records []types.TradeRecord
}

// NewHistory opens the ledger at path and loads rows persisted by
// earlier runs. On a load failure it still returns a usable empty
// ledger, with the error reporting what was wrong with the file.
func NewHistory(path string) (*History, error) {
	h := &History{path: path}
	if err := h.load(); err != nil {
		h.records = nil
		return h, err
	}
	return h, nil
}

// Len returns the number of recorded trades.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Records returns a copy of all recorded trades, oldest first.
func (h *History) Records() []types.TradeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.TradeRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Append adds a trade record and rewrites the file. The returned index
// addresses the record for the exit-time Update.
func (h *History) Append(rec types.TradeRecord) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return len(h.records) - 1, h.saveLocked()
}

// Update replaces the record at idx and rewrites the file.
func (h *History) Update(idx int, rec types.TradeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if idx < 0 || idx >= len(h.records) {
		return fmt.Errorf("trade record index %d out of range", idx)
	}
	h.records[idx] = rec
	return h.saveLocked()
}

func (h *History) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(h.path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write(historyColumns)
	for _, rec := range h.records {
		_ = w.Write(historyRow(rec))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write trade history: %w", err)
	}
	return f.Close()
}

func (h *History) load() error {
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read trade history: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	for _, row := range rows[1:] {
		h.records = append(h.records, types.TradeRecord{
			EntryTime:  parseTime(field(row, "Entry DateTime")),
			Index:      field(row, "Index"),
			Symbol:     field(row, "Symbol"),
			Direction:  field(row, "Direction"),
			EntryPrice: parseFloat(field(row, "Entry Price")),
			ExitTime:   parseTime(field(row, "Exit DateTime")),
			ExitPrice:  parseFloat(field(row, "Exit Price")),
			StopLoss:   parseFloat(field(row, "Stop Loss")),
			Target:     parseFloat(field(row, "Target")),
			TrailingSL: parseFloat(field(row, "Trailing SL")),
			Qty:        parseInt(field(row, "Quantity")),
			Brokerage:  parseFloat(field(row, "Brokerage")),
			PnL:        parseFloat(field(row, "P&L")),
			Margin:     parseFloat(field(row, "Margin Required")),
			PctGain:    parseFloat(field(row, "% Gain/Loss")),
			MaxUp:      parseFloat(field(row, "max up")),
			MaxDown:    parseFloat(field(row, "max down")),
			MaxUpPct:   parseFloat(field(row, "max up %")),
			MaxDownPct: parseFloat(field(row, "max down %")),
		})
	}
	return nil
}

// historyRow renders a record. Exit-side cells stay empty while the
// trade is open; they are all filled together at exit, so a zero
// excursion prints as 0 rather than blank.
func historyRow(r types.TradeRecord) []string {
	exitTime, exitPrice, trailing := "", "", ""
	brokerage, pnl, pctGain := "", "", ""
	maxUp, maxDown, maxUpPct, maxDownPct := "", "", "", ""
	if !r.ExitTime.IsZero() {
		exitTime = r.ExitTime.In(ist).Format(timeLayout)
		exitPrice = num(r.ExitPrice)
		trailing = num(r.TrailingSL)
		brokerage = num(r.Brokerage)
		pnl = num(r.PnL)
		pctGain = num(r.PctGain)
		maxUp = num(r.MaxUp)
		maxDown = num(r.MaxDown)
		maxUpPct = num(r.MaxUpPct)
		maxDownPct = num(r.MaxDownPct)
	}
	return []string{
		r.EntryTime.In(ist).Format(timeLayout), r.Index, r.Symbol, r.Direction, num(r.EntryPrice),
		exitTime, exitPrice, num(r.StopLoss), num(r.Target), trailing,
		strconv.Itoa(r.Qty), brokerage, pnl, num(r.Margin), pctGain,
		maxUp, maxDown, maxUpPct, maxDownPct,
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(timeLayout, s, ist)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
