// Package eod turns a day's trade journal into a per-symbol summary CSV.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// journalLine mirrors the JSON lines the trade journal writes. Field
// names match the journal keys.
type journalLine struct {
	Time    string
	Symbol  string
	Side    string
	Qty     int
	Price   float64
	OrderID string
	Reason  string
}

type symbolAgg struct {
	BuyQty    int
	BuyValue  float64
	SellQty   int
	SellValue float64
}

type eodSummarizer struct{}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func istNow() time.Time { return time.Now().In(time.FixedZone("IST", 19800)) }

func journalPath(t time.Time) string {
	return filepath.Join(logDir(), t.Format("2006-01-02")+".txt")
}

func summaryPath(t time.Time) string {
	return filepath.Join(logDir(), "eod", t.Format("2006-01-02")+".csv")
}

// SummarizeDay aggregates the day's journal per symbol and writes the
// summary CSV. A day without a journal file or without trades returns
// an empty path and no error.
func (s *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	aggs, err := readJournal(journalPath(t))
	if err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	outPath := summaryPath(t)
	if err := writeSummary(outPath, aggs); err != nil {
		return "", err
	}
	return outPath, nil
}

// readJournal folds the journal's fills into per-symbol buy/sell
// totals. Lines that are not valid JSON are skipped, not fatal: the
// journal may interleave a partial line during a crash.
func readJournal(path string) (map[string]*symbolAgg, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	aggs := map[string]*symbolAgg{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line journalLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue
		}
		agg := aggs[line.Symbol]
		if agg == nil {
			agg = &symbolAgg{}
			aggs[line.Symbol] = agg
		}
		switch line.Side {
		case "BUY":
			agg.BuyQty += line.Qty
			agg.BuyValue += float64(line.Qty) * line.Price
		case "SELL":
			agg.SellQty += line.Qty
			agg.SellValue += float64(line.Qty) * line.Price
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return aggs, nil
}

// writeSummary renders the per-symbol rows plus a TOTAL row. Realized
// P&L is computed over the matched quantity so an open position does
// not distort the day's number.
func writeSummary(outPath string, aggs map[string]*symbolAgg) error {
	symbols := make([]string, 0, len(aggs))
	for s := range aggs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()

	header := []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(header); err != nil {
		return err
	}

	var totalBuy, totalSell, totalPnL float64
	for _, sym := range symbols {
		a := aggs[sym]
		var buyAvg, sellAvg float64
		if a.BuyQty > 0 {
			buyAvg = a.BuyValue / float64(a.BuyQty)
		}
		if a.SellQty > 0 {
			sellAvg = a.SellValue / float64(a.SellQty)
		}
		matched := a.BuyQty
		if a.SellQty < matched {
			matched = a.SellQty
		}
		pnl := float64(matched) * (sellAvg - buyAvg)

		row := []string{
			sym,
			strconv.Itoa(a.BuyQty), fmt.Sprintf("%.4f", buyAvg),
			strconv.Itoa(a.SellQty), fmt.Sprintf("%.4f", sellAvg),
			fmt.Sprintf("%.2f", pnl),
			fmt.Sprintf("%.2f", a.BuyValue), fmt.Sprintf("%.2f", a.SellValue),
		}
		if err := w.Write(row); err != nil {
			return err
		}
		totalBuy += a.BuyValue
		totalSell += a.SellValue
		totalPnL += pnl
	}

	return w.Write([]string{
		"TOTAL", "", "", "", "",
		fmt.Sprintf("%.2f", totalPnL),
		fmt.Sprintf("%.2f", totalBuy), fmt.Sprintf("%.2f", totalSell),
	})
}

func (s *eodSummarizer) SummarizeToday() (string, error) { return s.SummarizeDay(istNow()) }

// ShouldRunNow reports whether the summary is due: after 15:40 IST and
// not yet written for the day.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := istNow()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 15, 40, 0, 0, now.Location())
	outPath := summaryPath(now)
	if now.After(cutoff) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
