// Package tradelog persists the trading journal (JSON lines, one file
// per IST day) and the trade history ledger read by spreadsheet tools.
package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ist = time.FixedZone("IST", 19800)

const timeLayout = "2006-01-02 15:04:05"

var mu sync.Mutex

// Entry is one fill in the day's journal.
type Entry struct {
	Time, Symbol, Side, OrderID, Reason string
	Qty                                 int
	Price                               float64
	Extra                               map[string]any `json:"extra,omitempty"`
}

// DecisionEntry records a decision that did or did not become a trade,
// with the price levels it was judged against.
type DecisionEntry struct {
	Time, Symbol, Action, Reason string
	Price                        float64
	Levels                       map[string]float64
	Extra                        map[string]any
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

// Dir reports the active log directory (TRADER_LOG_DIR or "logs").
func Dir() string { return logDir() }

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), t.In(ist).Format("2006-01-02")+".txt")
}

func decisionsFilepath(t time.Time) string {
	return filepath.Join(logDir(), "decisions", t.In(ist).Format("2006-01-02")+".txt")
}

// Append writes a fill to today's journal, stamping it with the current
// IST time.
func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(ist)
	e.Time = now.Format(timeLayout)
	return appendLine(dailyFilepath(now), e)
}

// AppendDecision writes a decision record to today's decision log.
func AppendDecision(e DecisionEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(ist)
	e.Time = now.Format(timeLayout)
	return appendLine(decisionsFilepath(now), e)
}

func appendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips journal files past the retention window and
// removes the originals. Files that fail to compress are left alone for
// the next pass.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(logDir(), func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := os.Stat(p)
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			// A previous pass compressed it but the remove failed.
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return nil
		}
		return os.Remove(p)
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
