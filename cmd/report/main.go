package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"oi-breakout-bot/internal/eod"
	"oi-breakout-bot/internal/tradelog"
	"oi-breakout-bot/internal/types"
)

var ist = time.FixedZone("IST", 19800)

func main() {
	date := flag.String("date", "", "report date as YYYY-MM-DD, defaults to today IST")
	asJSON := flag.Bool("json", false, "print the history rows as JSON instead of a table")
	flag.Parse()

	// .env carries TRADER_LOG_DIR when the logs live outside ./logs
	_ = godotenv.Load()

	day := time.Now().In(ist)
	if *date != "" {
		t, err := time.ParseInLocation("2006-01-02", *date, ist)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid date %q: expected YYYY-MM-DD\n", *date)
			os.Exit(1)
		}
		day = t
	}
	dayStr := day.Format("2006-01-02")

	history, err := tradelog.NewHistory(tradelog.DefaultHistoryPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load trade history: %v\n", err)
		os.Exit(1)
	}

	var rows []types.TradeRecord
	for _, r := range history.Records() {
		if r.EntryTime.In(ist).Format("2006-01-02") == dayStr {
			rows = append(rows, r)
		}
	}

	if *asJSON {
		b, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode rows: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(b))
		return
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("                 TRADE REPORT  %s\n", dayStr)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()

	if len(rows) == 0 {
		fmt.Println("No trades recorded for this date.")
	} else {
		printRows(rows)
	}

	path, err := eod.SummarizeDay(day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "EOD summary failed: %v\n", err)
		os.Exit(1)
	}
	if path == "" {
		fmt.Println("No trade journal for this date, skipping EOD summary.")
		return
	}

	fmt.Println()
	fmt.Printf("EOD summary: %s\n", path)
	if b, err := os.ReadFile(path); err == nil {
		fmt.Println()
		fmt.Print(string(b))
	}
}

func printRows(rows []types.TradeRecord) {
	var netPnL, charges float64
	wins := 0

	for i, r := range rows {
		exitTime := "open"
		exitPrice := "-"
		if !r.ExitTime.IsZero() {
			exitTime = r.ExitTime.In(ist).Format("15:04:05")
			exitPrice = fmt.Sprintf("%.2f", r.ExitPrice)
		}

		fmt.Printf("%d. %s %s x%d\n", i+1, r.Symbol, r.Direction, r.Qty)
		fmt.Printf("   Entry:  %s @ %.2f  (SL %.2f / Target %.2f)\n",
			r.EntryTime.In(ist).Format("15:04:05"), r.EntryPrice, r.StopLoss, r.Target)
		fmt.Printf("   Exit:   %s @ %s", exitTime, exitPrice)
		if r.ExitReason != "" {
			fmt.Printf("  (%s)", r.ExitReason)
		}
		fmt.Println()
		if r.TrailingSL > 0 && r.TrailingSL != r.StopLoss {
			fmt.Printf("   Trail:  stop raised to %.2f\n", r.TrailingSL)
		}
		fmt.Printf("   P&L:    %.2f net (%.2f%%), charges %.2f, margin %.0f\n",
			r.PnL, r.PctGain, r.Brokerage, r.Margin)
		fmt.Printf("   Range:  max up %.2f (%.2f%%), max down %.2f (%.2f%%)\n",
			r.MaxUp, r.MaxUpPct, r.MaxDown, r.MaxDownPct)
		fmt.Println()

		netPnL += r.PnL
		charges += r.Brokerage
		if r.PnL > 0 {
			wins++
		}
	}

	fmt.Println("───────────────────────────────────────────────────────────────")
	fmt.Printf("Trades: %d   Wins: %d   Net P&L: %.2f   Charges: %.2f\n",
		len(rows), wins, netPnL, charges)
}
