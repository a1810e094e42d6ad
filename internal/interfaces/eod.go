package interfaces

import "time"

// EodSummarizer condenses a day's trade journal into a summary CSV.
// SummarizeDay returns an empty path when the day had no trades.
type EodSummarizer interface {
	SummarizeDay(t time.Time) (csvPath string, err error)
	SummarizeToday() (csvPath string, err error)

	// ShouldRunNow reports whether the daily summary is due and the
	// path it would be written to.
	ShouldRunNow() (shouldRun bool, csvPath string)
}
