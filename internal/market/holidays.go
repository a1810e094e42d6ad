package market

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"oi-breakout-bot/internal/logger"
)

// HolidaySource defines a page carrying the exchange holiday table.
type HolidaySource struct {
	Name    string
	BaseURL string
	Path    string
	Table   string // CSS selector for the holiday table
}

// getDefaultHolidaySources returns pages that publish the NSE trading
// holiday calendar.
func getDefaultHolidaySources() []HolidaySource {
	return []HolidaySource{
		{
			Name:    "MoneyControl",
			BaseURL: "https://www.moneycontrol.com",
			Path:    "/markets/market-calendar/holiday-calender",
			Table:   "table.mctable1",
		},
		{
			Name:    "EconomicTimes",
			BaseURL: "https://economictimes.indiatimes.com",
			Path:    "/markets/stock-market-holidays",
			Table:   "table",
		},
	}
}

// HolidayFetcher scrapes the exchange holiday calendar.
type HolidayFetcher struct {
	sources []HolidaySource
	timeout time.Duration
}

func NewHolidayFetcher(timeout time.Duration) *HolidayFetcher {
	return &HolidayFetcher{
		sources: getDefaultHolidaySources(),
		timeout: timeout,
	}
}

// Fetch scrapes the holiday table for the given year. Sources are tried
// in order; the first one that yields any rows wins.
func (f *HolidayFetcher) Fetch(ctx context.Context, year int) (map[string]string, error) {
	var lastErr error
	for _, source := range f.sources {
		holidays, err := f.fetchSource(ctx, source, year)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape holiday source", err, "source", source.Name)
			lastErr = err
			continue
		}
		if len(holidays) > 0 {
			logger.Info(ctx, "Holiday calendar fetched", "source", source.Name, "year", year, "holidays", len(holidays))
			return holidays, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no holiday rows found for %d in any source", year)
	}
	return nil, lastErr
}

func (f *HolidayFetcher) fetchSource(ctx context.Context, source HolidaySource, year int) (map[string]string, error) {
	holidays := map[string]string{}

	c := colly.NewCollector(
		colly.AllowedDomains(holidayDomain(source.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)

	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(source.Table, func(e *colly.HTMLElement) {
		e.DOM.Find("tr").Each(func(_ int, row *goquery.Selection) {
			date, name, ok := parseHolidayRow(row)
			if !ok || date.Year() != year {
				return
			}
			holidays[date.Format("2006-01-02")] = name
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Holiday scraping error", err, "source", source.Name, "url", r.Request.URL.String())
	})

	if err := c.Visit(source.BaseURL + source.Path); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", source.BaseURL+source.Path, err)
	}

	c.Wait()

	return holidays, nil
}

// holidayDateLayouts covers the date renderings the calendar pages use.
var holidayDateLayouts = []string{
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02 January 2006",
	"2006-01-02",
}

func parseHolidayDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range holidayDateLayouts {
		if t, err := time.ParseInLocation(layout, s, IST); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseHolidayRow pulls a (date, name) pair out of a table row. Column
// order differs across sources, so the date is found by parsing and the
// name is the first remaining cell that is not a weekday or serial
// number.
func parseHolidayRow(row *goquery.Selection) (time.Time, string, bool) {
	cells := row.Find("td")
	if cells.Length() < 2 {
		return time.Time{}, "", false
	}

	var date time.Time
	dateIdx := -1
	cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
		if d, ok := parseHolidayDate(cell.Text()); ok {
			date = d
			dateIdx = i
			return false
		}
		return true
	})
	if dateIdx < 0 {
		return time.Time{}, "", false
	}

	name := ""
	cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
		if i == dateIdx {
			return true
		}
		text := strings.TrimSpace(cell.Text())
		if text == "" || isWeekdayName(text) {
			return true
		}
		if _, err := strconv.Atoi(text); err == nil {
			return true
		}
		name = text
		return false
	})
	if name == "" {
		return time.Time{}, "", false
	}
	return date, name, true
}

func isWeekdayName(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}

// holidayDomain extracts domain from URL
func holidayDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// FixedHolidays returns the date-stable national holidays for a year.
// Used as a fallback when the calendar scrape fails; movable holidays
// (Holi, Diwali and the rest) only come from the scrape.
func FixedHolidays(year int) map[string]string {
	fixed := map[string]string{
		"01-26": "Republic Day",
		"04-14": "Dr. Baba Saheb Ambedkar Jayanti",
		"05-01": "Maharashtra Day",
		"08-15": "Independence Day",
		"10-02": "Mahatma Gandhi Jayanti",
		"12-25": "Christmas",
	}
	holidays := make(map[string]string, len(fixed))
	for md, name := range fixed {
		holidays[fmt.Sprintf("%d-%s", year, md)] = name
	}
	return holidays
}

// LoadHolidays populates the calendar for the year, falling back to the
// fixed-date set when scraping fails.
func (c *Calendar) LoadHolidays(ctx context.Context, fetcher *HolidayFetcher, year int) {
	holidays, err := fetcher.Fetch(ctx, year)
	if err != nil {
		logger.Warn(ctx, "Holiday scrape failed, using fixed-date fallback", "year", year, "error", err)
		holidays = FixedHolidays(year)
	}
	c.AddHolidays(holidays)
}
