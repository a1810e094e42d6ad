package market

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func newTestCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := NewCalendar("09:15", "15:30")
	if err != nil {
		t.Fatalf("NewCalendar failed: %v", err)
	}
	return cal
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:20")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if c.Hour != 9 || c.Min != 20 {
		t.Errorf("got %d:%d, want 9:20", c.Hour, c.Min)
	}
	if _, err := ParseClock("9 am"); err == nil {
		t.Error("expected error for non HH:MM input")
	}
}

func TestStatusDuringSession(t *testing.T) {
	cal := newTestCalendar(t)
	// Friday 2025-07-04, 10:00 IST
	open, msg := cal.Status(time.Date(2025, 7, 4, 10, 0, 0, 0, IST))
	if !open {
		t.Errorf("expected market open, got closed: %s", msg)
	}
}

func TestStatusWeekend(t *testing.T) {
	cal := newTestCalendar(t)
	// Saturday 2025-07-05
	open, msg := cal.Status(time.Date(2025, 7, 5, 10, 0, 0, 0, IST))
	if open {
		t.Fatal("expected market closed on Saturday")
	}
	if !strings.Contains(msg, "weekend") {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestStatusHoliday(t *testing.T) {
	cal := newTestCalendar(t)
	cal.SetHolidays(map[string]string{"2025-08-15": "Independence Day"})
	open, msg := cal.Status(time.Date(2025, 8, 15, 10, 0, 0, 0, IST))
	if open {
		t.Fatal("expected market closed on holiday")
	}
	if !strings.Contains(msg, "Independence Day") {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestStatusBeforeOpenAndAfterClose(t *testing.T) {
	cal := newTestCalendar(t)
	day := time.Date(2025, 7, 4, 0, 0, 0, 0, IST)

	open, msg := cal.Status(day.Add(9 * time.Hour)) // 09:00
	if open {
		t.Fatal("expected closed before 09:15")
	}
	if !strings.Contains(msg, "Opens in 15 minutes") {
		t.Errorf("unexpected message: %s", msg)
	}

	open, msg = cal.Status(day.Add(16 * time.Hour)) // 16:00
	if open {
		t.Fatal("expected closed after 15:30")
	}
	if !strings.Contains(msg, "closed at 15:30") {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestNextOpenSkipsWeekendAndHoliday(t *testing.T) {
	cal := newTestCalendar(t)
	cal.SetHolidays(map[string]string{"2025-07-07": "Test Holiday"})

	// Friday 10:00, session already open: next open is past Monday's
	// holiday, so Tuesday 2025-07-08 09:15.
	next := cal.NextOpen(time.Date(2025, 7, 4, 10, 0, 0, 0, IST))
	want := time.Date(2025, 7, 8, 9, 15, 0, 0, IST)
	if !next.Equal(want) {
		t.Errorf("NextOpen = %v, want %v", next, want)
	}
}

func TestTimeToOpenFormatting(t *testing.T) {
	cal := newTestCalendar(t)
	// Friday 09:00, opens in 15m.
	_, msg := cal.TimeToOpen(time.Date(2025, 7, 4, 9, 0, 0, 0, IST))
	if msg != "15m 0s" {
		t.Errorf("got %q, want %q", msg, "15m 0s")
	}
}

func TestParseHolidayRow(t *testing.T) {
	html := `<table><tr>
		<td>1</td>
		<td>26-Jan-2026</td>
		<td>Monday</td>
		<td>Republic Day</td>
	</tr></table>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	row := doc.Find("tr").First()
	date, name, ok := parseHolidayRow(row)
	if !ok {
		t.Fatal("expected row to parse")
	}
	if date.Format("2006-01-02") != "2026-01-26" {
		t.Errorf("date = %s, want 2026-01-26", date.Format("2006-01-02"))
	}
	if name != "Republic Day" {
		t.Errorf("name = %q, want Republic Day", name)
	}
}

func TestParseHolidayRowSkipsHeaderRows(t *testing.T) {
	html := `<table><tr><td>Date</td><td>Holiday</td></tr></table>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	if _, _, ok := parseHolidayRow(doc.Find("tr").First()); ok {
		t.Error("header row should not parse as a holiday")
	}
}

func TestFixedHolidays(t *testing.T) {
	holidays := FixedHolidays(2026)
	if holidays["2026-01-26"] != "Republic Day" {
		t.Errorf("missing Republic Day, got %v", holidays)
	}
	if len(holidays) != 6 {
		t.Errorf("got %d fixed holidays, want 6", len(holidays))
	}
}
