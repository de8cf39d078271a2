package holidays

import (
	"slices"
	"time"
)

// User-facing annotations.
const (
	TextNoHolidays  = "Не найдено праздников на сегодня."
	TextStaleCache  = "Не удалось обновить данные о праздниках, показаны сохранённые ранее."
	TextFetchFailed = "Не удалось получить данные о праздниках."
)

// DefaultSourceURL is the calend.ru day page.
const DefaultSourceURL = "https://www.calend.ru/day/"

// Result is the holiday list for one calendar date. It is a value type; the
// holiday slice is copied in and out so callers cannot mutate a shared result.
type Result struct {
	Date      time.Time
	SourceURL string
	FetchedAt time.Time
	// Error is an optional annotation shown under the digest.
	Error string

	holidays []string
}

func NewResult(date time.Time, holidays []string, sourceURL string, fetchedAt time.Time, annotation string) Result {
	return Result{
		Date:      date,
		SourceURL: sourceURL,
		FetchedAt: fetchedAt,
		Error:     annotation,
		holidays:  slices.Clone(holidays),
	}
}

func (r Result) Holidays() []string { return slices.Clone(r.holidays) }

func (r Result) Len() int { return len(r.holidays) }

func (r Result) HasData() bool { return len(r.holidays) > 0 }

// WithError returns a copy carrying annotation.
func (r Result) WithError(annotation string) Result {
	cp := r
	cp.holidays = slices.Clone(r.holidays)
	cp.Error = annotation
	return cp
}

// DateKey formats the calendar date of t as YYYY-MM-DD.
func DateKey(t time.Time) string { return t.Format(time.DateOnly) }

// dateOf truncates t to midnight in its own location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func addDays(date time.Time, n int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, date.Location())
}
