/*
normalize.go - Canonical timestamps from heterogeneous spreadsheet cells

PURPOSE:
  Attendance uploads arrive as spreadsheet cells: numeric date serials,
  native timestamps, or free text in half a dozen layouts, sometimes with a
  bare "21:03" and no date at all. This file turns all of them into a single
  canonical local wall-clock timestamp, or reports that the cell holds no
  usable value.

THE RULES (in order):
  1. Numeric serials decode from the spreadsheet epoch (day 0 = 1899-12-30).
     Serials below one day carry only a time of day.
  2. Text is tried against a fixed, ordered set of strict layouts.
     First match wins; no lenient matching.
  3. A time-only match ("21:03") pins the year to the 1900 sentinel,
     signalling "date unknown, caller must supply one".
  4. Otherwise a free-form parse runs AFTER stripping any trailing timezone
     designator (Z or ±HH[:mm]). Timezone information is discarded on
     purpose: every timestamp is local wall-clock and is never shifted.
  5. A resolved year before 1920 (the sentinel, or a degenerate parse)
     inherits year/month/day from the fallback date while keeping the
     parsed hour/minute/second.

WHAT THIS NEVER DOES:
  - It never bumps a date forward across midnight. "21:03" in, "05:00" out
    on the same stated day stays on that day; overnight shifts must carry
    explicit dates in the input.
  - It never resurrects the epoch artifact. "1899-12-30T16:08:50.000Z" is
    the zero serial leaking out of a spreadsheet as text; it means
    "no value", not a date in 1899.

SEE ALSO:
  - totals.go: the canonical per-month record these timestamps feed into
*/
package attendance

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// serialEpoch is day zero of the spreadsheet date-serial system.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.Local)

// sentinelYear marks "date unknown" for time-only inputs. Any resolved year
// before fallbackCutoffYear is replaced by the fallback date.
const (
	sentinelYear       = 1900
	fallbackCutoffYear = 1920
)

// strictLayouts are attempted in order; first match wins.
var strictLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04",
	"15:04:05",
	"15:04",
}

var timeOnlyPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9](:[0-5][0-9])?$`)

// trailingTZPattern matches a trailing Z or ±HH[:mm] offset designator.
var trailingTZPattern = regexp.MustCompile(`(Z|[+-][0-9]{2}(:?[0-9]{2})?)$`)

// freeFormLayouts back up the strict set for ISO-ish text (already stripped
// of any timezone designator).
var freeFormLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// clock is a wall-clock time without a date.
type clock struct {
	year, day      int
	month          time.Month
	hour, min, sec int
}

// Normalize converts a raw cell value into a canonical local timestamp.
// Accepted inputs: a numeric spreadsheet serial (any numeric Go type), a
// time.Time, or text in one of the accepted layouts. The second return is
// false when the value cannot be parsed at all.
//
// A value whose date cannot be trusted (time-only text, degenerate years)
// inherits the current date; use NormalizeAt to supply a reference date
// instead, e.g. a check-out time inheriting the check-in's date.
func Normalize(raw any) (time.Time, bool) {
	return NormalizeAt(raw, time.Now())
}

// NormalizeAt is Normalize with an explicit fallback date. Only the
// year/month/day of fallback are used; the parsed time of day is kept.
func NormalizeAt(raw any, fallback time.Time) (time.Time, bool) {
	c, ok := components(raw)
	if !ok {
		return time.Time{}, false
	}

	// The zero serial rendered as text is a "no value" marker, not a date.
	if c.year == 1899 && c.month == time.December && c.day == 30 {
		return time.Time{}, false
	}

	if c.year < fallbackCutoffYear {
		c.year = fallback.Year()
		c.month = fallback.Month()
		c.day = fallback.Day()
	}

	return time.Date(c.year, c.month, c.day, c.hour, c.min, c.sec, 0, time.Local), true
}

// components extracts date/time parts from whatever the cell held.
func components(raw any) (clock, bool) {
	switch v := raw.(type) {
	case nil:
		return clock{}, false
	case float64:
		return fromSerial(v)
	case float32:
		return fromSerial(float64(v))
	case int:
		return fromSerial(float64(v))
	case int64:
		return fromSerial(float64(v))
	case time.Time:
		if v.IsZero() {
			return clock{}, false
		}
		return fromTime(v), true
	case string:
		return fromText(v)
	default:
		return clock{}, false
	}
}

func fromTime(t time.Time) clock {
	return clock{
		year: t.Year(), month: t.Month(), day: t.Day(),
		hour: t.Hour(), min: t.Minute(), sec: t.Second(),
	}
}

// fromSerial decodes a spreadsheet date serial. The integer part counts days
// from the epoch; the fraction is the time of day. A serial below one day
// has no date and gets the sentinel year.
func fromSerial(serial float64) (clock, bool) {
	if serial <= 0 || math.IsNaN(serial) || math.IsInf(serial, 0) {
		return clock{}, false
	}

	days := int(serial)
	secs := int(math.Round((serial - float64(days)) * 86400))

	c := clock{
		hour: secs / 3600,
		min:  (secs % 3600) / 60,
		sec:  secs % 60,
	}

	if days == 0 {
		// Time-only serial (e.g. 0.875 = 21:00).
		c.year, c.month, c.day = sentinelYear, time.January, 1
		return c, true
	}

	date := serialEpoch.AddDate(0, 0, days)
	c.year, c.month, c.day = date.Year(), date.Month(), date.Day()
	return c, true
}

func fromText(s string) (clock, bool) {
	str := strings.TrimSpace(s)
	if str == "" {
		return clock{}, false
	}

	timeOnly := timeOnlyPattern.MatchString(str)

	for _, layout := range strictLayouts {
		parsed, err := time.ParseInLocation(layout, str, time.Local)
		if err != nil {
			continue
		}
		c := fromTime(parsed)
		if timeOnly {
			c.year = sentinelYear
		}
		return c, true
	}

	// Free-form fallback: strip the timezone designator first so the wall
	// clock is preserved exactly as written.
	stripped := trailingTZPattern.ReplaceAllString(str, "")
	for _, layout := range freeFormLayouts {
		parsed, err := time.ParseInLocation(layout, stripped, time.Local)
		if err != nil {
			continue
		}
		return fromTime(parsed), true
	}

	return clock{}, false
}
