// Package normalizer converts raw cell values into the canonical forms used
// for matching: YYYY-MM-DD dates, PV reference codes and non-negative
// amounts. Every function is total: values that cannot be interpreted
// degrade to the empty string or zero instead of returning an error, so a
// doubtful value produces a missed match rather than a false one.
package normalizer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang-pv-reconciliation/internal/models"
)

const (
	timeSuffix = `(?:[ T](\d{1,2}):(\d{2})(?::(\d{2})(?:\.\d+)?)?)?`

	minYear = 1900
	maxYear = 2100

	// Serial numbers outside (minSerial, maxSerial) are not treated as dates.
	minSerial = 1
	maxSerial = 1_000_000
)

var (
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// Both numeric patterns accept a trailing clock time, which is validated
	// and then discarded.
	dayFirstPattern  = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})` + timeSuffix + `$`)
	yearFirstPattern = regexp.MustCompile(`^(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})` + timeSuffix + `$`)

	// serialEpoch carries the 1900 leap-year bug of spreadsheet serials:
	// serial n is serialEpoch + (n - 2) days.
	serialEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

	// lenientLayouts are tried in order once the fixed patterns fail.
	// Ambiguous numeric layouts are day-first.
	lenientLayouts = []string{
		time.RFC3339,
		"2/1/06",
		"2-1-06",
		"2.1.06",
		"20060102",
		"2 Jan 2006",
		"2-Jan-2006",
		"2/Jan/2006",
		"2 January 2006",
		"2-Jan-06",
		"Jan 2, 2006",
		"Jan 2 2006",
		"January 2, 2006",
		"January 2 2006",
		"Mon, 2 Jan 2006",
		"Monday, 2 January 2006",
	}
)

// NormalizeDate returns the cell as a YYYY-MM-DD string, or "" when it
// cannot be read as a calendar date.
func NormalizeDate(cell models.Cell) string {
	switch cell.Kind() {
	case models.CellDate:
		t, _ := cell.Date()
		return t.Format(models.DateLayout)
	case models.CellNumber:
		n, _ := cell.Number()
		return dateFromSerial(n)
	case models.CellText:
		s, _ := cell.Text()
		return NormalizeDateString(s)
	default:
		return ""
	}
}

// NormalizeDateString applies the textual date rules to s
func NormalizeDateString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if isoDatePattern.MatchString(s) {
		return s
	}

	if m := dayFirstPattern.FindStringSubmatch(s); m != nil {
		if !validClock(m[4], m[5], m[6]) {
			return ""
		}
		return fromParts(m[3], m[2], m[1])
	}
	if m := yearFirstPattern.FindStringSubmatch(s); m != nil {
		if !validClock(m[4], m[5], m[6]) {
			return ""
		}
		return fromParts(m[1], m[2], m[3])
	}

	for _, layout := range lenientLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() < minYear || t.Year() > maxYear {
				return ""
			}
			return t.Format(models.DateLayout)
		}
	}

	return ""
}

// fromParts validates the components captured by a fixed pattern. A pattern
// match that fails validation is final: no other interpretation is tried.
func fromParts(year, month, day string) string {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)

	if y < minYear || y > maxYear || m < 1 || m > 12 || d < 1 || d > 31 {
		return ""
	}

	return year + "-" + pad2(m) + "-" + pad2(d)
}

// validClock checks the optional time captured after a numeric date.
// Empty parts mean no time was given.
func validClock(hour, minute, second string) bool {
	if hour == "" {
		return true
	}
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	sec := 0
	if second != "" {
		sec, _ = strconv.Atoi(second)
	}
	return h <= 23 && m <= 59 && sec <= 59
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func dateFromSerial(n float64) string {
	if n <= minSerial || n >= maxSerial {
		return ""
	}
	days := int(n) - 2
	return serialEpoch.AddDate(0, 0, days).Format(models.DateLayout)
}
