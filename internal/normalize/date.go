package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	incompleteDotRe = regexp.MustCompile(`^\.(\d{1,2})\.(\d{2,4})$`)
	dmyTimeRe       = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})\s+(\d{1,2}):(\d{1,2})(?::(\d{1,2}))?$`)
	dmyRe           = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})$`)
	isoRe           = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})(?:[T\s](\d{1,2}):(\d{2})(?::(\d{2}))?)?`)
	wordDateRe      = regexp.MustCompile(`^(\d{1,2})\s+([а-яёa-z]+)\.?\s+(\d{2,4})\s*(?:г\.?)?$`)
	embeddedDateRe  = regexp.MustCompile(`\d{1,2}[./-]\d{1,2}[./-]\d{2,4}(?:\s+\d{1,2}:\d{1,2}(?::\d{1,2})?)?`)
	numericRe       = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// Spreadsheet serial day zero, as used by Excel and Google Sheets: serial
// 45915 is 2025-09-15 and 45916 is 2025-09-16.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// 2000-01-01 in Unix milliseconds; larger numbers are read as timestamps.
const minTimestampMillis = 946684800000

var monthWords = map[string]time.Month{
	"января": time.January, "январь": time.January, "янв": time.January,
	"февраль": time.February, "февраля": time.February, "февр": time.February, "фев": time.February,
	"март": time.March, "марта": time.March, "мар": time.March,
	"апрель": time.April, "апреля": time.April, "апр": time.April,
	"май": time.May, "мая": time.May,
	"июнь": time.June, "июня": time.June,
	"июль": time.July, "июля": time.July,
	"август": time.August, "августа": time.August, "авг": time.August,
	"сентябрь": time.September, "сентября": time.September, "сент": time.September,
	"октябрь": time.October, "октября": time.October, "окт": time.October,
	"ноябрь": time.November, "ноября": time.November, "нояб": time.November,
	"декабрь": time.December, "декабря": time.December, "дек": time.December,
}

// Keys never scanned for embedded dates.
var skipScanKeys = map[string]bool{"page_number": true, "bank_name": true}

// Numeric cells of these columns are money or identifiers, not serial dates.
var nonDateNumberKeys = keySet(AmountKeys, BINKeys)

func keySet(lists ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, l := range lists {
		for _, k := range l {
			set[k] = true
		}
	}
	return set
}

// ParseDate parses raw into a UTC date. Accepted forms, in order: time.Time,
// spreadsheet serial numbers, millisecond timestamps, ".MM.YYYY",
// "DD.MM.YYYY HH:MM[:SS]", "DD.MM.YYYY" (also with '/' or '-'), ISO
// "YYYY-MM-DD" and "DD <month> YYYY [г.]".
func ParseDate(raw any, now time.Time) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		return parseDateString(v, now)
	}
	if f, ok := toFloat(raw); ok {
		return parseDateNumber(f, now)
	}
	return time.Time{}, false
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func parseDateNumber(v float64, now time.Time) (time.Time, bool) {
	if v > 0 && v < 1_000_000 {
		days := math.Floor(v)
		t := serialEpoch.AddDate(0, 0, int(days)).Add(time.Duration((v - days) * float64(24*time.Hour)))
		if t.Year() >= 1990 && t.Year() <= now.Year()+1 {
			return t, true
		}
	}
	if v > minTimestampMillis {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Time{}, false
}

func parseDateString(s string, now time.Time) (time.Time, bool) {
	raw := strings.TrimSpace(s)
	switch strings.ToLower(raw) {
	case "", "null", "undefined", "nan", "none":
		return time.Time{}, false
	}

	if numericRe.MatchString(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			if t, ok := parseDateNumber(f, now); ok {
				return t, true
			}
		}
	}

	if m := incompleteDotRe.FindStringSubmatch(raw); m != nil {
		year, ok := expandYear(m[2])
		if !ok {
			return time.Time{}, false
		}
		return makeDate(year, atoi(m[1]), 1, 0, 0, 0)
	}

	if m := dmyTimeRe.FindStringSubmatch(raw); m != nil {
		year, ok := expandYear(m[3])
		if !ok {
			return time.Time{}, false
		}
		return makeDate(year, atoi(m[2]), atoi(m[1]), atoi(m[4]), atoi(m[5]), atoi(m[6]))
	}

	if m := dmyRe.FindStringSubmatch(raw); m != nil {
		year, ok := expandYear(m[3])
		if !ok {
			return time.Time{}, false
		}
		return makeDate(year, atoi(m[2]), atoi(m[1]), 0, 0, 0)
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if m := isoRe.FindStringSubmatch(raw); m != nil {
		return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6]))
	}

	if m := wordDateRe.FindStringSubmatch(strings.ToLower(raw)); m != nil {
		month, ok := monthWords[strings.TrimSuffix(m[2], ".")]
		if !ok {
			return time.Time{}, false
		}
		year, ok := expandYear(m[3])
		if !ok {
			return time.Time{}, false
		}
		return makeDate(year, int(month), atoi(m[1]), 0, 0, 0)
	}

	return time.Time{}, false
}

// expandYear pivots two-digit years at 70: "69" is 2069, "70" is 1970.
func expandYear(s string) (int, bool) {
	y := atoi(s)
	switch len(s) {
	case 2:
		if y < 70 {
			return 2000 + y, true
		}
		return 1900 + y, true
	case 4:
		return y, true
	}
	return 0, false
}

func makeDate(year, month, day, hour, minute, second int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// TransactionDate resolves the date of a row. The dedicated date columns are
// tried first; converters often misplace the date into a free-text column, so
// every other field is then scanned for an embedded date whose year lies in
// [2000, now.Year()+2].
func TransactionDate(r Record, now time.Time) (time.Time, bool) {
	if v := rawFieldValue(r, DateKeys); v != nil {
		if t, ok := ParseDate(v, now); ok {
			return t, true
		}
	}

	keys := make([]string, 0, len(r))
	for k := range r {
		if strings.HasPrefix(k, "_ikap_") || skipScanKeys[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	minYear, maxYear := 2000, now.Year()+2
	plausible := func(t time.Time) bool { return t.Year() >= minYear && t.Year() <= maxYear }

	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			text := strings.TrimSpace(v)
			if text == "" || strings.EqualFold(text, "none") {
				continue
			}
			for _, match := range embeddedDateRe.FindAllString(text, -1) {
				if t, ok := parseDateString(match, now); ok && plausible(t) {
					return t, true
				}
			}
		default:
			if nonDateNumberKeys[k] {
				continue
			}
			if f, ok := toFloat(v); ok && f != 0 {
				if t, ok := parseDateNumber(f, now); ok && plausible(t) {
					return t, true
				}
			}
		}
	}

	return time.Time{}, false
}

func rawFieldValue(r Record, keys []string) any {
	for _, key := range keys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case string, time.Time, *time.Time:
			return v
		}
		if _, ok := toFloat(v); ok {
			return v
		}
	}
	return nil
}
