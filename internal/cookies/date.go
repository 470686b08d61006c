package cookies

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	strictDateRE = regexp.MustCompile(
		`^[SMTWF][a-z][a-z], (\d\d) ([JFMASOND][a-z][a-z]) (\d\d\d\d) (\d\d):(\d\d):(\d\d) GMT$`)
	weekdayRE = regexp.MustCompile(`(?i)^(?:Sun|Mon|Tue|Wed|Thu|Fri|Sat)[a-z]*,?\s*`)
	// day, month, year, optional clock, optional zone, optional "(zone)".
	looseDateRE = regexp.MustCompile(
		`^(\d\d?)(?:\s+|[-/])(\w+)(?:\s+|[-/])(\d+)` +
			`(?:(?:\s+|:)(\d\d?):(\d\d)(?::(\d\d))?)?` +
			`\s*([-+]?\d\d?(?::?\d\d)?|[A-Za-z]+)?\s*(?:\(\w+\))?\s*$`)
	// month day, year-last forms such as asctime without weekday.
	monthFirstDateRE = regexp.MustCompile(
		`^(\w+)\s+(\d\d?)\s+(?:(\d\d?):(\d\d)(?::(\d\d))?\s+)?(?:([A-Za-z]+)\s+)?(\d{4})` +
			`(?:\s+(\d\d?):(\d\d)(?::(\d\d))?)?\s*([-+]?\d\d?(?::?\d\d)?|[A-Za-z]+)?\s*$`)
	timezoneRE = regexp.MustCompile(`^([-+])?(\d\d?):?(\d\d)?$`)
)

var months = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

var layouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseHTTPDate parses the many date shapes found in expires attributes.
// Two-digit years resolve to the century closest to now. It reports false
// when nothing fits.
func parseHTTPDate(text string, now time.Time) (time.Time, bool) {
	if m := strictDateRE.FindStringSubmatch(text); m != nil {
		return buildDate(m[1], m[2], m[3], m[4], m[5], m[6], "GMT", now)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	stripped := weekdayRE.ReplaceAllString(text, "")
	if m := looseDateRE.FindStringSubmatch(stripped); m != nil && !isMeridiem(m[7]) {
		if t, ok := buildDate(m[1], m[2], m[3], m[4], m[5], m[6], m[7], now); ok {
			return t, true
		}
	}
	if m := monthFirstDateRE.FindStringSubmatch(stripped); m != nil {
		hour, minute, second := m[3], m[4], m[5]
		if hour == "" {
			hour, minute, second = m[8], m[9], m[10]
		}
		zone := m[6]
		if zone == "" {
			zone = m[11]
		}
		if t, ok := buildDate(m[2], m[1], m[7], hour, minute, second, zone, now); ok {
			return t, true
		}
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func isMeridiem(s string) bool {
	return strings.EqualFold(s, "am") || strings.EqualFold(s, "pm")
}

func monthNumber(mon string) (int, bool) {
	lower := strings.ToLower(mon)
	for i, name := range months {
		if lower == name {
			return i + 1, true
		}
	}
	n, err := strconv.Atoi(mon)
	if err != nil || n < 1 || n > 12 {
		return 0, false
	}
	return n, true
}

func atoiDefault(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

func buildDate(dayS, monS, yearS, hourS, minS, secS, zone string, now time.Time) (time.Time, bool) {
	mon, ok := monthNumber(monS)
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearS)
	if err != nil {
		return time.Time{}, false
	}
	day := atoiDefault(dayS)
	hour, minute, sec := atoiDefault(hourS), atoiDefault(minS), atoiDefault(secS)

	if year < 1000 {
		curYear := now.Year()
		century := curYear % 100
		diff := century - year
		year += curYear - century
		if diff > 50 {
			year += 100
		} else if diff < -50 {
			year -= 100
		}
	}

	if year < 1970 || day < 1 || day > 31 || hour > 24 || minute > 59 || sec > 61 {
		return time.Time{}, false
	}

	offset, ok := zoneOffset(zone)
	if !ok {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(mon), day, hour, minute, sec, 0, time.UTC)
	return t.Add(-offset), true
}

// zoneOffset understands UTC aliases and numeric offsets like +0100 or -05:30.
func zoneOffset(zone string) (time.Duration, bool) {
	zone = strings.ToUpper(zone)
	switch zone {
	case "", "GMT", "UTC", "UT", "Z":
		return 0, true
	}
	m := timezoneRE.FindStringSubmatch(zone)
	if m == nil {
		return 0, false
	}
	offset := time.Duration(atoiDefault(m[2]))*time.Hour + time.Duration(atoiDefault(m[3]))*time.Minute
	if m[1] == "-" {
		offset = -offset
	}
	return offset, true
}
