package document

import (
	"fmt"
	"strings"
	"time"
)

var italianMonths = [...]string{
	"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno",
	"luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre",
}

var italianWeekdays = [...]string{
	"domenica", "lunedì", "martedì", "mercoledì", "giovedì", "venerdì", "sabato",
}

// parseDate accepts ISO dates with or without a time component.
func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if len(value) < len("2006-01-02") {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", value[:10]); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// LongDate renders "DD <mese> YYYY". Empty input stays empty and unparseable
// input is returned unchanged.
func LongDate(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	t, ok := parseDate(value)
	if !ok {
		return value
	}
	return longDate(t)
}

func longDate(t time.Time) string {
	return fmt.Sprintf("%02d %s %d", t.Day(), italianMonths[t.Month()-1], t.Year())
}

// ShortDate renders "DD/MM/YYYY" with the same fallbacks as LongDate.
func ShortDate(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	t, ok := parseDate(value)
	if !ok {
		return value
	}
	return t.Format("02/01/2006")
}

// WeekdayDate renders "<giorno> DD <mese> YYYY".
func WeekdayDate(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	t, ok := parseDate(value)
	if !ok {
		return value
	}
	return italianWeekdays[t.Weekday()] + " " + longDate(t)
}
