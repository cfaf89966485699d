package export

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnknownSubject replaces a blank subject name in export filenames.
const UnknownSubject = "Sconosciuto"

const filenamePrefix = "Report_Investigativo"

// SanitizeFilenamePart strips accents and replaces every run of characters
// outside [A-Za-z0-9] with a single underscore.
func SanitizeFilenamePart(s string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	var b strings.Builder
	pendingSep := false
	for _, r := range stripped {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return UnknownSubject
	}
	return b.String()
}

// Filename builds Report_Investigativo_<subject>_<YYYY-MM-DD>.pdf using the UTC date.
func Filename(subject string, now time.Time) string {
	return filenamePrefix + "_" + SanitizeFilenamePart(subject) + "_" + now.UTC().Format("2006-01-02") + ".pdf"
}
