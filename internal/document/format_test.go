package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDateFormats(t *testing.T) {
	cases := []struct {
		in, long, short, weekday string
	}{
		{"2024-03-10", "10 marzo 2024", "10/03/2024", "domenica 10 marzo 2024"},
		{"2024-01-05T10:00:00Z", "05 gennaio 2024", "05/01/2024", "venerdì 05 gennaio 2024"},
		{"", "", "", ""},
		{"2024-1-1", "2024-1-1", "2024-1-1", "2024-1-1"},
		{"ieri", "ieri", "ieri", "ieri"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.long, LongDate(tc.in), tc.in)
		assert.Equal(t, tc.short, ShortDate(tc.in), tc.in)
		assert.Equal(t, tc.weekday, WeekdayDate(tc.in), tc.in)
	}
}
