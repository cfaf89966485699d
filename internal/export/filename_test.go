package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilenamePart(t *testing.T) {
	cases := map[string]string{
		"Mario Rossi":         "Mario_Rossi",
		"  Niccolò   D'Amico ": "Niccolo_D_Amico",
		"José/Ñúñez":          "Jose_Nunez",
		"":                    UnknownSubject,
		"   ":                 UnknownSubject,
		"!!!":                 UnknownSubject,
		"A--B__C":             "A_B_C",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizeFilenamePart(in), "input %q", in)
	}
}

func TestFilenameUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	now := time.Date(2024, 3, 5, 1, 30, 0, 0, loc)
	require.Equal(t, "Report_Investigativo_Mario_Rossi_2024-03-04.pdf", Filename("Mario Rossi", now))
	require.Equal(t, "Report_Investigativo_Sconosciuto_2024-03-04.pdf", Filename("", now))
}
