package database

import "time"

// timestampLayout is fixed-width UTC so that stored values sort
// lexicographically in the same order as chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// formatTimestamp renders t in the stored layout.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that may appear in the
// database. Rows written by the store use timestampLayout; the others cover
// values inserted by hand through the sqlite3 shell.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
