package cmn

import (
	"strings"
	"time"
)

// FormatHTTPDate formats t per RFC 7231 (used for the Date, Last-Modified,
// and synthetic-response timestamps). Adapted from the teacher's
// s3compat.FormatTime, generalized from "S3 GMT-suffixed RFC1123" to the
// general-purpose HTTP-date helper this core needs in several places
// (backend response Date fallback, LASTMODIFIED attribute, synthetic
// response headers).
func FormatHTTPDate(t time.Time) string {
	s := t.UTC().Format(time.RFC1123)
	return strings.Replace(s, "UTC", "GMT", 1)
}

// ParseHTTPDate parses an RFC 7231 (or legacy RFC 850 / ANSI C asctime)
// HTTP-date, as found in If-Modified-Since/Last-Modified headers.
func ParseHTTPDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC1123, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
