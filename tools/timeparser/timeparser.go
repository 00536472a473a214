package timeparser

import (
	"fmt"
	"strings"
	"time"
)

var readingDateFormats = []string{
	time.RFC3339Nano,      // 2025-12-29T10:30:45.123Z
	"2006-01-02",          // YYYY-MM-DD
	"2006-01-02 15:04:05", // YYYY-MM-DD HH:mm:ss
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
	"02 15:04:05/01/2006", // DD HH:mm:ss/MM/YYYY
	"02/01/2006",          // DD/MM/YYYY
}

// ParseReadingDate parses a reading date in any format field devices and clients send.
// Values without a zone are taken as UTC.
func ParseReadingDate(dateStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)

	var lastErr error
	for _, format := range readingDateFormats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse reading date '%s': %w", dateStr, lastErr)
}

// IsWithinFutureTolerance reports whether readingTime is not later than
// toleranceMinutes after now. Past dates are always accepted.
func IsWithinFutureTolerance(readingTime, now time.Time, toleranceMinutes int) bool {
	return readingTime.Sub(now) <= time.Duration(toleranceMinutes)*time.Minute
}
