package nbi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parsePeriod reads a tick period from a query parameter or command
// payload. A bare integer is milliseconds; anything else must be a Go
// duration such as "2s". Empty text yields fallback.
func parsePeriod(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	var period time.Duration
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		period = time.Duration(ms) * time.Millisecond
	} else {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: period %q is neither milliseconds nor a duration", ErrInvalidRequest, raw)
		}
		period = d
	}
	if period <= 0 {
		return 0, fmt.Errorf("%w: period must be positive, got %s", ErrInvalidRequest, period)
	}
	return period, nil
}

// parseLimit reads a positive list limit, capped at max.
func parseLimit(raw string, fallback, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidRequest)
	}
	if n > max {
		n = max
	}
	return n, nil
}
