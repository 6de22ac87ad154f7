package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string. Empty means 0.
func ParseDurationField(key, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("invalid duration %q", raw), Err: err}
	}
	if d < 0 {
		return 0, &Error{Key: key, Reason: "duration must be >= 0"}
	}
	return d, nil
}

func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseMillis parses a strictly positive integer count of milliseconds.
func ParseMillis(key string, raw Millis) (time.Duration, error) {
	s := strings.TrimSpace(string(raw))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("%q is not a positive integer number of milliseconds", s), Err: err}
	}
	if n > math.MaxInt64/int64(time.Millisecond) {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("%d milliseconds is out of range", n)}
	}
	return time.Duration(n) * time.Millisecond, nil
}
