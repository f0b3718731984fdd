package utils

import (
	"fmt"
	"strings"
	"time"
)

// Agent timestamps arrive in the terminal's local dotted format, with or
// without seconds.
const (
	agentTimeLayout        = "2006.01.02 15:04"
	agentTimeLayoutSeconds = "2006.01.02 15:04:05"
)

// ParseAgentTime converts an agent-formatted timestamp ("2024.01.31 15:04",
// optionally with seconds) to a canonical UTC time. Trailing null bytes some
// terminals append to form fields are stripped first.
func ParseAgentTime(value string) (time.Time, error) {
	value = strings.TrimRight(strings.TrimSpace(value), "\x00")
	if value == "" {
		return time.Time{}, fmt.Errorf("empty agent timestamp")
	}
	if t, err := time.ParseInLocation(agentTimeLayoutSeconds, value, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(agentTimeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid agent timestamp %q: %w", value, err)
	}
	return t, nil
}

// ParseDataTime normalizes the dotted date separators the stat collectors
// send ("2024.01.31 15:00:00") and parses the result as a UTC time point.
func ParseDataTime(value string) (time.Time, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ".", "-"))
	if value == "" {
		return time.Time{}, fmt.Errorf("empty data time")
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid data time %q: %w", value, err)
	}
	return t, nil
}

// ResetTime resets the time component based on the granularity specified.
// Pass "minute" to reset seconds to zero.
// Pass "hour" to reset minutes and seconds to zero.
func ResetTime(t time.Time, granularity string) time.Time {
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute)
	case "hour":
		return t.Truncate(time.Hour)
	default:
		return t
	}
}
