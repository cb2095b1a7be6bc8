package autoreply

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTime is returned when a time-of-day string cannot be parsed.
var ErrInvalidTime = errors.New("invalid time format")

const minutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day with minute resolution, stored as
// minutes since midnight. It marshals as a zero-padded 24-hour "HH:MM" string.
type ClockTime int

// Clock returns the ClockTime for the given hour and minute.
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ClockOf returns the time of day of t in t's location, truncated to the minute.
func ClockOf(t time.Time) ClockTime {
	return Clock(t.Hour(), t.Minute())
}

// Hour returns the hour component (0-23).
func (c ClockTime) Hour() int { return int(c) / 60 }

// Minute returns the minute component (0-59).
func (c ClockTime) Minute() int { return int(c) % 60 }

// Valid reports whether c lies within a single day.
func (c ClockTime) Valid() bool {
	return c >= 0 && c < minutesPerDay
}

// String formats c as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// MarshalText implements encoding.TextMarshaler.
func (c ClockTime) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidTime, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClock parses a 24-hour "HH:MM" time of day.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return ClockOf(t), nil
}

// flexibleLayouts are tried in order by ParseFlexibleClock against lower-cased,
// space-free input.
var flexibleLayouts = []string{
	"15:04",
	"3:04pm",
	"3pm",
	"1504",
}

// ParseFlexibleClock accepts the forms people type into commands: "23:59",
// "11:59pm", "11pm" and "9 AM".
func ParseFlexibleClock(s string) (ClockTime, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	normalized = strings.ReplaceAll(normalized, ".", "")
	for _, layout := range flexibleLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return ClockOf(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// IsActive reports whether now falls inside the window [start, end], both ends
// inclusive. A window whose start is after its end wraps past midnight. When
// start equals end the window covers that single minute only.
func IsActive(now, start, end ClockTime) bool {
	if start <= end {
		return start <= now && now <= end
	}
	return now >= start || now <= end
}
