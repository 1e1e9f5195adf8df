// Package timecode converts between millisecond offsets and human time strings.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatDisplay formats ms as "m:ss", flooring to whole seconds.
func FormatDisplay(ms int) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// FormatEditable formats ms as "m:ss.mmm". It returns "" when ok is false.
func FormatEditable(ms int, ok bool) string {
	if !ok {
		return ""
	}
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	return fmt.Sprintf("%d:%02d.%03d", s/60, s%60, ms%1000)
}

// ParseEditable parses "m:ss" or "m:ss.mmm" into milliseconds.
// A fraction of one to three digits is right-padded, so "0:01.5" is 1500.
// ok is false for any malformed input.
func ParseEditable(str string) (ms int, ok bool) {
	parts := strings.Split(strings.TrimSpace(str), ":")
	if len(parts) != 2 {
		return 0, false
	}

	mins, ok := parseDigits(parts[0])
	if !ok || mins > maxMinutes {
		return 0, false
	}

	secPart, fracPart, hasFrac := strings.Cut(parts[1], ".")
	secs, ok := parseDigits(secPart)
	if !ok || secs >= 60 {
		return 0, false
	}

	millis := 0
	if hasFrac && fracPart != "" {
		if len(fracPart) > 3 {
			return 0, false
		}
		m, ok := parseDigits(fracPart + strings.Repeat("0", 3-len(fracPart)))
		if !ok {
			return 0, false
		}
		millis = m
	}

	return (mins*60+secs)*1000 + millis, true
}

// maxMinutes keeps the millisecond total within int.
const maxMinutes = math.MaxInt/60_000 - 1

// parseDigits accepts only ASCII digits, rejecting signs and empty strings.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
