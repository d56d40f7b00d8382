package domain

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DurationMarker is the literal that qualifies a message as a duration report.
const DurationMarker = "duration:"

var durationPattern = regexp.MustCompile(`duration:\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*ms`)

// IsDurationReport is a plain substring test; any message containing the
// marker qualifies, wherever it appears.
func IsDurationReport(message string) bool {
	return strings.Contains(message, DurationMarker)
}

// Truncate cuts s to at most max bytes. The cut backs off to the previous
// rune boundary so the result stays valid UTF-8.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ParseDuration extracts the milliseconds value of the first
// "duration: <number> ms" occurrence in message.
func ParseDuration(message string) (float64, error) {
	m := durationPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, ErrNoDuration
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, ErrNoDuration
	}
	return ms, nil
}

// ParseRecord turns a qualifying event into a DurationRecord stamped with
// logTime. The raw message is truncated to MaxRawMessageLen before parsing.
func ParseRecord(ev LogEvent, logTime string) (DurationRecord, error) {
	if !IsDurationReport(ev.Message) {
		return DurationRecord{}, ErrNotDurationReport
	}

	raw := Truncate(ev.Message, MaxRawMessageLen)
	ms, err := ParseDuration(raw)
	if err != nil {
		return DurationRecord{}, err
	}

	return DurationRecord{
		LogTime:      logTime,
		RemoteHost:   ev.RemoteHost,
		UserName:     ev.UserName,
		DatabaseName: ev.DatabaseName,
		DurationMS:   ms,
		RawMessage:   raw,
	}, nil
}
