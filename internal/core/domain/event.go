package domain

import (
	"errors"
	"log/slog"
	"time"
)

// Attribute keys carrying the connection context of a log event.
const (
	AttrRemoteHost   = "remote_host"
	AttrUserName     = "user_name"
	AttrDatabaseName = "database_name"
)

// MaxRawMessageLen bounds the stored raw message in bytes.
const MaxRawMessageLen = 200

var (
	ErrNotDurationReport = errors.New("not a duration report")
	ErrNoDuration        = errors.New("duration pattern not found")
)

// LogEvent is a diagnostic message emitted by the host, with the ambient
// connection context it was raised under.
type LogEvent struct {
	Time         time.Time
	Message      string
	Severity     slog.Level
	RemoteHost   string
	UserName     string
	DatabaseName string
}

// DurationRecord is the structured form of one qualifying LogEvent, ready
// to be persisted as a single audit row.
type DurationRecord struct {
	LogTime      string
	RemoteHost   string
	UserName     string
	DatabaseName string
	DurationMS   float64
	RawMessage   string
}
