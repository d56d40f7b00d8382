// Package csvlog replays PostgreSQL csvlog output as log events, so a
// server's duration reports reach the hook chain of this process.
package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
)

// Column positions in PostgreSQL's csvlog format.
const (
	colLogTime        = 0
	colUserName       = 1
	colDatabaseName   = 2
	colConnectionFrom = 4
	colErrorSeverity  = 11
	colMessage        = 13

	minColumns = colMessage + 1
)

const logTimeLayout = "2006-01-02 15:04:05.000 MST"

// Relay reads csvlog rows and emits each one as a log record.
type Relay struct {
	logger func() *slog.Logger
	loc    *time.Location
}

// NewRelay emits through logger, or through the slog default logger at
// emit time when logger is nil.
func NewRelay(logger *slog.Logger) *Relay {
	if logger != nil {
		return &Relay{logger: func() *slog.Logger { return logger }, loc: time.UTC}
	}
	return &Relay{logger: slog.Default, loc: time.UTC}
}

// WithLocation sets the server's log_timezone, used to resolve the zone
// abbreviation in log_time.
func (r *Relay) WithLocation(loc *time.Location) *Relay {
	if loc != nil {
		r.loc = loc
	}
	return r
}

// Run relays rows until EOF or ctx is done. It returns the number of rows
// emitted. Malformed rows stop the relay.
func (r *Relay) Run(ctx context.Context, in io.Reader) (int, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var n int
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("reading csvlog row: %w", err)
		}

		ev, err := ParseRow(row, r.loc)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return n, fmt.Errorf("line %d: %w", line, err)
		}

		r.emit(ctx, ev)
		n++
	}
}

func (r *Relay) emit(ctx context.Context, ev domain.LogEvent) {
	logger := r.logger()
	if !logger.Enabled(ctx, ev.Severity) {
		return
	}

	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	rec := slog.NewRecord(at, ev.Severity, ev.Message, 0)
	rec.AddAttrs(
		slog.String(domain.AttrRemoteHost, ev.RemoteHost),
		slog.String(domain.AttrUserName, ev.UserName),
		slog.String(domain.AttrDatabaseName, ev.DatabaseName),
	)
	_ = logger.Handler().Handle(ctx, rec)
}

// ParseRow converts one csvlog row into a LogEvent. log_time is read in
// loc; a zone abbreviation loc does not define leaves Time zero, so the
// record is stamped with the current time instead of a wrong offset.
func ParseRow(row []string, loc *time.Location) (domain.LogEvent, error) {
	if len(row) < minColumns {
		return domain.LogEvent{}, fmt.Errorf("csvlog row has %d columns, need at least %d", len(row), minColumns)
	}

	ev := domain.LogEvent{
		Message:      row[colMessage],
		Severity:     ParseSeverity(row[colErrorSeverity]),
		RemoteHost:   remoteHost(row[colConnectionFrom]),
		UserName:     row[colUserName],
		DatabaseName: row[colDatabaseName],
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(logTimeLayout, row[colLogTime], loc); err == nil && knownZone(t) {
		ev.Time = t
	}
	return ev, nil
}

// knownZone reports whether t's offset came from a real zone. time.Parse
// fabricates a zero offset for abbreviations it cannot resolve.
func knownZone(t time.Time) bool {
	name, offset := t.Zone()
	return offset != 0 || name == "UTC" || name == "GMT"
}

// ParseSeverity maps a PostgreSQL error_severity onto a slog level.
func ParseSeverity(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "DEBUG1", "DEBUG2", "DEBUG3", "DEBUG4", "DEBUG5":
		return slog.LevelDebug
	case "WARNING":
		return slog.LevelWarn
	case "ERROR", "FATAL", "PANIC":
		return slog.LevelError
	default: // LOG, INFO, NOTICE, STATEMENT
		return slog.LevelInfo
	}
}

// remoteHost strips the port from "host:port"; "[local]" is kept as is.
func remoteHost(from string) string {
	if host, _, err := net.SplitHostPort(from); err == nil {
		return host
	}
	return from
}
