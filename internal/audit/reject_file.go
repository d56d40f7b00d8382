package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of a rejected duration record.
type fileEntry struct {
	Timestamp    string  `json:"ts"`
	Reason       string  `json:"reason"`
	LogTime      string  `json:"log_time"`
	RemoteHost   string  `json:"remote_host"`
	UserName     string  `json:"user_name"`
	DatabaseName string  `json:"database_name"`
	DurationMS   float64 `json:"duration_ms"`
	RawMessage   string  `json:"raw_message"`
	Error        *string `json:"error"`
}

// FileRejectRecorder writes qualifying events that did not become table rows
// as NDJSON (one JSON object per line) to a file.
type FileRejectRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileRejectRecorder opens (or creates) the file at path for append-only writing.
func NewFileRejectRecorder(path string) (*FileRejectRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileRejectRecorder{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (a *FileRejectRecorder) Record(_ context.Context, entry port.RejectEntry) {
	fe := fileEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Reason:       entry.Reason,
		LogTime:      entry.Record.LogTime,
		RemoteHost:   entry.Record.RemoteHost,
		UserName:     entry.Record.UserName,
		DatabaseName: entry.Record.DatabaseName,
		DurationMS:   entry.Record.DurationMS,
		RawMessage:   entry.Record.RawMessage,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; never fail the log call for reject I/O
}

func (a *FileRejectRecorder) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
