// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package autonomy

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// Event tags each line of the durable action log.
type Event string

const (
	EventBlock    Event = "BLOCK"
	EventExec     Event = "EXEC"
	EventSuccess  Event = "SUCCESS"
	EventFail     Event = "FAIL"
	EventCircuit  Event = "CIRCUIT"
	EventWarn     Event = "WARN"
	EventMarker   Event = "MARKER"
	EventRecovery Event = "RECOVERY"
	EventError    Event = "ERROR"
	EventCheck    Event = "CHECK"
	EventCache    Event = "CACHE"
)

// ActionLog appends JSON lines to a local file. The file is opened in
// append mode so several processes can share it.
type ActionLog struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// OpenActionLog opens (or creates) the action log at path.
func OpenActionLog(path string) (*ActionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "creating log dir", autoerr.FieldPath(path))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreWriteFailure, "opening action log", autoerr.FieldPath(path))
	}
	return &ActionLog{
		path:   path,
		file:   f,
		logger: slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}, nil
}

// Path returns the log file location.
func (l *ActionLog) Path() string { return l.path }

// Record appends one event. A nil ActionLog discards it.
func (l *ActionLog) Record(ctx context.Context, level slog.Level, event Event, msg string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	l.logger.Log(ctx, level, msg, append([]any{"event", string(event)}, args...)...)
}

// Close closes the underlying file.
func (l *ActionLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// LogEntry is one decoded line of the action log.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Event   Event          `json:"event"`
	Message string         `json:"msg"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// TailEvents returns the last limit entries tagged with event, oldest first.
// A missing file yields no entries. Lines that are not JSON are skipped.
func TailEvents(path string, event Event, limit int) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, autoerr.Wrap(err, autoerr.CodeStoreReadFailure, "opening action log", autoerr.FieldPath(path))
	}
	defer f.Close() //nolint:errcheck

	entries := []LogEntry{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var raw map[string]any
		if err := json.Unmarshal(sc.Bytes(), &raw); err != nil {
			continue
		}
		if ev, _ := raw["event"].(string); Event(ev) != event {
			continue
		}

		var entry LogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			continue
		}
		for _, k := range []string{"time", "level", "event", "msg"} {
			delete(raw, k)
		}
		entry.Attrs = raw
		entries = append(entries, entry)
		if limit > 0 && len(entries) > limit {
			entries = entries[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, autoerr.Wrap(err, autoerr.CodeStoreReadFailure, "scanning action log", autoerr.FieldPath(path))
	}
	return entries, nil
}

// emit logs to the process logger and mirrors the event to the action log.
func (o *options) emit(ctx context.Context, level slog.Level, event Event, msg string, args ...any) {
	o.logger.Log(ctx, level, msg, append([]any{"event", string(event)}, args...)...)
	o.actionLog.Record(ctx, level, event, msg, args...)
}
