package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// history keeps the latest events for /events and new WebSocket clients.
var history = NewRing(256)

// Store persists emitted events. *postgres.Client implements it.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

var (
	store         Store
	storeMu       sync.RWMutex
	storeErrorLog bool

	logger   *slog.Logger
	loggerMu sync.RWMutex

	session   string
	sessionMu sync.RWMutex
)

// SetStore sets the event store. nil disables persistence.
func SetStore(s Store) {
	storeMu.Lock()
	store = s
	storeErrorLog = false
	storeMu.Unlock()
}

// SetLogger routes every emitted event to l as well.
func SetLogger(l *slog.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// SetSession tags subsequent events with a run session id ("" clears it).
func SetSession(id string) {
	sessionMu.Lock()
	session = id
	sessionMu.Unlock()
}

// Session returns the current run session id.
func Session() string {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return session
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit validates, buffers, broadcasts, persists and logs an event.
// It returns the JSON encoding of the event.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	sid := Session()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		SessionID: sid,
		Fields:    fields,
	}

	history.Add(e)
	broadcast(e)
	logEvent(e)

	storeMu.RLock()
	s := store
	storeMu.RUnlock()

	if s != nil {
		if err := s.Append(ts, level, name, msg, fields, sid); err != nil {
			reportStoreError(err)
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}

// reportStoreError records the first store failure directly in the buffer.
// Going through Emit would recurse while the store keeps failing.
func reportStoreError(err error) {
	storeMu.Lock()
	if storeErrorLog {
		storeMu.Unlock()
		return
	}
	storeErrorLog = true
	storeMu.Unlock()

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "event store append failed",
		Fields:    map[string]interface{}{"error": err.Error()},
	}
	history.Add(e)
	logEvent(e)
}

func logEvent(e Event) {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		return
	}

	attrs := make([]slog.Attr, 0, len(e.Fields)+2)
	attrs = append(attrs, slog.String("event", e.Name))
	if e.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", e.SessionID))
	}
	for k, v := range e.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	msg := e.Message
	if msg == "" {
		msg = e.Name
	}
	l.LogAttrs(context.Background(), slogLevel(e.Level), msg, attrs...)
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func Snapshot() []Event {
	return history.Snapshot()
}

// TotalCount returns how many events have been emitted since the last Clear.
func TotalCount() uint64 {
	return history.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	history.Clear()
}
