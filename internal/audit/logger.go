package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"
)

// Operation represents the type of auditable operation
type Operation string

const (
	OpRunStart       Operation = "run.start"
	OpRunFinish      Operation = "run.finish"
	OpSearchPause    Operation = "search.pause"
	OpSearchResume   Operation = "search.resume"
	OpCheckpointSave Operation = "checkpoint.save"
)

// Event represents an audit log entry
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation Operation      `json:"operation"`
	RunID     string         `json:"run_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger handles audit logging
type Logger struct {
	logger  *slog.Logger
	enabled bool
}

// New creates a new audit logger writing JSON lines to w
func New(enabled bool, w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{
		logger:  slog.New(handler),
		enabled: enabled,
	}
}

// Log records an audit event. A nil Logger discards it.
func (l *Logger) Log(event *Event) {
	if l == nil {
		return
	}
	if !l.enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.String("audit", "true"),
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
	}

	if event.RunID != "" {
		attrs = append(attrs, slog.String("run_id", event.RunID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Details != nil {
		detailsJSON, _ := json.Marshal(event.Details)
		attrs = append(attrs, slog.String("details", string(detailsJSON)))
	}

	l.logger.Info("AUDIT", attrs...)
}

// Record logs op for a run and session, successful when err is nil
func (l *Logger) Record(op Operation, runID, sessionID, requestID string, err error) {
	event := &Event{
		Operation: op,
		RunID:     runID,
		SessionID: sessionID,
		RequestID: requestID,
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}
