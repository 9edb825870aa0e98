package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// ----- Public wire types -----

// ErrorObject is emitted only for error logs.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// LogEntry is the single-line JSON format written to stdout.
type LogEntry struct {
	Timestamp    string       `json:"timestamp"`               // ISO 8601 format timestamp
	Level        string       `json:"level"`                   // DEBUG | INFO | ERROR
	Service      string       `json:"service"`                 // service name (e.g., navigation-service)
	Action       string       `json:"action"`                  // event name (e.g., route_requested)
	Message      string       `json:"message"`                 // human-readable description
	Hostname     string       `json:"hostname"`                // service hostname
	RequestID    string       `json:"request_id,omitempty"`    // correlation ID for tracing
	SessionID    string       `json:"session_id,omitempty"`    // navigation session (when applicable)
	TechnicianID string       `json:"technician_id,omitempty"` // technician being navigated
	JobID        string       `json:"job_id,omitempty"`        // job the technician is driving to
	Details      any          `json:"details,omitempty"`       // optional: extra fields (map or struct)
	Error        *ErrorObject `json:"error,omitempty"`         // optional: error details
}

// ----- Logger -----

type Logger struct {
	service  string
	hostname string
	debug    bool
	out      io.Writer
	mu       sync.Mutex
}

// New creates a structured logger for the given service writing to stdout.
func New(service string) *Logger {
	return NewWithWriter(service, os.Stdout)
}

// NewWithWriter is New with an explicit sink; tests pass a buffer.
func NewWithWriter(service string, out io.Writer) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}

	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}
	if out == nil {
		out = io.Discard
	}

	return &Logger{service: service, hostname: hn, debug: true, out: out}
}

// SetDebug toggles DEBUG lines. They are on by default.
func (l *Logger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

// emit marshals and prints a single JSON line.
func (l *Logger) emit(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Level == "DEBUG" && !l.debug {
		return
	}

	b, err := json.Marshal(e)
	if err == nil {
		fmt.Fprintln(l.out, string(b))
		return
	}

	// retry once without Details (common source of marshal errors)
	e.Details = nil
	if b, err := json.Marshal(e); err == nil {
		fmt.Fprintln(l.out, string(b))
		return
	}

	fallback := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"level":     "ERROR",
		"service":   l.service,
		"action":    "logger_marshal_failed",
		"message":   "failed to encode log entry",
		"hostname":  l.hostname,
		"error": ErrorObject{
			Msg:   strings.TrimSpace(err.Error()),
			Stack: string(debug.Stack()),
		},
	}

	if fb, err := json.Marshal(fallback); err == nil {
		fmt.Fprintln(l.out, string(fb))
	} else {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
	}
}

func (l *Logger) entry(ctx context.Context, level, action, msg string, details any) LogEntry {
	return LogEntry{
		Timestamp:    nowISO(),
		Level:        level,
		Service:      l.service,
		Action:       safeAction(action),
		Message:      strings.TrimSpace(msg),
		Hostname:     l.hostname,
		RequestID:    fromCtx(ctx, ctxKeyRequestID),
		SessionID:    fromCtx(ctx, ctxKeySessionID),
		TechnicianID: fromCtx(ctx, ctxKeyTechnicianID),
		JobID:        fromCtx(ctx, ctxKeyJobID),
		Details:      details,
	}
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.emit(l.entry(ctx, "DEBUG", action, msg, details))
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.emit(l.entry(ctx, "INFO", action, msg, details))
}

// Error writes an ERROR line and attaches an error stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}

	e := l.entry(ctx, "ERROR", action, msg, details)
	e.Error = &ErrorObject{
		Msg:   strings.TrimSpace(err.Error()),
		Stack: string(debug.Stack()),
	}
	l.emit(e)
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID    ctxKey = "fieldnav_request_id"
	ctxKeySessionID    ctxKey = "fieldnav_session_id"
	ctxKeyTechnicianID ctxKey = "fieldnav_technician_id"
	ctxKeyJobID        ctxKey = "fieldnav_job_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	return withValue(ctx, ctxKeyRequestID, reqID)
}

// WithSessionID returns a new context carrying session_id.
func (l *Logger) WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withValue(ctx, ctxKeySessionID, sessionID)
}

// WithTechnicianID returns a new context carrying technician_id.
func (l *Logger) WithTechnicianID(ctx context.Context, technicianID string) context.Context {
	return withValue(ctx, ctxKeyTechnicianID, technicianID)
}

// WithJobID returns a new context carrying job_id.
func (l *Logger) WithJobID(ctx context.Context, jobID string) context.Context {
	return withValue(ctx, ctxKeyJobID, jobID)
}

// RequestID extracts request_id from ctx (if any).
func RequestID(ctx context.Context) string {
	return fromCtx(ctx, ctxKeyRequestID)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if strings.TrimSpace(v) == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func fromCtx(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ----- Small utilities -----

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
