// Package observability provides the structured logging and metrics every
// stage binary shares. Concrete tracing/dashboard backends are out of scope
// (spec.md §1 lists telemetry among the external contracts this system does
// not reimplement); what remains is the structured-event layer spec.md §9
// requires: every significant event carries (stage, record_id, outcome,
// latency_ms).
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/eventarb/crossvenue/internal/config"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is a structured log record, emitted as one JSON object per line.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Service   string                 `json:"service"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger is a structured logger with a configurable minimum level and
// output format.
type Logger struct {
	serviceName string
	logLevel    LogLevel
	format      string
}

// NewLogger creates a new structured logger from an ObservabilityConfig.
func NewLogger(cfg config.ObservabilityConfig) *Logger {
	return &Logger{
		serviceName: cfg.ServiceName,
		logLevel:    LogLevel(cfg.LogLevel),
		format:      cfg.LogFormat,
	}
}

func (l *Logger) Debug(ctx context.Context, message string, fields ...map[string]interface{}) {
	if l.shouldLog(LogLevelDebug) {
		l.log(LogLevelDebug, message, nil, fields...)
	}
}

func (l *Logger) Info(ctx context.Context, message string, fields ...map[string]interface{}) {
	if l.shouldLog(LogLevelInfo) {
		l.log(LogLevelInfo, message, nil, fields...)
	}
}

func (l *Logger) Warn(ctx context.Context, message string, fields ...map[string]interface{}) {
	if l.shouldLog(LogLevelWarn) {
		l.log(LogLevelWarn, message, nil, fields...)
	}
}

func (l *Logger) Error(ctx context.Context, message string, err error, fields ...map[string]interface{}) {
	if l.shouldLog(LogLevelError) {
		l.log(LogLevelError, message, err, fields...)
	}
}

func (l *Logger) log(level LogLevel, message string, err error, fields ...map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Service:   l.serviceName,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{})
		for _, fieldMap := range fields {
			for k, v := range fieldMap {
				entry.Fields[k] = v
			}
		}
	}

	l.output(entry)
}

func (l *Logger) output(entry LogEntry) {
	if l.format == "json" {
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(os.Stdout, string(data))
		} else {
			log.Printf("failed to marshal log entry: %v", err)
		}
		return
	}
	fmt.Printf("[%s] %s %s: %s\n", entry.Timestamp, entry.Level, entry.Service, entry.Message)
}

func (l *Logger) shouldLog(level LogLevel) bool {
	levels := map[LogLevel]int{
		LogLevelDebug: 0,
		LogLevelInfo:  1,
		LogLevelWarn:  2,
		LogLevelError: 3,
	}

	configuredLevel, exists := levels[l.logLevel]
	if !exists {
		configuredLevel = levels[LogLevelInfo]
	}

	messageLevel, exists := levels[level]
	if !exists {
		return false
	}

	return messageLevel >= configuredLevel
}

// WithFields returns a FieldLogger that always merges fields into every
// call, so a stage's main loop can attach (stage, record_id) once per record.
func (l *Logger) WithFields(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{logger: l, fields: fields}
}

// FieldLogger is a Logger with pre-set fields.
type FieldLogger struct {
	logger *Logger
	fields map[string]interface{}
}

func (fl *FieldLogger) Debug(ctx context.Context, message string) { fl.logger.Debug(ctx, message, fl.fields) }
func (fl *FieldLogger) Info(ctx context.Context, message string)  { fl.logger.Info(ctx, message, fl.fields) }
func (fl *FieldLogger) Warn(ctx context.Context, message string)  { fl.logger.Warn(ctx, message, fl.fields) }
func (fl *FieldLogger) Error(ctx context.Context, message string, err error) {
	fl.logger.Error(ctx, message, err, fl.fields)
}

// LogOutcome records a single processed-record event with the fields the
// design notes require: stage, record id, outcome, latency.
func (l *Logger) LogOutcome(ctx context.Context, stage, recordID, outcome string, latency time.Duration, extra ...map[string]interface{}) {
	fields := map[string]interface{}{
		"stage":       stage,
		"record_id":   recordID,
		"outcome":     outcome,
		"latency_ms":  latency.Milliseconds(),
	}
	for _, m := range extra {
		for k, v := range m {
			fields[k] = v
		}
	}
	if outcome == "error" {
		l.Error(ctx, fmt.Sprintf("%s: %s", stage, outcome), nil, fields)
		return
	}
	l.Info(ctx, fmt.Sprintf("%s: %s", stage, outcome), fields)
}
