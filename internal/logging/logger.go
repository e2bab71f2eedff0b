// Package logging provides structured logging for the proxy on top of
// logrus, with trace-id context propagation and log-size truncation helpers.
package logging

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried across middleware and logging.
type ContextKey string

// TraceIDKey is the context key used to propagate a request trace id.
const TraceIDKey ContextKey = "trace_id"

// Logger wraps logrus.Logger with the service name attached to every entry.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger with an explicit level and formatter.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a logger from LOG_LEVEL/LOG_FORMAT, defaulting to info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext attaches the service name and, if present, the trace id carried in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	return entry
}

// WithFields attaches arbitrary structured fields plus the service name.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError attaches an error plus the service name.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// NewTraceID returns a fresh random trace id.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores a trace id in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceIDFromContext retrieves the trace id stored in ctx, if any.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// DumpCut truncates data's rendered form when it exceeds maxLength,
// returning a single-key map keyed fullKey with the untouched value, or
// cutKey with a "<half>…<half>" synopsis. Keeps oversized request and
// response bodies out of log lines without dropping them entirely.
func DumpCut(rendered string, maxLength int, fullKey, cutKey string) map[string]string {
	if len(rendered) <= maxLength {
		return map[string]string{fullKey: rendered}
	}
	half := maxLength / 2
	if half < 1 {
		half = 1
	}
	if half*2 >= len(rendered) {
		return map[string]string{fullKey: rendered}
	}
	return map[string]string{cutKey: rendered[:half] + "…" + rendered[len(rendered)-half:]}
}

// FormatDuration renders a duration as a millisecond string for log fields.
func FormatDuration(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Nanoseconds())/1e6, 'f', 2, 64) + "ms"
}
