package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type Logger struct {
	*slog.Logger
}

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ContextKey for correlation IDs
type contextKey string

const correlationIDKey contextKey = "correlation_id"

func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo writes JSON records to w.
func NewLoggerTo(w io.Writer, level LogLevel) *Logger {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	handler := slog.NewJSONHandler(w, opts)
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// With returns a logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context) context.Context {
	if GetCorrelationID(ctx) == "" {
		correlationID := uuid.New().String()
		return context.WithValue(ctx, correlationIDKey, correlationID)
	}
	return ctx
}

// ContextWithCorrelationID stores an externally supplied correlation ID.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

func withCorrelation(ctx context.Context, args []any) []any {
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		args = append(args, "correlation_id", correlationID)
	}
	return args
}

// Debug logs debug level messages with correlation ID
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.Logger.Debug(msg, withCorrelation(ctx, args)...)
}

// Info logs info level messages with correlation ID
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.Logger.Info(msg, withCorrelation(ctx, args)...)
}

// Warn logs warn level messages with correlation ID
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.Logger.Warn(msg, withCorrelation(ctx, args)...)
}

// Error logs error level messages with correlation ID
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.Logger.Error(msg, withCorrelation(ctx, args)...)
}

// LogGatewayOutcome logs where a redirect request came to rest.
func (l *Logger) LogGatewayOutcome(ctx context.Context, slug, state string, firstVisit bool) {
	l.Info(ctx, "gateway outcome",
		"slug", slug,
		"state", state,
		"first_visit", firstVisit,
	)
}

// LogIdentityEvent logs identity verification without the raw email
func (l *Logger) LogIdentityEvent(ctx context.Context, channel, email string, success bool) {
	l.Info(ctx, "identity event",
		"channel", channel,
		"email", MaskEmail(email),
		"success", success,
	)
}

// LogDelivery logs a follow-up delivery attempt.
func (l *Logger) LogDelivery(ctx context.Context, deliveryID, ruleID, email, status string) {
	l.Info(ctx, "follow-up delivery",
		"delivery_id", deliveryID,
		"rule_id", ruleID,
		"email", MaskEmail(email),
		"status", status,
	)
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return hashSensitiveData(email)
	}
	return email[:1] + "***" + email[at:]
}

// MaskSessionKey hides all but the edges of a session key.
func MaskSessionKey(key string) string {
	return hashSensitiveData(key)
}

func hashSensitiveData(data string) string {
	if len(data) < 8 {
		return "***"
	}
	// Show first 3 and last 3 chars with stars in middle
	return data[:3] + "***" + data[len(data)-3:]
}
