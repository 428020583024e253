// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ExternalIDKey is the context key for the provider message id being processed
	ExternalIDKey contextKey = "external_id"
	// ConversationIDKey is the context key for conversation ID
	ConversationIDKey contextKey = "conversation_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, external_id, and conversation_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if externalID, ok := ctx.Value(ExternalIDKey).(string); ok && externalID != "" {
		newLogger = newLogger.WithExternalID(externalID)
	}

	if conversationID, ok := ctx.Value(ConversationIDKey).(string); ok && conversationID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("conversation_id", conversationID))}
	}

	return newLogger
}

// WithExternalID returns a logger tagged with the provider message id.
func (l *Logger) WithExternalID(externalID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("external_id", externalID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// DuplicateEvent logs a redelivered external event. Duplicates are an
// expected part of the channel's delivery semantics, so severity is low.
func (l *Logger) DuplicateEvent(externalID string) {
	l.Debug("duplicate_event",
		slog.String("external_id", externalID),
	)
}

// StateTransition logs a conversation state change.
func (l *Logger) StateTransition(conversationID, from, to, event string) {
	l.Info("state_transition",
		slog.String("conversation_id", conversationID),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("event", event),
	)
}

// DispatchError logs a failed or uncertain outbound dispatch.
func (l *Logger) DispatchError(conversationID string, err error) {
	l.Warn("dispatch_error",
		slog.String("conversation_id", conversationID),
		slog.String("error", err.Error()),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
