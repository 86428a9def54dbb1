// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// GlobalLogger is the JSON logger used by repository and websocket instrumentation.
var GlobalLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableRepoLogging bool
	EnableWSLogging   bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableRepoLogging: true,
	EnableWSLogging:   true,
}

// RepoLogger provides structured logging for repository writes.
type RepoLogger struct {
	table  string
	logger *slog.Logger
}

// NewRepoLogger creates a new RepoLogger for the given table.
func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{table: table, logger: GlobalLogger}
}

// LogWrite logs a successful mutating repository operation.
func (l *RepoLogger) LogWrite(ctx context.Context, operation string, attrs ...slog.Attr) {
	if !Config.EnableRepoLogging {
		return
	}
	all := append([]slog.Attr{
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("trace_id", TraceIDFromContext(ctx)),
	}, attrs...)
	l.logger.LogAttrs(ctx, slog.LevelInfo, "repository write", all...)
}

// LogError logs a failed repository operation.
func (l *RepoLogger) LogError(ctx context.Context, operation string, err error) {
	if !Config.EnableRepoLogging || err == nil {
		return
	}
	l.logger.ErrorContext(ctx, "repository error",
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("trace_id", TraceIDFromContext(ctx)),
		slog.String("error", err.Error()),
	)
}

// WSLogger provides structured logging for WebSocket hubs.
type WSLogger struct {
	hub    string
	logger *slog.Logger
}

// NewWSLogger creates a new WSLogger for the given hub.
func NewWSLogger(hub string) *WSLogger {
	return &WSLogger{hub: hub, logger: GlobalLogger}
}

// LogConnect logs a WebSocket connection event.
func (l *WSLogger) LogConnect(ctx context.Context, userID uint, clients int) {
	if !Config.EnableWSLogging {
		return
	}
	l.logger.InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("clients", clients),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID uint, reason string) {
	if !Config.EnableWSLogging {
		return
	}
	l.logger.InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("reason", reason),
	)
}

// LogError logs a WebSocket error event.
func (l *WSLogger) LogError(ctx context.Context, userID uint, err error, eventType string) {
	if !Config.EnableWSLogging || err == nil {
		return
	}
	l.logger.ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}
