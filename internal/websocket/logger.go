package websocket

import (
	"go.uber.org/zap"

	"dmchat/pkg/logger"
)

// Logger provides structured logging for live channel events
type Logger struct {
	logger *zap.Logger
}

func NewLogger(l *logger.Logger) *Logger {
	if l == nil {
		l = logger.Nop()
	}
	return &Logger{
		logger: l.Logger.With(zap.String("component", "websocket")),
	}
}

// Info logs info level event
func (l *Logger) Info(event string, chatID int64, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Int64("chat_id", chatID),
	}, fields...)
	l.logger.Info("websocket_event", allFields...)
}

// Error logs error level event
func (l *Logger) Error(event string, chatID int64, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Int64("chat_id", chatID),
		zap.Error(err),
	}, fields...)
	l.logger.Error("websocket_error", allFields...)
}

// Warn logs warning level event
func (l *Logger) Warn(event string, chatID int64, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Int64("chat_id", chatID),
	}, fields...)
	l.logger.Warn("websocket_warning", allFields...)
}
