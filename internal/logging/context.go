package logging

import (
	"context"
)

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context carrying the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// CycleContext creates a logger for one scheduled advisory cycle
func CycleContext(cycleID string) *Logger {
	return Default().WithCycleID(cycleID).WithComponent("cycle")
}

// FactorContext creates a logger for a single factor fetch
func FactorContext(kind string) *Logger {
	return Default().WithField("factor", kind).WithComponent("factors")
}

// NotificationContext creates a logger for notification delivery
func NotificationContext(provider string) *Logger {
	return Default().WithField("provider", provider).WithComponent("notification")
}

// TelegramContext creates a logger for inbound chat handling
func TelegramContext(chatID int64) *Logger {
	return Default().WithField("chat_id", chatID).WithComponent("telegram")
}
