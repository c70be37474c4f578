package logging

import "context"

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// AnalysisContext creates a logger scoped to one symbol's analysis pass
func AnalysisContext(symbol string) *Logger {
	return Default().WithComponent("analysis").WithField("symbol", symbol)
}

// LevelContext creates a logger scoped to one tracked price level
func LevelContext(symbol string, level float64) *Logger {
	return Default().WithComponent("touch").WithFields(map[string]interface{}{
		"symbol": symbol,
		"level":  level,
	})
}
