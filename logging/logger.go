package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	logrus.FieldLogger
}

func New() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

type loggerContextKey struct{}

// WithLogger returns a copy of ctx carrying the given logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext extracts a logger previously attached by WithLogger.
// Falls back to a fresh default logger if nothing was attached.
func LoggerFromContext(ctx context.Context) Logger {
	logger, ok := ctx.Value(loggerContextKey{}).(Logger)
	if !ok {
		return New()
	}
	return logger
}
