package zaplog

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/taskweave/go-tasking/core"
)

const logLevel = "TASKING_LOG_LEVEL"

// Logger adapts a zap.Logger to the core.Logger interface.
type Logger struct {
	l *zap.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps an existing zap.Logger.
func New(l *zap.Logger) *Logger {
	return &Logger{l: l}
}

// NewFromEnv builds a production zap logger whose level is taken from the
// TASKING_LOG_LEVEL environment variable (DEBUG, WARN; INFO otherwise).
func NewFromEnv() *Logger {
	conf := zap.NewProductionConfig()
	conf.Sampling = nil
	conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := strings.ToUpper(os.Getenv(logLevel))
	switch level {
	case "DEBUG":
		conf.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "WARN":
		conf.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:

	}

	l, err := conf.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return &Logger{l: l}
}

func (z *Logger) Debug(msg string, fields ...core.Field) {
	z.l.Debug(msg, zapFields(fields)...)
}

func (z *Logger) Info(msg string, fields ...core.Field) {
	z.l.Info(msg, zapFields(fields)...)
}

func (z *Logger) Warn(msg string, fields ...core.Field) {
	z.l.Warn(msg, zapFields(fields)...)
}

func (z *Logger) Error(msg string, fields ...core.Field) {
	z.l.Error(msg, zapFields(fields)...)
}

// Sync flushes buffered log entries.
func (z *Logger) Sync() error {
	return z.l.Sync()
}

func zapFields(fields []core.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
