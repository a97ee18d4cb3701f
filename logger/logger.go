// Package logger builds the service's logrus logger and the zap-backed
// logger handed to the Temporal SDK.
package logger

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logrus logger writing to out at level.
func New(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(lvl)
	if out != nil {
		l.SetOutput(out)
	}
	return l, nil
}

// ZapAdapter adapts Zap logger for Temporal's log.Logger interface
type ZapAdapter struct {
	zapLogger *zap.Logger
}

var (
	_ log.Logger     = (*ZapAdapter)(nil)
	_ log.WithLogger = (*ZapAdapter)(nil)
)

// NewZapAdapter creates a new ZapAdapter
func NewZapAdapter(zapLogger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{zapLogger: zapLogger}
}

// NewTemporalLogger builds a production zap logger at level for the
// Temporal client and workers.
func NewTemporalLogger(level string) (*ZapAdapter, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return NewZapAdapter(z.Named("temporal")), nil
}

func (z *ZapAdapter) Debug(msg string, keyvals ...any) {
	z.zapLogger.Debug(msg, zapFields(keyvals)...)
}

func (z *ZapAdapter) Info(msg string, keyvals ...any) {
	z.zapLogger.Info(msg, zapFields(keyvals)...)
}

func (z *ZapAdapter) Warn(msg string, keyvals ...any) {
	z.zapLogger.Warn(msg, zapFields(keyvals)...)
}

func (z *ZapAdapter) Error(msg string, keyvals ...any) {
	z.zapLogger.Error(msg, zapFields(keyvals)...)
}

// With returns a logger that adds keyvals to every entry.
func (z *ZapAdapter) With(keyvals ...any) log.Logger {
	return &ZapAdapter{zapLogger: z.zapLogger.With(zapFields(keyvals)...)}
}

// Sync flushes buffered entries.
func (z *ZapAdapter) Sync() error {
	return z.zapLogger.Sync()
}

// zapFields converts key-value pairs into Zap fields. A trailing key without
// a value is kept under "extra".
func zapFields(keyvals []any) []zap.Field {
	fields := make([]zap.Field, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i == len(keyvals)-1 {
			fields = append(fields, zap.Any("extra", keyvals[i]))
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = "unknown_key"
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}
