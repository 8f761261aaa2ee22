package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger with context-aware helpers.
type Logger struct {
	Logger *zap.Logger
}

var (
	ProductionMode  = "production"
	DevelopmentMode = "development"
)

// New builds a logger for mode. Anything other than production gets the
// development encoder.
func New(mode string) (*Logger, error) {
	var config zap.Config
	if mode == ProductionMode {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zapLogger}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger { return &Logger{Logger: zap.NewNop()} }

type ctxKey string

var (
	RequestIDKey ctxKey = "request_id"
	UserIDKey    ctxKey = "user_id"
	DeviceIDKey  ctxKey = "device_id"
)

// WithContext returns the underlying logger annotated with any ids carried
// by ctx.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	var fields []zap.Field
	if ctx != nil {
		for _, k := range []ctxKey{RequestIDKey, UserIDKey, DeviceIDKey} {
			if v, ok := ctx.Value(k).(string); ok {
				fields = append(fields, zap.String(string(k), v))
			}
		}
	}
	return l.Logger.With(fields...)
}

// Named returns the underlying zap logger scoped to a component name.
func (l *Logger) Named(component string) *zap.Logger {
	return l.Logger.Named(component)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.Logger.Sync() }

var global = Nop()

// SetGlobalLogger replaces the process-wide logger used by the CLI.
func SetGlobalLogger(l *Logger) {
	if l != nil {
		global = l
	}
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() *Logger {
	return global
}

func (l *Logger) Infof(template string, args ...interface{}) {
	l.Logger.Sugar().Infof(template, args...)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.Logger.Sugar().Errorf(template, args...)
}
