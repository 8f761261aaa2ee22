package logger_test

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ciphermesh/internal/logger"
)

func TestWithContext_AddsIDs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &logger.Logger{Logger: zap.New(core)}

	ctx := context.WithValue(context.Background(), logger.UserIDKey, "alice")
	ctx = context.WithValue(ctx, logger.DeviceIDKey, "2")
	l.WithContext(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "alice" || fields["device_id"] != "2" {
		t.Fatalf("fields %v", fields)
	}
	if _, ok := fields["request_id"]; ok {
		t.Fatal("unexpected request_id")
	}
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{logger.ProductionMode, logger.DevelopmentMode} {
		l, err := logger.New(mode)
		if err != nil {
			t.Fatalf("New(%s): %v", mode, err)
		}
		if l.Logger == nil {
			t.Fatalf("New(%s) returned nil zap logger", mode)
		}
	}
}
