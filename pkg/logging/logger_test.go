package logging

import (
	"context"
	"testing"
	"time"

	"auto_trader/pkg/telemetry"
)

func TestZapLogger_OTelBridge(t *testing.T) {
	tel, err := telemetry.Setup("test-logger")
	if err != nil {
		t.Fatalf("OTel setup failed: %v", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := NewZapLogger("DEBUG")
	if err != nil {
		t.Fatalf("Zap logger creation failed: %v", err)
	}

	logger.Info("bridge check", "key", "value")

	// Allow any OTel batching to flush
	time.Sleep(500 * time.Millisecond)

	logger.Debug("debug message", "status", "testing")

	_ = logger.Sync() // stdout does not always support sync, ignore error
}

func TestZapLogger_WithField(t *testing.T) {
	logger, err := NewZapLogger("INFO")
	if err != nil {
		t.Fatalf("Zap logger creation failed: %v", err)
	}

	child := logger.WithField("component", "test")
	if child == nil {
		t.Fatal("WithField returned nil")
	}
	child.Info("scoped log line")

	grandchild := child.WithFields(map[string]interface{}{"symbol": "BTCUSDC", "side": "LONG"})
	if grandchild == nil {
		t.Fatal("WithFields returned nil")
	}
	grandchild.Info("nested scoped log line")
}

func TestParseZapLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "debug",
		"INFO":  "info",
		"Warn":  "warn",
		"ERROR": "error",
		"bogus": "info",
	}
	for in, want := range cases {
		if got := parseZapLevel(in).String(); got != want {
			t.Errorf("parseZapLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
