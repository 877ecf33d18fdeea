package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWritesEventField(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.WarnObj("feed skipped", "feed_fetch_error", map[string]any{"source_id": "google-news"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["event"] != "feed_fetch_error" {
		t.Fatalf("unexpected event field: %v", ctx["event"])
	}
	if ctx["source_id"] != "google-news" {
		t.Fatalf("unexpected source_id field: %v", ctx["source_id"])
	}
}

func TestZapLoggerRespectsLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	log := FromZap(zap.New(core))

	log.DebugObj("noisy", "debug_event", nil)
	log.InfoObj("kept", "info_event", nil)

	if logs.Len() != 1 {
		t.Fatalf("expected only the info entry, got %d", logs.Len())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestEnsureNil(t *testing.T) {
	t.Parallel()

	if _, ok := Ensure(nil).(NopLogger); !ok {
		t.Fatal("expected NopLogger for nil input")
	}
}
