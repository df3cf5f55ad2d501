package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "sim")).Info(context.Background(), "tick evaluated",
		Uint64("seq", 7),
		Int("devices", 5),
		Float("km", 6.47),
		Bool("running", true),
		Duration("period", 5*time.Second),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "tick evaluated" || rec["level"] != "INFO" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["component"] != "sim" || rec["error"] != "boom" || rec["running"] != true {
		t.Fatalf("missing fields in %v", rec)
	}
	if rec["seq"].(float64) != 7 || rec["devices"].(float64) != 5 {
		t.Fatalf("numeric fields wrong in %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info/debug to be filtered, got %q", buf.String())
	}
	log.Warn(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestErrNil(t *testing.T) {
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Fatalf("Err(nil) = %+v", f)
	}
}

func TestEnsureRequestIDIsStable(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatalf("expected generated request id")
	}
	again, id2 := EnsureRequestID(ctx)
	if id2 != id || RequestIDFromContext(again) != id {
		t.Fatalf("request id changed: %q -> %q", id, id2)
	}

	ctx = ContextWithRequestID(context.Background(), "fixed")
	if _, got := EnsureRequestID(ctx); got != "fixed" {
		t.Fatalf("EnsureRequestID overwrote existing id: %q", got)
	}
}

func TestWithRequestLoggerAnnotates(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	_, log := WithRequestLogger(ctx, base)
	log.Info(ctx, "hello")

	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Fatalf("request_id missing from %q", buf.String())
	}
}

func TestFromContextOr(t *testing.T) {
	fallback := Noop()
	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	if got := FromContextOr(context.Background(), nil); got == nil {
		t.Fatalf("expected noop logger for nil fallback")
	}

	var buf bytes.Buffer
	stored := New(Config{Output: &buf})
	ctx := ContextWithLogger(context.Background(), stored)
	if got := FromContextOr(ctx, fallback); got != stored {
		t.Fatalf("expected logger from context")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
