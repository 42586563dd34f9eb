package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Str("part", "A").Msg("shown")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["part"] != "A" {
		t.Errorf("Unexpected entry %v", entry)
	}
}

func TestNewWithWriter_DefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "nonsense")
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected debug suppressed at default info level, got %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), NewWithWriter(&buf, "info"))
	l := FromContext(ctx)
	l.Info().Msg("hello")
	if buf.Len() == 0 {
		t.Error("Expected logger from context to write")
	}

	nop := FromContext(context.Background())
	nop.Info().Msg("nothing")
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" {
		t.Error("Expected empty request ID")
	}
	ctx = WithRequestID(ctx, "abc")
	if RequestID(ctx) != "abc" {
		t.Errorf("Expected abc, got %q", RequestID(ctx))
	}
}
