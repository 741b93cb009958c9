package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New("info").Output(&buf)

	log.Info().Msg("queue consumer started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v, output: %s", err, buf.String())
	}
	if entry["message"] != "queue consumer started" {
		t.Errorf("message = %v", entry["message"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON output")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn").Output(&buf)

	log.Info().Msg("filtered")
	if buf.Len() > 0 {
		t.Errorf("expected info to be filtered at warn level, got %s", buf.String())
	}

	log.Error().Msg("kept")
	if buf.Len() == 0 {
		t.Error("expected error to pass at warn level")
	}
}

func TestNew_InvalidLevel_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("not_a_level").Output(&buf)

	log.Debug().Msg("debug message")
	if buf.Len() > 0 {
		t.Error("expected debug message to be filtered at info level")
	}

	log.Info().Msg("info message")
	if buf.Len() == 0 {
		t.Error("expected info message to appear at info level")
	}
}

func TestFromContext_AttachesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New("info").Output(&buf))
	ctx = WithCorrelationID(ctx, "msg-abc-123")

	log := FromContext(ctx)
	log.Info().Msg("delivery handled")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON, got error: %v, output: %s", err, buf.String())
	}
	if entry["correlation_id"] != "msg-abc-123" {
		t.Errorf("correlation_id = %v, want msg-abc-123", entry["correlation_id"])
	}
}

func TestFromContext_WithoutLogger(t *testing.T) {
	log := FromContext(context.Background())

	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Msg("fallback")
	if buf.Len() == 0 {
		t.Error("expected fallback logger to produce output")
	}
}

func TestNewCorrelationID(t *testing.T) {
	id1 := NewCorrelationID()
	id2 := NewCorrelationID()

	if id1 == "" || id1 == id2 {
		t.Errorf("expected unique non-empty IDs, got %q and %q", id1, id2)
	}
	if len(strings.Split(id1, "-")) != 5 {
		t.Errorf("expected UUID format, got %s", id1)
	}
}
