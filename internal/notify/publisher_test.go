package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestTopic(t *testing.T) {
	if got := Topic("bulb-001"); got != "devices/bulb-001" {
		t.Errorf("Topic() = %q, want %q", got, "devices/bulb-001")
	}
}

func TestLogPublisher_Publish_WritesTopicAndPayload(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := p.Publish(context.Background(), "bulb-001", "on"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["topic"] != "devices/bulb-001" {
		t.Errorf("topic = %v, want %q", entry["topic"], "devices/bulb-001")
	}
	if entry["payload"] != "on" {
		t.Errorf("payload = %v, want %q", entry["payload"], "on")
	}
}

func TestLogPublisher_Publish_CanceledContext(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, "bulb-001", "on")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be logged for a canceled publish")
	}
}

func TestNewLogPublisher_NilLoggerUsesDefault(t *testing.T) {
	if NewLogPublisher(nil).logger == nil {
		t.Error("expected default logger")
	}
}
