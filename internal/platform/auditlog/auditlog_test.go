package auditlog

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	occurredAt := time.Unix(1700000000, 0).UTC()
	event := Event{
		OccurredAt:   occurredAt,
		Actor:        "alice",
		Action:       "script.upload",
		ResourceType: "script",
		ResourceID:   "script-123",
		RequestID:    "req-123",
	}
	payloadJSON := []byte(`{"name":"Hello","version":1}`)

	a, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}
}

func TestComputeIntegritySHA256_ChangesOnPayload(t *testing.T) {
	occurredAt := time.Unix(1700000000, 0).UTC()
	event := Event{
		OccurredAt:   occurredAt,
		Actor:        "alice",
		Action:       "script.update",
		ResourceType: "script",
		ResourceID:   "script-123",
	}

	a, err := ComputeIntegritySHA256(event, []byte(`{"version":1}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, []byte(`{"version":2}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == b {
		t.Fatalf("expected integrity to differ")
	}
}

func TestLogAppender_AssignsSequentialIDs(t *testing.T) {
	appender := NewLogAppender(slog.New(slog.NewTextHandler(io.Discard, nil)))
	event := Event{
		OccurredAt:   time.Unix(1700000000, 0).UTC(),
		Actor:        "alice",
		Action:       "script.upload",
		ResourceType: "script",
		ResourceID:   "script-123",
	}
	first, err := appender.Append(context.Background(), event)
	if err != nil {
		t.Fatalf("Append() err=%v", err)
	}
	second, err := appender.Append(context.Background(), event)
	if err != nil {
		t.Fatalf("Append() err=%v", err)
	}
	if second != first+1 {
		t.Fatalf("Append() ids not sequential: %d then %d", first, second)
	}
}

func TestLogAppender_RejectsInvalidEvent(t *testing.T) {
	appender := NewLogAppender(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := appender.Append(context.Background(), Event{Actor: "alice"}); err == nil {
		t.Fatalf("Append() expected error for missing fields")
	}
}
