package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Appender records audit events append-only.
type Appender interface {
	Append(ctx context.Context, event Event) (int64, error)
}

// SQLAppender writes events to the audit_events table.
type SQLAppender struct {
	db QueryRower
}

func NewSQLAppender(db QueryRower) *SQLAppender {
	if db == nil {
		return nil
	}
	return &SQLAppender{db: db}
}

func (a *SQLAppender) Append(ctx context.Context, event Event) (int64, error) {
	if a == nil || a.db == nil {
		return 0, errors.New("sql appender not initialized")
	}
	return Insert(ctx, a.db, event)
}

// LogAppender emits events as structured log records. Used by in-memory
// deployments that have no database to append to.
type LogAppender struct {
	logger *slog.Logger
	seq    atomic.Int64
}

func NewLogAppender(logger *slog.Logger) *LogAppender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogAppender{logger: logger}
}

func (a *LogAppender) Append(_ context.Context, event Event) (int64, error) {
	if a == nil {
		return 0, errors.New("log appender not initialized")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return 0, err
	}
	id := a.seq.Add(1)
	a.logger.Info("audit event",
		"event_id", id,
		"occurred_at", event.OccurredAt.UTC(),
		"actor", event.Actor,
		"action", event.Action,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
		"request_id", event.RequestID,
		"payload", string(payloadJSON),
		"integrity_sha256", integrity,
	)
	return id, nil
}
