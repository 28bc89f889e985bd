// Package scripts is the caller-facing surface for the script registry:
// upload, read, update, list, and sandboxed execution of owned script
// records. Hosts (CLI, game-event layer) call it in-process.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/scriptforge/internal/domain"
	"github.com/animus-labs/scriptforge/internal/platform/auditlog"
	"github.com/animus-labs/scriptforge/internal/platform/requestid"
	"github.com/animus-labs/scriptforge/internal/repo"
	"github.com/animus-labs/scriptforge/internal/sandbox"
	"github.com/animus-labs/scriptforge/internal/storage/objectstore"
)

const contentTypeScript = "text/plain; charset=utf-8"

// Service orchestrates the script store and the sandbox. The audit
// appender and content archive are optional; a nil archive simply skips
// blob archival and a nil auditor skips audit events.
type Service struct {
	repo          repo.ScriptRepository
	audit         auditlog.Appender
	archive       objectstore.Store
	archiveBucket string
	executor      *sandbox.Executor
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
}

func NewService(repository repo.ScriptRepository, audit auditlog.Appender, archive objectstore.Store, archiveBucket string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		repo:          repository,
		audit:         audit,
		archive:       archive,
		archiveBucket: strings.TrimSpace(archiveBucket),
		executor:      sandbox.NewExecutor(logger),
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Upload validates and stores a new script record owned by ownerID.
// Validation short-circuits on the first missing field: owner, then
// content, then name. Description may be empty.
func (s *Service) Upload(ctx context.Context, ownerID, content, name, description string) (string, error) {
	if s == nil || s.repo == nil {
		return "", fmt.Errorf("script service not initialized")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", &domain.ValidationError{Field: "owner"}
	}
	if content == "" {
		return "", &domain.ValidationError{Field: "content"}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &domain.ValidationError{Field: "name"}
	}

	now := s.now().UTC()
	record := domain.ScriptRecord{
		ID:            s.newID(),
		OwnerID:       ownerID,
		Name:          name,
		Description:   description,
		Content:       content,
		ContentSHA256: domain.ContentSHA256(content),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return "", err
	}

	s.archiveContent(ctx, record)
	s.appendAudit(ctx, "script.upload", record.OwnerID, record.ID, map[string]any{
		"name":           record.Name,
		"version":        record.Version,
		"content_sha256": record.ContentSHA256,
	})
	return record.ID, nil
}

// Get returns an independent copy of the record, or found=false for an
// unknown id. Lookups never produce a caller-visible error for a missing
// record.
func (s *Service) Get(ctx context.Context, id string) (domain.ScriptRecord, bool, error) {
	if s == nil || s.repo == nil {
		return domain.ScriptRecord{}, false, fmt.Errorf("script service not initialized")
	}
	record, err := s.repo.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ScriptRecord{}, false, nil
	}
	if err != nil {
		return domain.ScriptRecord{}, false, err
	}
	return record, true, nil
}

// Update replaces the record's content (and optionally name and
// description) on behalf of requesterID. Checks run in order: the id must
// exist, the requester must own the record, the new content must be
// present. Any failure leaves the stored record untouched.
func (s *Service) Update(ctx context.Context, id, requesterID, content string, name, description *string) (string, error) {
	if s == nil || s.repo == nil {
		return "", fmt.Errorf("script service not initialized")
	}
	requesterID = strings.TrimSpace(requesterID)

	updated, err := s.repo.Mutate(ctx, id, func(record *domain.ScriptRecord) error {
		if record.OwnerID != requesterID {
			return &domain.AuthorizationError{ScriptID: record.ID, RequesterID: requesterID}
		}
		if content == "" {
			return &domain.ValidationError{Field: "content"}
		}
		record.Content = content
		record.ContentSHA256 = domain.ContentSHA256(content)
		if name != nil && strings.TrimSpace(*name) != "" {
			record.Name = strings.TrimSpace(*name)
		}
		if description != nil {
			record.Description = *description
		}
		record.Version++
		record.UpdatedAt = s.now().UTC()
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return "", &domain.NotFoundError{ID: strings.TrimSpace(id)}
	}
	if domain.IsAuthorization(err) {
		s.appendAudit(ctx, "script.update.denied", requesterID, strings.TrimSpace(id), map[string]any{
			"requester": requesterID,
		})
		return "", err
	}
	if err != nil {
		return "", err
	}

	s.archiveContent(ctx, updated)
	s.appendAudit(ctx, "script.update", updated.OwnerID, updated.ID, map[string]any{
		"name":           updated.Name,
		"version":        updated.Version,
		"content_sha256": updated.ContentSHA256,
	})
	return updated.ID, nil
}

// ListByOwner returns copies of exactly the records owned by ownerID, in
// no guaranteed order. An owner with no records gets an empty slice.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]domain.ScriptRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("script service not initialized")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, &domain.ValidationError{Field: "owner"}
	}
	return s.repo.List(ctx, repo.ScriptFilter{OwnerID: ownerID})
}

// Execute loads a stored script, builds a fresh environment from spec,
// and runs the script under limits. The environment is discarded after
// the run; its print output is returned alongside the result.
func (s *Service) Execute(ctx context.Context, id string, spec sandbox.Spec, limits sandbox.Limits) (domain.ExecutionResult, []string, error) {
	if s == nil || s.repo == nil {
		return domain.ExecutionResult{}, nil, fmt.Errorf("script service not initialized")
	}
	record, found, err := s.Get(ctx, id)
	if err != nil {
		return domain.ExecutionResult{}, nil, err
	}
	if !found {
		return domain.ExecutionResult{}, nil, &domain.NotFoundError{ID: strings.TrimSpace(id)}
	}

	env, err := sandbox.New(spec)
	if err != nil {
		return domain.ExecutionResult{}, nil, fmt.Errorf("build environment: %w", err)
	}
	result := s.executor.Run(ctx, record.Content, env, limits)
	output := env.TakeOutput()

	s.appendAudit(ctx, "script.execute", record.OwnerID, record.ID, map[string]any{
		"version": record.Version,
		"ok":      result.OK(),
		"error":   result.Err,
	})
	return result, output, nil
}

// archiveContent writes the content blob keyed by its hash. Archival is
// best-effort: the record is already durable in the repository, so a
// failed archive write logs and moves on.
func (s *Service) archiveContent(ctx context.Context, record domain.ScriptRecord) {
	if s.archive == nil || s.archiveBucket == "" {
		return
	}
	key := fmt.Sprintf("scripts/%s/%s", record.ID, record.ContentSHA256)
	reader := strings.NewReader(record.Content)
	if err := s.archive.Put(ctx, s.archiveBucket, key, reader, int64(len(record.Content)), contentTypeScript); err != nil {
		s.logger.Warn("script content archive failed", "script_id", record.ID, "key", key, "error", err)
	}
}

func (s *Service) appendAudit(ctx context.Context, action, actor, resourceID string, payload map[string]any) {
	if s.audit == nil {
		return
	}
	if strings.TrimSpace(actor) == "" {
		actor = "anonymous"
	}
	requestID, err := requestid.New()
	if err != nil {
		requestID = ""
	}
	_, err = s.audit.Append(ctx, auditlog.Event{
		OccurredAt:   s.now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: "script",
		ResourceID:   resourceID,
		RequestID:    requestID,
		Payload:      payload,
	})
	if err != nil {
		s.logger.Warn("audit append failed", "action", action, "resource_id", resourceID, "error", err)
	}
}
