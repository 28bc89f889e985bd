package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/animus-labs/scriptforge/internal/domain"
	"github.com/animus-labs/scriptforge/internal/repo"
)

// ScriptStore is the in-memory ScriptRepository. It owns the record map
// outright: callers only ever see clones, and all mutation goes through a
// single writer lock so a read-modify-write race cannot lose an update or
// skip a version.
type ScriptStore struct {
	mu      sync.RWMutex
	scripts map[string]domain.ScriptRecord
}

func NewScriptStore() *ScriptStore {
	return &ScriptStore{scripts: make(map[string]domain.ScriptRecord)}
}

func (s *ScriptStore) Create(_ context.Context, record domain.ScriptRecord) error {
	if s == nil {
		return fmt.Errorf("script store not initialized")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[record.ID]; ok {
		return repo.ErrAlreadyExists
	}
	s.scripts[record.ID] = record.Clone()
	return nil
}

func (s *ScriptStore) Get(_ context.Context, id string) (domain.ScriptRecord, error) {
	if s == nil {
		return domain.ScriptRecord{}, fmt.Errorf("script store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.scripts[strings.TrimSpace(id)]
	if !ok {
		return domain.ScriptRecord{}, repo.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *ScriptStore) Mutate(_ context.Context, id string, fn func(record *domain.ScriptRecord) error) (domain.ScriptRecord, error) {
	if s == nil {
		return domain.ScriptRecord{}, fmt.Errorf("script store not initialized")
	}
	if fn == nil {
		return domain.ScriptRecord{}, fmt.Errorf("mutation func is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.scripts[strings.TrimSpace(id)]
	if !ok {
		return domain.ScriptRecord{}, repo.ErrNotFound
	}

	work := stored.Clone()
	if err := fn(&work); err != nil {
		return domain.ScriptRecord{}, err
	}
	work.UpdatedAt = repo.MonotonicUpdatedAt(stored.UpdatedAt, work.UpdatedAt)
	if err := repo.ValidateTransition(stored, work); err != nil {
		return domain.ScriptRecord{}, err
	}
	if err := work.Validate(); err != nil {
		return domain.ScriptRecord{}, err
	}
	s.scripts[work.ID] = work.Clone()
	return work.Clone(), nil
}

func (s *ScriptStore) List(_ context.Context, filter repo.ScriptFilter) ([]domain.ScriptRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("script store not initialized")
	}
	ownerID := strings.TrimSpace(filter.OwnerID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ScriptRecord, 0)
	for _, record := range s.scripts {
		if ownerID != "" && record.OwnerID != ownerID {
			continue
		}
		records = append(records, record.Clone())
	}
	// Map iteration order is arbitrary; sort for stable output even though
	// callers get no ordering guarantee.
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}
