package repo

import (
	"errors"
	"fmt"
	"time"

	"github.com/animus-labs/scriptforge/internal/domain"
)

// ValidateTransition checks that an update keeps the record's immutable
// identity and moves the version chain forward by exactly one. Both store
// implementations run this before persisting a mutation.
func ValidateTransition(old, updated domain.ScriptRecord) error {
	if updated.ID != old.ID {
		return errors.New("script id is immutable")
	}
	if updated.OwnerID != old.OwnerID {
		return errors.New("script owner is immutable")
	}
	if !updated.CreatedAt.Equal(old.CreatedAt) {
		return errors.New("created at is immutable")
	}
	if updated.Version != old.Version+1 {
		return fmt.Errorf("version must move from %d to %d, got %d", old.Version, old.Version+1, updated.Version)
	}
	return nil
}

// MonotonicUpdatedAt returns a timestamp strictly after prev. Wall clocks
// can collapse two operations into the same instant; bump by a nanosecond
// so updatedAt never repeats within one record's history.
func MonotonicUpdatedAt(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Nanosecond)
}
