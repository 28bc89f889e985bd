package repo

import (
	"context"
	"errors"

	"github.com/animus-labs/scriptforge/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type ScriptFilter struct {
	OwnerID string
	Limit   int
}

// ScriptRepository stores script records. Reads return independent copies;
// mutations on a single id are atomic with respect to concurrent callers.
type ScriptRepository interface {
	Create(ctx context.Context, record domain.ScriptRecord) error
	Get(ctx context.Context, id string) (domain.ScriptRecord, error)

	// Mutate applies fn to the stored record under the store's per-id
	// mutation guard. fn receives a private copy; if it returns an error
	// the stored record is left untouched and the error is returned
	// verbatim. On success the store persists the copy after checking the
	// version chain (see ValidateTransition) and returns a clone of the
	// new state.
	Mutate(ctx context.Context, id string, fn func(record *domain.ScriptRecord) error) (domain.ScriptRecord, error)

	List(ctx context.Context, filter ScriptFilter) ([]domain.ScriptRecord, error)
}
