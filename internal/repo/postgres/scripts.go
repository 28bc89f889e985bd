package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-labs/scriptforge/internal/domain"
	"github.com/animus-labs/scriptforge/internal/repo"
)

const scriptColumns = `script_id, owner_id, name, description, content, content_sha256, version, created_at, updated_at`

type ScriptStore struct {
	db DB
}

func NewScriptStore(db DB) *ScriptStore {
	if db == nil {
		return nil
	}
	return &ScriptStore{db: db}
}

func (s *ScriptStore) Create(ctx context.Context, record domain.ScriptRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("script store not initialized")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO scripts (`+scriptColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(record.ID),
		strings.TrimSpace(record.OwnerID),
		strings.TrimSpace(record.Name),
		record.Description,
		record.Content,
		record.ContentSHA256,
		record.Version,
		normalizeTime(record.CreatedAt),
		normalizeTime(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert script: %w", err)
	}
	return nil
}

func (s *ScriptStore) Get(ctx context.Context, id string) (domain.ScriptRecord, error) {
	if s == nil || s.db == nil {
		return domain.ScriptRecord{}, fmt.Errorf("script store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ScriptRecord{}, repo.ErrNotFound
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+scriptColumns+` FROM scripts WHERE script_id = $1`,
		id,
	)
	record, err := scanScript(row)
	if err != nil {
		return domain.ScriptRecord{}, handleNotFound(err)
	}
	return record, nil
}

// Mutate serializes concurrent updates on one id through a row lock:
// SELECT ... FOR UPDATE holds the row until commit, so the version chain
// observed inside fn is the version chain that gets written.
func (s *ScriptStore) Mutate(ctx context.Context, id string, fn func(record *domain.ScriptRecord) error) (domain.ScriptRecord, error) {
	if s == nil || s.db == nil {
		return domain.ScriptRecord{}, fmt.Errorf("script store not initialized")
	}
	if fn == nil {
		return domain.ScriptRecord{}, fmt.Errorf("mutation func is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ScriptRecord{}, repo.ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScriptRecord{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT `+scriptColumns+` FROM scripts WHERE script_id = $1 FOR UPDATE`,
		id,
	)
	stored, err := scanScript(row)
	if err != nil {
		return domain.ScriptRecord{}, handleNotFound(err)
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

	result, err := tx.ExecContext(
		ctx,
		`UPDATE scripts
		 SET name = $2, description = $3, content = $4, content_sha256 = $5, version = $6, updated_at = $7
		 WHERE script_id = $1 AND version = $8`,
		work.ID,
		strings.TrimSpace(work.Name),
		work.Description,
		work.Content,
		work.ContentSHA256,
		work.Version,
		work.UpdatedAt.UTC(),
		stored.Version,
	)
	if err != nil {
		return domain.ScriptRecord{}, fmt.Errorf("update script: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.ScriptRecord{}, fmt.Errorf("update script: %w", err)
	}
	if affected != 1 {
		return domain.ScriptRecord{}, fmt.Errorf("update script: expected 1 row, got %d", affected)
	}
	if err := tx.Commit(); err != nil {
		return domain.ScriptRecord{}, fmt.Errorf("commit: %w", err)
	}
	return work, nil
}

func (s *ScriptStore) List(ctx context.Context, filter repo.ScriptFilter) ([]domain.ScriptRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("script store not initialized")
	}
	query, args := buildScriptListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ScriptRecord, 0)
	for rows.Next() {
		record, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return records, nil
}

func buildScriptListQuery(filter repo.ScriptFilter) (string, []any) {
	clauses := make([]string, 0, 1)
	args := make([]any, 0, 2)

	if strings.TrimSpace(filter.OwnerID) != "" {
		args = append(args, strings.TrimSpace(filter.OwnerID))
		clauses = append(clauses, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	query := `SELECT ` + scriptColumns + ` FROM scripts`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (domain.ScriptRecord, error) {
	var record domain.ScriptRecord
	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Name,
		&record.Description,
		&record.Content,
		&record.ContentSHA256,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return domain.ScriptRecord{}, err
	}
	return record, nil
}
