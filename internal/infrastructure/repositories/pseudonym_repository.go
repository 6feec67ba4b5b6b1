package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
)

// PseudonymRepository persists pseudonym_mapping rows. OriginalValue is
// stored already-encrypted by the caller (internal/domain/services/pseudonym);
// this repository never sees plaintext subject identifiers.
type PseudonymRepository struct {
	db *sqlx.DB
}

// NewPseudonymRepository builds a PseudonymRepository.
func NewPseudonymRepository(db *sqlx.DB) *PseudonymRepository {
	return &PseudonymRepository{db: db}
}

const selectPseudonymColumns = `
	SELECT id, domain, original_value_encrypted, original_value_hash, pseudonym_value, strategy, created_at`

// FindByOriginal looks up a mapping by its blind index (originalHash),
// backed by a unique b-tree index on (domain, original_value_hash) for
// O(log n) idempotency checks.
func (r *PseudonymRepository) FindByOriginal(ctx context.Context, domain, originalHash string) (*entities.PseudonymMapping, error) {
	var mapping entities.PseudonymMapping
	query := selectPseudonymColumns + ` FROM pseudonym_mapping WHERE domain = $1 AND original_value_hash = $2`
	if err := r.db.GetContext(ctx, &mapping, query, domain, originalHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repositories: find pseudonym by original: %w", err)
	}
	return &mapping, nil
}

// FindByPseudonym looks up a mapping by its pseudonym value, also backed
// by a unique b-tree index for O(log n) re-identification lookups.
func (r *PseudonymRepository) FindByPseudonym(ctx context.Context, domain, pseudonym string) (*entities.PseudonymMapping, error) {
	var mapping entities.PseudonymMapping
	query := selectPseudonymColumns + ` FROM pseudonym_mapping WHERE domain = $1 AND pseudonym_value = $2`
	if err := r.db.GetContext(ctx, &mapping, query, domain, pseudonym); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repositories: find pseudonym by value: %w", err)
	}
	return &mapping, nil
}

func (r *PseudonymRepository) Create(ctx context.Context, mapping *entities.PseudonymMapping) error {
	query := `
		INSERT INTO pseudonym_mapping (domain, original_value_encrypted, original_value_hash, pseudonym_value, strategy, created_at)
		VALUES ($1,$2,$3,$4,$5, now())
		RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query,
		mapping.Domain, mapping.OriginalValue, mapping.OriginalValueHash, mapping.PseudonymValue, mapping.Strategy,
	).Scan(&mapping.ID, &mapping.CreatedAt)
}
