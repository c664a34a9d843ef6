package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository caches gallery embeddings in PostgreSQL using pgvector.
type IdentityRepository struct {
	pool *Pool
}

var _ database.IdentityCache = (*IdentityRepository)(nil)

// NewIdentityRepository creates a new identity cache repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// GetIdentity returns the cached identity for a content hash, or nil if not cached.
func (r *IdentityRepository) GetIdentity(ctx context.Context, contentHash string) (*database.StoredIdentity, error) {
	var (
		id        database.StoredIdentity
		vec       pgvector.Vector
		createdAt int64
	)
	err := r.pool.db.QueryRowContext(ctx, `
		SELECT content_hash, label, embedding, model, created_at
		FROM identity_cache
		WHERE content_hash = $1
	`, contentHash).Scan(&id.ContentHash, &id.Label, &vec, &id.Model, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}

	id.Embedding = vec.Slice()
	id.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &id, nil
}

// SaveIdentity stores or replaces a cached identity.
func (r *IdentityRepository) SaveIdentity(ctx context.Context, identity database.StoredIdentity) error {
	if identity.ContentHash == "" {
		return errors.New("content hash is required")
	}
	if len(identity.Embedding) != database.FaceEmbeddingDim {
		return fmt.Errorf("embedding has %d dimensions, cache column holds %d",
			len(identity.Embedding), database.FaceEmbeddingDim)
	}
	createdAt := identity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO identity_cache (content_hash, label, embedding, model, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_hash) DO UPDATE SET
			label = EXCLUDED.label,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			created_at = EXCLUDED.created_at
	`, identity.ContentHash, identity.Label, pgvector.NewVector(identity.Embedding),
		identity.Model, createdAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// PruneIdentities deletes cached identities whose content hash is not in keep.
// Returns the number of deleted rows.
func (r *IdentityRepository) PruneIdentities(ctx context.Context, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	res, err := r.pool.db.ExecContext(ctx,
		"DELETE FROM identity_cache WHERE NOT (content_hash = ANY($1))", pq.Array(keep))
	if err != nil {
		return 0, fmt.Errorf("prune identities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Count returns the number of cached identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identity_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}
