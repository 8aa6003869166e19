package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradedocs/tradedocs/internal/shared"
)

// Repository defines persistence operations for API keys.
type Repository interface {
	Insert(ctx context.Context, key APIKey) error
	FindByKeyID(ctx context.Context, keyID string) (*APIKey, error)
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
	Revoke(ctx context.Context, keyID string, at time.Time) error
	List(ctx context.Context) ([]APIKey, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, key APIKey) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (key_id, name, secret_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		key.KeyID, key.Name, key.SecretHash, key.CreatedAt)
	return err
}

func (r *PGRepository) FindByKeyID(ctx context.Context, keyID string) (*APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		SELECT key_id, name, secret_hash, created_at, last_used_at, revoked_at
		FROM api_keys WHERE key_id = $1`, keyID,
	).Scan(&key.KeyID, &key.Name, &key.SecretHash, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *PGRepository) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE key_id = $2`, at, keyID)
	return err
}

func (r *PGRepository) Revoke(ctx context.Context, keyID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE key_id = $2 AND revoked_at IS NULL`, at, keyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) List(ctx context.Context) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT key_id, name, secret_hash, created_at, last_used_at, revoked_at
		FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		if err := rows.Scan(&key.KeyID, &key.Name, &key.SecretHash, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
