package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scormrelay/internal/mapping"
)

const blobSchema = `CREATE TABLE IF NOT EXISTS mapping_blobs (
	key          TEXT PRIMARY KEY,
	content      BYTEA NOT NULL,
	content_type TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// BlobRepository stores mapping blobs in the mapping_blobs table. It
// satisfies mapping.BlobStore.
type BlobRepository struct {
	db DBTX
}

func NewBlobRepository(db DBTX) *BlobRepository {
	return &BlobRepository{db: db}
}

// EnsureSchema creates the table when it does not exist.
func (r *BlobRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, blobSchema); err != nil {
		return fmt.Errorf("ensure mapping_blobs schema: %w", err)
	}
	return nil
}

// Read returns mapping.ErrBlobNotFound when no row exists for key.
func (r *BlobRepository) Read(ctx context.Context, key string) ([]byte, error) {
	var content []byte
	err := r.db.QueryRow(ctx,
		`SELECT content FROM mapping_blobs WHERE key = $1`, key,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mapping.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", key, err)
	}
	return content, nil
}

// Write replaces the row for key.
func (r *BlobRepository) Write(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO mapping_blobs (key, content, content_type, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (key) DO UPDATE
		 SET content = EXCLUDED.content,
		     content_type = EXCLUDED.content_type,
		     updated_at = EXCLUDED.updated_at`,
		key, data, contentType,
	)
	if err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	return nil
}

// Ping runs a trivial query.
func (r *BlobRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping mapping_blobs: %w", err)
	}
	return nil
}
