package enroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// ddlSpeaker returns the enrollment DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time; changing it later requires a manual schema change.
func ddlSpeaker(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS speaker_profile (
    id            TEXT         PRIMARY KEY,
    centroid      vector(%d)   NOT NULL,
    sample_count  INT          NOT NULL,
    threshold     DOUBLE PRECISION NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL
);

CREATE TABLE IF NOT EXISTS speaker_samples (
    profile_id  TEXT        NOT NULL REFERENCES speaker_profile (id) ON DELETE CASCADE,
    idx         INT         NOT NULL,
    embedding   vector(%d)  NOT NULL,
    PRIMARY KEY (profile_id, idx)
);
`, dimensions, dimensions)
}

// PGStore persists the enrollment record in PostgreSQL with pgvector
// columns. It exists for installations that sync a profile across machines;
// the default backend is [FileStore].
//
// The store holds exactly one profile: Save deletes any previous row and
// inserts the new one inside a single transaction, so concurrent readers see
// either the old or the new record in full. All methods are safe for
// concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to the database at dsn, registers pgvector types on
// every connection, and runs the idempotent migration. dimensions must match
// the encoder's embedding dimensionality.
func NewPGStore(ctx context.Context, dsn string, dimensions int) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("enroll: parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("enroll: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("enroll: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlSpeaker(dimensions)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("enroll: migrate: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Save replaces the stored profile wholesale in one transaction.
func (s *PGStore) Save(ctx context.Context, rec Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("enroll: begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM speaker_profile`); err != nil {
		return fmt.Errorf("enroll: clear previous profile: %w", err)
	}

	const insertProfile = `
		INSERT INTO speaker_profile (id, centroid, sample_count, threshold, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, insertProfile,
		rec.ID,
		pgvector.NewVector(rec.Centroid),
		rec.SampleCount,
		rec.Threshold,
		rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("enroll: insert profile: %w", err)
	}

	const insertSample = `
		INSERT INTO speaker_samples (profile_id, idx, embedding)
		VALUES ($1, $2, $3)`
	for i, emb := range rec.Embeddings {
		if _, err := tx.Exec(ctx, insertSample, rec.ID, i, pgvector.NewVector(emb)); err != nil {
			return fmt.Errorf("enroll: insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("enroll: commit save: %w", err)
	}
	return nil
}

// Load reads the full record.
func (s *PGStore) Load(ctx context.Context) (*Record, error) {
	const q = `
		SELECT id, centroid, sample_count, threshold, created_at
		FROM   speaker_profile
		LIMIT  1`

	var (
		rec Record
		vec pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, q).Scan(&rec.ID, &vec, &rec.SampleCount, &rec.Threshold, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoEnrollment
	}
	if err != nil {
		return nil, fmt.Errorf("enroll: load profile: %w", err)
	}
	rec.Centroid = vec.Slice()

	const qSamples = `
		SELECT embedding
		FROM   speaker_samples
		WHERE  profile_id = $1
		ORDER  BY idx`
	rows, err := s.pool.Query(ctx, qSamples, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("enroll: load samples: %w", err)
	}
	rec.Embeddings, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]float32, error) {
		var v pgvector.Vector
		if err := row.Scan(&v); err != nil {
			return nil, err
		}
		return v.Slice(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("enroll: scan samples: %w", err)
	}
	return &rec, nil
}

// LoadCentroid reads only the centroid column.
func (s *PGStore) LoadCentroid(ctx context.Context) ([]float32, error) {
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, `SELECT centroid FROM speaker_profile LIMIT 1`).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoEnrollment
	}
	if err != nil {
		return nil, fmt.Errorf("enroll: load centroid: %w", err)
	}
	return vec.Slice(), nil
}

// Exists reports whether a profile row is present.
func (s *PGStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM speaker_profile)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("enroll: check profile: %w", err)
	}
	return exists, nil
}

// Compile-time interface check.
var _ Store = (*PGStore)(nil)
