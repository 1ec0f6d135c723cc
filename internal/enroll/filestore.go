package enroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File names within the speaker directory. The record is split in three so
// that a status probe can stat the centroid without parsing anything and a
// verifier restart can load the centroid without the full embedding set.
const (
	embeddingsFile = "embeddings.json"
	metadataFile   = "metadata.json"
	centroidFile   = "centroid.json"
)

// FileStore persists the enrollment record as three JSON files under a
// speaker directory.
//
// Atomicity: each file is written to a temporary name and renamed into
// place, and the centroid file is renamed last. Presence of the centroid
// file is the commit point: a reader that sees it also sees the embeddings
// and metadata written before it, and a crashed half-finished Save leaves at
// most stale-but-complete state behind.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first Save, not here, so constructing a store is side-effect-free.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the speaker directory path.
func (s *FileStore) Dir() string { return s.dir }

// metadata is the on-disk shape of the record's scalar fields.
type metadata struct {
	ID          string    `json:"id"`
	SampleCount int       `json:"sample_count"`
	CreatedAt   time.Time `json:"created_at"`
	Threshold   float64   `json:"threshold"`
}

// Save writes the record. See the type comment for the atomicity scheme.
func (s *FileStore) Save(_ context.Context, rec Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("enroll: create speaker dir: %w", err)
	}

	meta := metadata{
		ID:          rec.ID,
		SampleCount: rec.SampleCount,
		CreatedAt:   rec.CreatedAt,
		Threshold:   rec.Threshold,
	}

	// Commit order: embeddings, metadata, centroid last.
	if err := s.writeJSON(embeddingsFile, rec.Embeddings); err != nil {
		return err
	}
	if err := s.writeJSON(metadataFile, meta); err != nil {
		return err
	}
	if err := s.writeJSON(centroidFile, rec.Centroid); err != nil {
		return err
	}
	return nil
}

// writeJSON marshals v into dir/name via a temp file + rename.
func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("enroll: marshal %s: %w", name, err)
	}
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("enroll: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("enroll: commit %s: %w", name, err)
	}
	return nil
}

// Load reads the full record.
func (s *FileStore) Load(ctx context.Context) (*Record, error) {
	centroid, err := s.LoadCentroid(ctx)
	if err != nil {
		return nil, err
	}

	var embeddings [][]float32
	if err := s.readJSON(embeddingsFile, &embeddings); err != nil {
		return nil, err
	}
	var meta metadata
	if err := s.readJSON(metadataFile, &meta); err != nil {
		return nil, err
	}

	return &Record{
		ID:          meta.ID,
		Embeddings:  embeddings,
		Centroid:    centroid,
		SampleCount: meta.SampleCount,
		CreatedAt:   meta.CreatedAt,
		Threshold:   meta.Threshold,
	}, nil
}

// LoadCentroid reads only the centroid file.
func (s *FileStore) LoadCentroid(_ context.Context) ([]float32, error) {
	var centroid []float32
	if err := s.readJSON(centroidFile, &centroid); err != nil {
		return nil, err
	}
	return centroid, nil
}

// readJSON unmarshals dir/name into v, mapping a missing file to
// [ErrNoEnrollment].
func (s *FileStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoEnrollment
	}
	if err != nil {
		return fmt.Errorf("enroll: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("enroll: parse %s: %w", name, err)
	}
	return nil
}

// Exists stats the centroid file (the commit point) only.
func (s *FileStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, centroidFile))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enroll: stat %s: %w", centroidFile, err)
	}
	return true, nil
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)
