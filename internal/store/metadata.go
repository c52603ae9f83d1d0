package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetGeneratorInfo records which backend produced the latest exam.
func (s *Store) SetGeneratorInfo(info model.GeneratorInfo) error {
	pairs := []struct{ k, v string }{
		{"last_provider", info.Provider},
		{"last_model", info.Model},
		{"last_image_model", info.ImageModel},
		{"last_used_at", info.UsedAt.UTC().Format(time.RFC3339)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetGeneratorInfo reads the backend recorded by SetGeneratorInfo. The zero
// value is returned when nothing was recorded yet.
func (s *Store) GetGeneratorInfo() (model.GeneratorInfo, error) {
	var info model.GeneratorInfo
	var err error

	if info.Provider, err = s.GetMetadata("last_provider"); err != nil {
		return info, err
	}
	if info.Model, err = s.GetMetadata("last_model"); err != nil {
		return info, err
	}
	if info.ImageModel, err = s.GetMetadata("last_image_model"); err != nil {
		return info, err
	}
	usedAt, err := s.GetMetadata("last_used_at")
	if err != nil {
		return info, err
	}
	if usedAt != "" {
		info.UsedAt, err = time.Parse(time.RFC3339, usedAt)
		if err != nil {
			return info, err
		}
	}
	return info, nil
}
