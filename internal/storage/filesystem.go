package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"reelgen/internal/domain"
)

// FileStore writes run outputs under a local directory.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists data at the relative key and returns the cleaned key.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// SaveRun writes reel.<ext>, plan.json and caption.txt into a directory
// named after the run, returning the keys written.
func (s *FileStore) SaveRun(ctx context.Context, res *domain.RunResult) ([]string, error) {
	if res == nil || res.Video.Empty() {
		return nil, errors.New("storage: run result has no video")
	}
	planJSON, err := json.MarshalIndent(struct {
		RunID            string             `json:"run_id"`
		Transcript       string             `json:"transcript,omitempty"`
		Plan             domain.ContentPlan `json:"plan"`
		CaptionOverLimit bool               `json:"caption_over_limit"`
	}{res.RunID, res.Transcript, res.Plan, res.Plan.CaptionOverLimit()}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("storage: encode plan: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{"reel" + res.Video.Extension(), res.Video.Bytes()},
		{"plan.json", planJSON},
		{"caption.txt", []byte(res.Plan.Caption + "\n")},
	}
	keys := make([]string, 0, len(files))
	for _, f := range files {
		key, err := s.Write(ctx, path.Join(res.RunID, f.name), f.data)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
