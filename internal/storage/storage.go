package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const uploadPrefix = "uploaded_"

// ArtifactStore keeps uploaded model and label files. Save returns a local
// path the model runtime can open.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data io.Reader) (string, error)
}

// StoredName is the file name an upload called name is kept under.
func StoredName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return uploadPrefix + base, nil
}

type LocalStore struct {
	baseDir string
}

var _ ArtifactStore = (*LocalStore)(nil)

func NewLocalStore(dir string) (*LocalStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}
	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Save writes to a staging file first so a failed upload never replaces a
// previously stored file of the same name.
func (s *LocalStore) Save(ctx context.Context, name string, data io.Reader) (string, error) {
	stored, err := StoredName(name)
	if err != nil {
		return "", err
	}

	staging := filepath.Join(s.baseDir, ".staging-"+uuid.NewString())
	dst, err := os.Create(staging)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(dst, data); err != nil {
		dst.Close()
		os.Remove(staging)
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(staging)
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}

	path := filepath.Join(s.baseDir, stored)
	if err := os.Rename(staging, path); err != nil {
		os.Remove(staging)
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}

	return path, nil
}
