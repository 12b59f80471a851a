package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"eco-challenge-engine/logger"
)

// LocalStore writes artifacts under a directory on disk, the way the API
// served its uploads/ folder before object storage.
type LocalStore struct {
	Dir     string
	BaseURL string
	Policy  UploadPolicy
	Clock   clockwork.Clock
	log     *logger.Logger
}

func NewLocalStore(dir, baseURL string, policy UploadPolicy, log *logger.Logger) (*LocalStore, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &LocalStore{
		Dir:     dir,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Policy:  policy,
		Clock:   clockwork.NewRealClock(),
		log:     log.With("store", "local"),
	}, nil
}

func (s *LocalStore) Store(ctx context.Context, u Upload) (StoredArtifact, error) {
	data, contentType, err := s.Policy.Read(u.Reader)
	if err != nil {
		return StoredArtifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return StoredArtifact{}, err
	}

	key := ObjectKey(u.Prefix, u.Filename, s.now())
	dest := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return StoredArtifact{}, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return StoredArtifact{}, fmt.Errorf("write artifact: %w", err)
	}

	s.log.Debug("artifact stored", "key", key, "bytes", len(data), "content_type", contentType)
	return StoredArtifact{
		Ref:              s.BaseURL + "/" + key,
		Key:              key,
		ContentType:      contentType,
		Size:             int64(len(data)),
		OriginalFilename: u.Filename,
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	err := os.Remove(filepath.Join(s.Dir, clean))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return err
}

func (s *LocalStore) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}
