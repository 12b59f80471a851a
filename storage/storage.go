// Package storage keeps proof artifacts outside the relational store. The
// database only ever sees the returned reference.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/unidecode"
)

var (
	ErrRejected = errors.New("artifact rejected by upload policy")
	ErrNotFound = errors.New("artifact not found")
)

// Upload is one incoming file.
type Upload struct {
	Reader   io.Reader
	Filename string
	// Size as declared by the client; the policy re-checks the real length.
	Size   int64
	Prefix string
}

// StoredArtifact is what a store hands back after a successful write.
type StoredArtifact struct {
	Ref              string `json:"ref"`
	Key              string `json:"key"`
	ContentType      string `json:"content_type"`
	Size             int64  `json:"size"`
	OriginalFilename string `json:"original_filename"`
}

type ArtifactStore interface {
	Store(ctx context.Context, u Upload) (StoredArtifact, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds "<prefix>/<yyyy>/<mm>/<uuid>-<safe name>".
func ObjectKey(prefix, filename string, now time.Time) string {
	if prefix == "" {
		prefix = "proofs"
	}
	return path.Join(prefix, now.UTC().Format("2006/01"), uuid.NewString()+"-"+SafeFilename(filename))
}

// SafeFilename folds a client filename to a short ASCII token.
func SafeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	folded := unidecode.Unidecode(name)

	var b strings.Builder
	lastDash := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		return "artifact"
	}
	if len(out) > 80 {
		out = out[len(out)-80:]
	}
	return out
}

func rejected(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}
