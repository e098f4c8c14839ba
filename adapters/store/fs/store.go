package storefs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-deck-export/deck"
)

const metaSuffix = ".meta.json"

// Store keeps exported documents on the local filesystem.
type Store struct {
	Root string
	Now  func() time.Time
}

var _ deck.ArtifactStore = (*Store)(nil)

// NewStore creates a filesystem-backed artifact store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root, Now: time.Now}
}

// Put writes the document atomically and records its metadata next to it.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, meta deck.ArtifactMeta) (deck.ArtifactRef, error) {
	target, err := s.resolve(key)
	if err != nil {
		return deck.ArtifactRef{}, err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return deck.ArtifactRef{}, err
	}

	size, err := writeAtomic(ctx, target, r)
	if err != nil {
		return deck.ArtifactRef{}, err
	}

	meta.Size = size
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/pdf"
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return deck.ArtifactRef{}, err
	}
	if _, err := writeAtomic(ctx, target+metaSuffix, strings.NewReader(string(payload))); err != nil {
		_ = os.Remove(target)
		return deck.ArtifactRef{}, err
	}

	return deck.ArtifactRef{Key: key, Meta: meta}, nil
}

// Open returns the document and its metadata.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, deck.ArtifactMeta, error) {
	_ = ctx
	target, err := s.resolve(key)
	if err != nil {
		return nil, deck.ArtifactMeta{}, err
	}

	file, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, deck.ArtifactMeta{}, deck.NewError(deck.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return nil, deck.ArtifactMeta{}, err
	}

	meta := readMeta(target)
	if meta.Size == 0 {
		if info, err := file.Stat(); err == nil {
			meta.Size = info.Size()
			if meta.CreatedAt.IsZero() {
				meta.CreatedAt = info.ModTime()
			}
		}
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/pdf"
	}
	return file, meta, nil
}

// Delete removes the document and its metadata. Missing files are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	_ = ctx
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	for _, p := range []string{target, target + metaSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *Store) resolve(key string) (string, error) {
	if s == nil {
		return "", deck.NewError(deck.KindInternal, "store is nil", nil)
	}
	if s.Root == "" {
		return "", deck.NewError(deck.KindInvalidInput, "store root is required", nil)
	}
	if key == "" {
		return "", deck.NewError(deck.KindInvalidInput, "artifact key is required", nil)
	}

	rel := strings.TrimPrefix(path.Clean("/"+key), "/")
	if rel == "" || rel == "." || strings.HasSuffix(rel, metaSuffix) {
		return "", deck.NewError(deck.KindInvalidInput, "invalid artifact key", nil)
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", deck.NewError(deck.KindInvalidInput, "artifact key escapes root", nil)
	}
	return target, nil
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// writeAtomic copies r to a temp file next to target and renames it into place.
func writeAtomic(ctx context.Context, target string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".deck-*")
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, err
	}
	return size, nil
}

func readMeta(target string) deck.ArtifactMeta {
	data, err := os.ReadFile(target + metaSuffix)
	if err != nil {
		return deck.ArtifactMeta{}
	}
	var meta deck.ArtifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return deck.ArtifactMeta{}
	}
	return meta
}
