package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const metaSuffix = ".meta.json"

// LocalStore keeps blobs as files below a root directory, with metadata in a
// JSON sidecar next to each blob.
type LocalStore struct {
	root string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{root: dir}, nil
}

func (l *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalStore) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(p+metaSuffix, raw, 0o644)
}

func (l *LocalStore) Get(ctx context.Context, key string) ([]byte, Metadata, error) {
	var meta Metadata
	p, err := l.path(key)
	if err != nil {
		return nil, meta, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, meta, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, meta, err
	}
	if raw, err := os.ReadFile(p + metaSuffix); err == nil {
		if err := json.Unmarshal(raw, &meta); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("ignoring unreadable blob metadata")
		}
	}
	return data, meta, nil
}

func (l *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	for _, f := range []string{p, p + metaSuffix} {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Ping checks the root directory is still there.
func (l *LocalStore) Ping(ctx context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", l.root)
	}
	return nil
}

// CleanupTemps removes files below dir older than maxAge whose names start
// with one of prefixes (all files when no prefix is given). It returns how
// many files were removed.
func CleanupTemps(dir string, maxAge time.Duration, prefixes ...string) int {
	now := time.Now()
	removed := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if len(prefixes) > 0 && !hasAnyPrefix(d.Name(), prefixes) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	if removed > 0 {
		log.Info().Str("dir", dir).Int("removed", removed).Msg("cleaned up old files")
	}
	return removed
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
