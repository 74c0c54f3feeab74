package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/domain"
)

// FileCache stores blobs on disk under their key.
type FileCache struct {
	Dir string
}

func (f *FileCache) Get(key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.Dir, key))
}

func (f *FileCache) Put(key string, data []byte) error {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.Dir, key), data, 0644)
}

func (f *FileCache) Exists(key string) bool {
	_, err := os.Stat(filepath.Join(f.Dir, key))
	return err == nil
}

// maxCoverSize guards against a misbehaving image host.
const maxCoverSize = 16 << 20

// Covers fetches cover art once per URL and serves repeats from disk.
type Covers struct {
	cache   *FileCache
	fetcher app.Fetcher
}

func NewCovers(dir string, fetcher app.Fetcher) *Covers {
	return &Covers{cache: &FileCache{Dir: dir}, fetcher: fetcher}
}

func (c *Covers) Cover(ctx context.Context, url string) ([]byte, error) {
	key := domain.CoverKey(url)
	if c.cache.Exists(key) {
		return c.cache.Get(key)
	}

	body, _, err := c.fetcher.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch cover: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxCoverSize))
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}

	if err := c.cache.Put(key, data); err != nil {
		return nil, err
	}
	return data, nil
}
