// SnapshotCache mirrors published snapshot blobs to flat files and serves
// them back via mmap instead of going through bbolt's own page cache —
// the one repurposed call site for the teacher's platform mmap package,
// which the teacher itself never wired to anything. A snapshot blob is
// immutable once published, so a read-only mmap of the whole file is safe
// to hand out to any number of concurrent readers.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dshollow/hollow/mmap"
)

type SnapshotCache struct {
	dir string

	mu     sync.Mutex
	mapped map[int64][]byte
	files  map[int64]*os.File
}

func NewSnapshotCache(dir string) *SnapshotCache {
	return &SnapshotCache{
		dir:    dir,
		mapped: make(map[int64][]byte),
		files:  make(map[int64]*os.File),
	}
}

func (c *SnapshotCache) path(version int64) string {
	return filepath.Join(c.dir, fmt.Sprintf("snapshot-%020d.holw", version))
}

// Store writes payload to disk and mmaps it read-only, replacing any
// prior cache entry for version.
func (c *SnapshotCache) Store(version int64, payload []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	path := c.path(version)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("blobstore: write snapshot cache file: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	data, err := mmap.Mmap(f, 0, int(info.Size()), mmap.RandomAccess)
	if err != nil {
		f.Close()
		return fmt.Errorf("blobstore: mmap snapshot cache file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(version)
	c.mapped[version] = data
	c.files[version] = f
	return nil
}

// Load returns the mmapped bytes for version, if cached.
func (c *SnapshotCache) Load(version int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.mapped[version]
	return data, ok
}

func (c *SnapshotCache) evictLocked(version int64) {
	if data, ok := c.mapped[version]; ok {
		mmap.Munmap(data)
		delete(c.mapped, version)
	}
	if f, ok := c.files[version]; ok {
		f.Close()
		delete(c.files, version)
	}
}

// Close unmaps and closes every cached snapshot file.
func (c *SnapshotCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for version := range c.files {
		c.evictLocked(version)
	}
	return nil
}
