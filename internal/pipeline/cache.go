package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"rorsk/internal/conform"
	"rorsk/internal/project"
)

// CacheSchema is bumped whenever the patch output for a given input changes.
const CacheSchema uint16 = 1

// PatchCache хранит результаты conform.Transform по SHA-256 входного модуля.
// Thread-safe for concurrent access.
type PatchCache struct {
	mu  sync.RWMutex
	dir string
}

// PatchPayload is the cached outcome of one transform.
type PatchPayload struct {
	Schema    uint16
	InputHash project.Digest
	Output    []byte
	Sites     []conform.Site
	Helpers   []string
	Funcs     map[string]uint32
	Declared  int
	Bound     uint32
}

// OpenPatchCache opens a cache rooted at dir, creating it when needed.
func OpenPatchCache(dir string) (*PatchCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &PatchCache{dir: dir}, nil
}

// DefaultCacheDir is $XDG_CACHE_HOME/<app>, falling back to ~/.cache/<app>.
func DefaultCacheDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

func (c *PatchCache) pathFor(key project.Digest) string {
	return filepath.Join(c.dir, "patched", key.String()+".mp")
}

// Put serializes and writes a payload to the cache.
func (c *PatchCache) Put(key project.Digest, payload *PatchPayload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		// после успешного Rename временного файла уже нет
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()

	payload.Schema = CacheSchema
	payload.InputHash = key
	if err = msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads a payload. A missing entry, a schema mismatch or a payload
// recorded for another input is a miss.
func (c *PatchCache) Get(key project.Digest, out *PatchPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var payload PatchPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return false, err
	}
	if payload.Schema != CacheSchema || payload.InputHash != key {
		return false, nil
	}
	*out = payload
	return true, nil
}

// DropAll invalidates the cache.
func (c *PatchCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "patched"))
}

// Dir returns the cache root.
func (c *PatchCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func payloadOf(res *conform.Result) *PatchPayload {
	return &PatchPayload{
		Output:   res.Output,
		Sites:    res.Sites,
		Helpers:  res.Helpers,
		Funcs:    res.Funcs,
		Declared: res.Declared,
		Bound:    res.Bound,
	}
}

func (p *PatchPayload) result() *conform.Result {
	return &conform.Result{
		Output:   p.Output,
		Sites:    p.Sites,
		Helpers:  p.Helpers,
		Funcs:    p.Funcs,
		Declared: p.Declared,
		Bound:    p.Bound,
	}
}
