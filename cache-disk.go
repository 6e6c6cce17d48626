package darkrecon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// diskBackend stores one JSON file per fingerprint in a directory. Writes
// are atomic (write to a temp file, then rename). A missing or corrupt
// file is a miss, not an error.
type diskBackend struct {
	mu  sync.Mutex
	dir string
}

var _ CacheBackend = (*diskBackend)(nil)

const diskEntrySuffix = ".json"

func NewDiskBackend(dir string) (*diskBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &diskBackend{dir: dir}, nil
}

func (b *diskBackend) path(key string) string {
	return filepath.Join(b.dir, key+diskEntrySuffix)
}

func (b *diskBackend) Store(key string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	tmp, err := os.CreateTemp(b.dir, key+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), b.path(key))
}

func (b *diskBackend) Lookup(key string) (*Entry, bool) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		return nil, false
	}
	e := new(Entry)
	if err := json.Unmarshal(data, e); err != nil {
		Log.WithField("key", key).WithError(err).Debug("corrupt cache file treated as miss")
		return nil, false
	}
	return e, true
}

func (b *diskBackend) Evict(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	os.Remove(b.path(key))
}

func (b *diskBackend) DeleteFunc(fn func(e *Entry) bool) int {
	var removed int
	for _, key := range b.keys() {
		e, ok := b.Lookup(key)
		if !ok {
			// Unreadable files are dropped along with matching entries
			b.Evict(key)
			removed++
			continue
		}
		if fn(e) {
			b.Evict(key)
			removed++
		}
	}
	return removed
}

func (b *diskBackend) Size() int {
	return len(b.keys())
}

func (b *diskBackend) Bytes() int64 {
	var total int64
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0
	}
	for _, de := range entries {
		if !strings.HasSuffix(de.Name(), diskEntrySuffix) {
			continue
		}
		if info, err := de.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

func (b *diskBackend) Close() error {
	return nil
}

func (b *diskBackend) keys() []string {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(entries))
	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, diskEntrySuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, diskEntrySuffix))
	}
	return keys
}
