package objstore

import (
	"context"
	"fmt"
	"maps"
	"os"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store with S3's listing order and
// last-writer-wins puts.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	meta     map[string]UploadOptions
	failPuts map[string]error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		meta:     make(map[string]UploadOptions),
		failPuts: make(map[string]error),
	}
}

// Seed stores data at key without going through Put.
func (m *MemoryStore) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// FailWrites makes every Put or Upload to key return err.
func (m *MemoryStore) FailWrites(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPuts[key] = err
}

// Object returns the stored bytes and options for key.
func (m *MemoryStore) Object(key string) ([]byte, UploadOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, m.meta[key], ok
}

// Keys returns every stored key in order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) Download(ctx context.Context, key, localPath string) (int64, error) {
	data, err := m.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		return 0, fmt.Errorf("write %s: %w", localPath, err)
	}
	return int64(len(data)), nil
}

func (m *MemoryStore) Upload(ctx context.Context, key, localPath string, opts UploadOptions) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	return m.Put(ctx, key, data, opts)
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPuts[key]; err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	m.objects[key] = append([]byte(nil), data...)
	m.meta[key] = UploadOptions{ContentType: opts.ContentType, Metadata: maps.Clone(opts.Metadata)}
	return nil
}
