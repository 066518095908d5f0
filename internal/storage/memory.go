package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore is an in-process ObjectStore for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]memoryObject
	now     func() time.Time
}

var _ ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

func (m *MemoryStore) Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read upload body: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+path] = memoryObject{data: data, contentType: contentType, modified: m.now()}
	return nil
}

func (m *MemoryStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[bucket+"/"+path]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, path)
	}
	return bytes.Clone(obj.data), nil
}

func (m *MemoryStore) PublicURL(bucket, path string) string {
	return m.baseURL + "/" + bucket + "/" + path
}

func (m *MemoryStore) Remove(ctx context.Context, bucket string, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.objects, bucket+"/"+p)
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Object
	for key, obj := range m.objects {
		path, ok := strings.CutPrefix(key, bucket+"/")
		if !ok || !strings.HasPrefix(path, prefix) {
			continue
		}
		out = append(out, Object{Path: path, Size: int64(len(obj.data)), LastModified: obj.modified})
	}
	slices.SortFunc(out, func(a, b Object) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// ContentType returns the content type an object was uploaded with.
func (m *MemoryStore) ContentType(bucket, path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[bucket+"/"+path].contentType
}
