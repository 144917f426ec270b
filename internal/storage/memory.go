package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory ObjectStore for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	clock   func() time.Time

	// Fail makes every backend call error; used to exercise upstream
	// failure paths.
	Fail bool
}

type memoryObject struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		clock:   time.Now,
	}
}

var errMemoryStoreDown = fmt.Errorf("storage: backend unavailable")

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if m.Fail {
		return "", errMemoryStoreDown
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, storedAt: m.clock().UTC()}
	return m.URL(key), nil
}

func (m *MemoryStore) URL(key string) string {
	return "https://test-bucket.s3.test-region.amazonaws.com/" + key
}

func (m *MemoryStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.Fail {
		return "", errMemoryStoreDown
	}
	// Presigning an absent key still yields a URL on S3; mirror that.
	return fmt.Sprintf("%s?expires=%d", m.URL(key), int(ttl.Seconds())), nil
}

func (m *MemoryStore) List(ctx context.Context, prefix, contains string) ([]Object, error) {
	if m.Fail {
		return nil, errMemoryStoreDown
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Object
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if contains != "" && !strings.Contains(key, contains) {
			continue
		}
		out = append(out, Object{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.storedAt,
			URL:          m.URL(key),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if m.Fail {
		return errMemoryStoreDown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	if m.Fail {
		return errMemoryStoreDown
	}
	return nil
}

// Get returns the stored bytes for assertions in tests.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, true
}
