package blob

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests. It records uploads and
// serves deterministic URLs.
type Memory struct {
	mu      sync.Mutex
	objects map[string]MemoryObject

	// MissingBucket makes BucketExists fail, simulating a deleted or
	// misconfigured bucket.
	MissingBucket bool
}

// MemoryObject is one stored object.
type MemoryObject struct {
	Data        []byte
	ContentType string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]MemoryObject)}
}

func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = MemoryObject{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

func (m *Memory) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (m *Memory) PublicURL(key string) string {
	return "https://public.test/" + key
}

func (m *Memory) BucketExists(context.Context) error {
	if m.MissingBucket {
		return ErrBucketNotFound
	}
	return nil
}

// Object returns a stored object and whether it exists.
func (m *Memory) Object(key string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}

// Len reports how many objects were uploaded.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Keys returns the stored keys in unspecified order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
