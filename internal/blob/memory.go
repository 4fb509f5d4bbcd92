package blob

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryClient keeps uploaded objects in memory. It exists for tests and for
// running the server without a bucket while still exercising the full upload
// path.
type MemoryClient struct {
	mu      sync.Mutex
	objects map[string]MemoryObject
	baseURL string
	failPut error
}

// MemoryObject records what a Put call delivered.
type MemoryObject struct {
	ContentType string
	Data        []byte
	DeclaredLen int64
}

func NewMemoryClient(baseURL string) *MemoryClient {
	if baseURL == "" {
		baseURL = "memory://bucket"
	}
	return &MemoryClient{objects: make(map[string]MemoryObject), baseURL: baseURL}
}

func (m *MemoryClient) Enabled() bool { return true }

// FailPuts makes subsequent Put calls return err. Passing nil restores
// normal behaviour.
func (m *MemoryClient) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPut = err
}

func (m *MemoryClient) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Object{}, fmt.Errorf("read object body: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return Object{}, m.failPut
	}
	m.objects[key] = MemoryObject{ContentType: contentType, Data: data, DeclaredLen: size}
	return Object{Key: key, URL: m.baseURL + "/" + key}, nil
}

// Object returns the stored object for key, if any.
func (m *MemoryClient) Object(key string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len reports how many objects have been stored.
func (m *MemoryClient) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
