package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMemoryCapacity bounds the memory store.
const DefaultMemoryCapacity = 64

type entry struct {
	obj     Object
	expires time.Time
}

// Memory keeps clips in process. The oldest clip is evicted once capacity is
// reached, and clips expire after ttl.
type Memory struct {
	mu       sync.Mutex
	objects  map[string]entry
	order    []string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemory creates a memory store. Non-positive values select the defaults
// (64 clips, 5 minutes).
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Memory{
		objects:  make(map[string]entry),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Put stores data and returns its relative URL.
func (m *Memory) Put(_ context.Context, data []byte, contentType string) (string, error) {
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.order) >= m.capacity {
		delete(m.objects, m.order[0])
		m.order = m.order[1:]
	}
	m.objects[id] = entry{
		obj:     Object{Data: data, ContentType: contentType},
		expires: m.now().Add(m.ttl),
	}
	m.order = append(m.order, id)
	return AudioPath + id, nil
}

// Get returns a stored clip.
func (m *Memory) Get(id string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.objects[id]
	if !ok {
		return Object{}, ErrNotFound
	}
	if m.now().After(e.expires) {
		delete(m.objects, id)
		return Object{}, ErrNotFound
	}
	return e.obj, nil
}

// Len reports the number of clips held, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
