package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Memory keeps objects in process memory. It backs local development when no
// bucket is configured and the package tests of its callers.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]MemoryObject
	BaseURL string
}

type MemoryObject struct {
	Data        []byte
	ContentType string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]MemoryObject), BaseURL: "memory://objects"}
}

func (m *Memory) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = MemoryObject{Data: buf.Bytes(), ContentType: contentType}
	m.mu.Unlock()
	return m.BaseURL + "/" + key, nil
}

func (m *Memory) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("%s/%s?expires=%d", m.BaseURL, key, int64(ttl.Seconds())), nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// Get returns a stored object.
func (m *Memory) Get(key string) (MemoryObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
