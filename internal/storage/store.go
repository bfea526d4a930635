package storage

import (
	"context"
	"errors"
	"sync"
)

var ErrObjectNotFound = errors.New("object not found")

// Object is a stored attachment.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// Store keeps message attachments and hands out the URL clients fetch them from.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (Object, error)
	FileURL(key string) string
}

// MemoryStore keeps objects in process. URLs are relative to publicBase.
type MemoryStore struct {
	mu         sync.RWMutex
	publicBase string
	objects    map[string]Object
}

func NewMemoryStore(publicBase string) *MemoryStore {
	return &MemoryStore{
		publicBase: publicBase,
		objects:    make(map[string]Object),
	}
}

func (m *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) error {
	if key == "" {
		return errors.New("object key is required")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.objects[key] = Object{Key: key, ContentType: contentType, Data: buf}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, ErrObjectNotFound
	}
	return obj, nil
}

func (m *MemoryStore) FileURL(key string) string {
	if key == "" {
		return ""
	}
	return m.publicBase + "/" + key
}
