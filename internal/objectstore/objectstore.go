// Package objectstore keeps uploaded resumes and extracted portraits in a
// blob store and hands back URLs that are persisted on documents.
package objectstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("object not found")

// Store puts and fetches whole objects by key.
type Store interface {
	// Put uploads data under key and returns the URL recorded for it.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Bucket names the container keys live in.
	Bucket() string
}

// KeyFromURL recovers the object key from a URL produced by Put. Paths of the
// form /<bucket>/<key> yield <key>; anything else yields the last segment.
func KeyFromURL(raw, bucket string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	if bucket != "" {
		marker := "/" + bucket + "/"
		if i := strings.Index(path, marker); i >= 0 {
			return path[i+len(marker):]
		}
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func joinURL(base, bucket, key string) string {
	base = strings.TrimRight(base, "/")
	if bucket == "" {
		return base + "/" + key
	}
	return base + "/" + bucket + "/" + key
}

// memoryBucket is the path segment Memory places before every key.
const memoryBucket = "objects"

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	base    string
	objects map[string][]byte
	types   map[string]string
}

// NewMemory constructs a Memory store whose URLs start with base.
func NewMemory(base string) *Memory {
	if base == "" {
		base = "memory://local"
	}
	return &Memory{base: base, objects: map[string][]byte{}, types: map[string]string{}}
}

// Put stores a copy of data.
func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("empty object key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return joinURL(m.base, memoryBucket, key), nil
}

// Bucket returns the path segment used in Memory URLs.
func (m *Memory) Bucket() string { return memoryBucket }

// Get returns a copy of the stored bytes.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// ContentType returns the type recorded by Put.
func (m *Memory) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key]
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
