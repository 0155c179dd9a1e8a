package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStorage keeps objects in process memory. It backs the "memory"
// driver for local runs and the handler tests.
type MemoryStorage struct {
	mu         sync.Mutex
	buckets    map[string]map[string]memoryObject
	publicBase string
}

// NewMemoryStorage constructs an empty store that builds public URLs from publicBase.
func NewMemoryStorage(publicBase string) *MemoryStorage {
	return &MemoryStorage{
		buckets:    make(map[string]map[string]memoryObject),
		publicBase: publicBase,
	}
}

func (m *MemoryStorage) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, overwrite bool) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("memory read body bucket=%s key=%s: %w", bucket, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.buckets[bucket]
	if !ok {
		objects = make(map[string]memoryObject)
		m.buckets[bucket] = objects
	}
	if _, exists := objects[key]; exists && !overwrite {
		return fmt.Errorf("memory put object bucket=%s key=%s: %w", bucket, key, ErrObjectExists)
	}
	objects[key] = memoryObject{data: data, contentType: contentType, modified: time.Now().UTC()}
	return nil
}

func (m *MemoryStorage) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("memory stat object bucket=%s key=%s: %w", bucket, key, ErrObjectNotFound)
	}
	return obj.info(key), nil
}

func (m *MemoryStorage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ObjectInfo{}, fmt.Errorf("memory get object bucket=%s key=%s: %w", bucket, key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info(key), nil
}

func (m *MemoryStorage) Remove(ctx context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.buckets[bucket], key)
	}
	return nil
}

func (m *MemoryStorage) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var objects []ObjectInfo
	for key, obj := range m.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, obj.info(key))
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *MemoryStorage) PublicURL(bucket, key string) string {
	return BuildPublicURL(m.publicBase, bucket, key)
}

// Bytes returns the stored payload for assertions.
func (m *MemoryStorage) Bytes(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][key]
	return append([]byte(nil), obj.data...), ok
}

func (o memoryObject) info(key string) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		ContentType:  o.contentType,
		LastModified: o.modified,
	}
}

var _ Backend = (*MemoryStorage)(nil)
