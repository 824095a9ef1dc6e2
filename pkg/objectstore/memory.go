package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"cohortline/exportd/pkg/export"
)

// MemoryStore is an in-memory object store for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		now:     time.Now,
	}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// Download implements export.ObjectStorage.
func (s *MemoryStore) Download(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[objectKey(bucket, key)]
	if !ok {
		return nil, export.NewNotFoundError("object", objectKey(bucket, key))
	}
	return slices.Clone(data), nil
}

// Upload implements export.ObjectStorage.
func (s *MemoryStore) Upload(_ context.Context, bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey(bucket, key)] = slices.Clone(data)
	return nil
}

// Sign implements export.ObjectStorage. The URL is not servable; it only
// identifies the object and expiry.
func (s *MemoryStore) Sign(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u := url.URL{
		Scheme: "memory",
		Host:   bucket,
		Path:   path.Join("/", key),
		RawQuery: url.Values{
			"expires": {fmt.Sprint(s.now().Add(expiry).Unix())},
		}.Encode(),
	}
	return u.String(), nil
}

// Exists implements export.ObjectStorage.
func (s *MemoryStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[objectKey(bucket, key)]
	return ok, nil
}

// Delete implements export.ObjectStorage.
func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey(bucket, key))
	return nil
}

// Keys returns the stored keys of bucket in sorted order.
func (s *MemoryStore) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := bucket + "/"
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	slices.Sort(keys)
	return keys
}
