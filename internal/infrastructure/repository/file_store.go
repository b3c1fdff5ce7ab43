package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"adlign-personalization-layer/internal/ports"
)

// FileStore implements KVStore with one JSON document per bucket
// (<dir>/<bucket>.json) shaped as a key-indexed object. Writes go through a
// temp file and rename so readers never see a partial file, and each bucket
// is serialized by its own mutex.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	lock := s.lock(bucket)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.load(bucket)
	if err != nil {
		return nil, err
	}
	value, ok := doc[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (s *FileStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	return s.Update(ctx, bucket, key, func([]byte) ([]byte, error) { return value, nil })
}

func (s *FileStore) Update(ctx context.Context, bucket, key string, fn ports.UpdateFunc) error {
	lock := s.lock(bucket)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.load(bucket)
	if err != nil {
		return err
	}

	var current []byte
	if v, ok := doc[key]; ok {
		current = append([]byte(nil), v...)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}

	if next == nil {
		if current == nil {
			return nil
		}
		delete(doc, key)
	} else {
		if !json.Valid(next) {
			return fmt.Errorf("failed to store %s/%s: value is not valid JSON", bucket, key)
		}
		doc[key] = json.RawMessage(next)
	}
	return s.save(bucket, doc)
}

func (s *FileStore) Delete(ctx context.Context, bucket, key string) error {
	return s.Update(ctx, bucket, key, func([]byte) ([]byte, error) { return nil, nil })
}

func (s *FileStore) Keys(ctx context.Context, bucket string) ([]string, error) {
	lock := s.lock(bucket)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.load(bucket)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Close(ctx context.Context) error {
	return nil
}

func (s *FileStore) lock(bucket string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[bucket]
	if !ok {
		l = &sync.Mutex{}
		s.locks[bucket] = l
	}
	return l
}

func (s *FileStore) path(bucket string) string {
	return filepath.Join(s.dir, bucket+".json")
}

func (s *FileStore) load(bucket string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path(bucket))
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", bucket, err)
	}

	doc := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", bucket, err)
	}
	return doc, nil
}

func (s *FileStore) save(bucket string, doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", bucket, err)
	}

	tmp, err := os.CreateTemp(s.dir, bucket+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", bucket, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", bucket, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", bucket, err)
	}
	if err := os.Rename(tmpName, s.path(bucket)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", bucket, err)
	}
	return nil
}
