// Package fakemirror provides an in-memory mirror.Store with failure injection
// for tests of the write-behind paths.
package fakemirror

import (
	"context"
	"sync"

	"nexus/pkg/platform/sentinel"
)

// Store is a concurrency-safe in-memory mirror. Setting Err makes every call
// fail with it; Block, when non-nil, is received from before each call returns.
type Store struct {
	mu     sync.Mutex
	kv     map[string]string
	hashes map[string]map[string]string
	lists  map[string][]string
	calls  int

	Err   error
	Block chan struct{}
}

func New() *Store {
	return &Store{
		kv:     make(map[string]string),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
	}
}

// SetErr swaps the injected error under the store lock.
func (s *Store) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// enter always returns with s.mu held.
func (s *Store) enter(ctx context.Context) error {
	var waitErr error
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			waitErr = ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls++
	if waitErr != nil {
		return waitErr
	}
	return s.Err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	err := s.enter(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return "", err
	}
	v, ok := s.kv[key]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	err := s.enter(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	s.kv[key] = value
	return nil
}

func (s *Store) HashGet(ctx context.Context, hash, field string) (string, error) {
	err := s.enter(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return "", err
	}
	v, ok := s.hashes[hash][field]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return v, nil
}

func (s *Store) HashSet(ctx context.Context, hash, field, value string) error {
	err := s.enter(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	h, ok := s.hashes[hash]
	if !ok {
		h = make(map[string]string)
		s.hashes[hash] = h
	}
	h[field] = value
	return nil
}

func (s *Store) ListAppend(ctx context.Context, key, value string) error {
	err := s.enter(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	s.lists[key] = append(s.lists[key], value)
	return nil
}

// List returns a copy of the list stored at key.
func (s *Store) List(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lists[key]...)
}

// Hash returns a copy of the hash stored at key.
func (s *Store) Hash(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out
}

// Calls reports how many store calls reached the lock, failed ones included.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
