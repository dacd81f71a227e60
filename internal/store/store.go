// Package store is the topic-keyed research cache.
//
// Entries live in three namespaces and are kept in memory for the lifetime of
// the process. When a Backend is configured every write is persisted before
// Put returns, and reads fall through to the backend on a memory miss.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Namespace partitions the cache.
type Namespace string

// Cache namespaces.
const (
	SearchResults   Namespace = "search_results"
	ScrapedArticles Namespace = "scraped_articles"
	Reports         Namespace = "reports"
)

// Namespaces lists every namespace in pipeline order.
var Namespaces = []Namespace{SearchResults, ScrapedArticles, Reports}

// ErrMalformed is returned when a cached value cannot be decoded.
var ErrMalformed = errors.New("malformed cache entry")

// Backend is durable storage for cache entries.
type Backend interface {
	Load(namespace, topic string) ([]byte, bool, error)
	Save(namespace, topic string, value []byte) error
	Delete(namespace, topic string) error
	Close() error
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	data    map[Namespace]map[string][]byte
	backend Backend
}

// New creates a store. backend may be nil for a memory-only cache.
func New(backend Backend) *Store {
	data := make(map[Namespace]map[string][]byte, len(Namespaces))
	for _, ns := range Namespaces {
		data[ns] = make(map[string][]byte)
	}
	return &Store{data: data, backend: backend}
}

// Persistent reports whether writes reach durable storage.
func (s *Store) Persistent() bool {
	return s.backend != nil
}

// Get returns the raw value for topic.
func (s *Store) Get(ns Namespace, topic string) ([]byte, bool, error) {
	s.mu.RLock()
	value, ok := s.data[ns][topic]
	s.mu.RUnlock()
	if ok {
		return value, true, nil
	}
	if s.backend == nil {
		return nil, false, nil
	}

	value, ok, err := s.backend.Load(string(ns), topic)
	if err != nil || !ok {
		return nil, false, err
	}

	s.mu.Lock()
	if _, exists := s.data[ns][topic]; !exists {
		s.ensure(ns)[topic] = value
	}
	s.mu.Unlock()
	return value, true, nil
}

// Put stores value for topic, replacing any previous value.
func (s *Store) Put(ns Namespace, topic string, value []byte) error {
	value = append([]byte(nil), value...)

	s.mu.Lock()
	s.ensure(ns)[topic] = value
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if err := s.backend.Save(string(ns), topic, value); err != nil {
		return fmt.Errorf("persist %s: %w", ns, err)
	}
	return nil
}

// Forget drops topic from every namespace.
func (s *Store) Forget(topic string) error {
	s.mu.Lock()
	for _, ns := range Namespaces {
		delete(s.data[ns], topic)
	}
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	var errs []error
	for _, ns := range Namespaces {
		if err := s.backend.Delete(string(ns), topic); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes the backend, if any.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func (s *Store) ensure(ns Namespace) map[string][]byte {
	m, ok := s.data[ns]
	if !ok {
		m = make(map[string][]byte)
		s.data[ns] = m
	}
	return m
}

// Load decodes the value cached for topic into T.
func Load[T any](s *Store, ns Namespace, topic string) (T, bool, error) {
	var v T
	raw, ok, err := s.Get(ns, topic)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("%w: %s/%s: %v", ErrMalformed, ns, topic, err)
	}
	return v, true, nil
}

// Save encodes v and caches it for topic.
func Save[T any](s *Store, ns Namespace, topic string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ns, err)
	}
	return s.Put(ns, topic, raw)
}
