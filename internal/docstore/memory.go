package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Used for local development, the seed command, and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]map[string]map[string]json.RawMessage
	watchers *watchers
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]map[string]map[string]json.RawMessage),
		watchers: newWatchers(),
	}
}

// Get returns the document, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	fields, ok := s.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return &Document{Collection: collection, Key: key, Data: data}, nil
}

// Put writes fields, merging into or replacing the document.
func (s *MemoryStore) Put(ctx context.Context, collection, key string, fields Fields, merge bool) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	enc, err := encodeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	existing := s.docs[collection][key]
	if !merge || existing == nil {
		existing = make(map[string]json.RawMessage, len(enc))
	}
	for k, v := range enc {
		existing[k] = v
	}
	s.set(collection, key, existing)
	s.mu.Unlock()
	s.watchers.notify(collection, key)
	return nil
}

// Create writes a new document; returns ErrAlreadyExists if the key is taken.
func (s *MemoryStore) Create(ctx context.Context, collection, key string, fields Fields) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	enc, err := encodeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.docs[collection][key]; ok {
		s.mu.Unlock()
		return ErrAlreadyExists
	}
	s.set(collection, key, enc)
	s.mu.Unlock()
	s.watchers.notify(collection, key)
	return nil
}

// PutIf merges fields when cond holds, under the store lock.
func (s *MemoryStore) PutIf(ctx context.Context, collection, key string, cond, fields Fields) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	encCond, err := encodeFields(cond)
	if err != nil {
		return err
	}
	enc, err := encodeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	existing, ok := s.docs[collection][key]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !conditionHolds(existing, encCond) {
		s.mu.Unlock()
		return ErrConditionFailed
	}
	updated := make(map[string]json.RawMessage, len(existing)+len(enc))
	for k, v := range existing {
		updated[k] = v
	}
	for k, v := range enc {
		updated[k] = v
	}
	s.set(collection, key, updated)
	s.mu.Unlock()
	s.watchers.notify(collection, key)
	return nil
}

// Delete removes the document.
func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	_, existed := s.docs[collection][key]
	delete(s.docs[collection], key)
	s.mu.Unlock()
	if existed {
		s.watchers.notify(collection, key)
	}
	return nil
}

// Subscribe delivers snapshots of the document until unsubscribed.
func (s *MemoryStore) Subscribe(ctx context.Context, collection, key string, onChange ChangeFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	return s.watchers.add(ctx, s.Get, collection, key, onChange, onError)
}

// Query returns matching documents ordered by key.
func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(s.docs[collection]))
	for k := range s.docs[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []*Document
	for _, k := range keys {
		fields := s.docs[collection][k]
		ok, err := matchFilters(fields, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		data, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, &Document{Collection: collection, Key: k, Data: data})
	}
	return out, nil
}

// Ping reports ErrClosed after Close.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close ends all subscriptions.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.watchers.closeAll()
	return nil
}

// set must be called with s.mu held.
func (s *MemoryStore) set(collection, key string, fields map[string]json.RawMessage) {
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]map[string]json.RawMessage)
	}
	s.docs[collection][key] = fields
}
