package docstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Documents are deep-copied through JSON on
// the way in and out so callers never share maps with the store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	raw, ok := m.data[collection][id]
	m.mu.RUnlock()
	if !ok {
		return Document{}, ErrNotFound
	}
	data, err := decode(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: data}, nil
}

func (m *Memory) List(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(m.data[collection]))
	for id, raw := range m.data[collection] {
		data, err := decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	return sortByID(docs), nil
}

func (m *Memory) Set(_ context.Context, collection, id string, data map[string]any, mergeFields bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mergeFields {
		if raw, ok := m.data[collection][id]; ok {
			existing, err := decode(raw)
			if err != nil {
				return err
			}
			data = merge(existing, data)
		}
	}
	return m.put(collection, id, data)
}

func (m *Memory) Update(_ context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	existing, err := decode(raw)
	if err != nil {
		return err
	}
	return m.put(collection, id, merge(existing, data))
}

func (m *Memory) Add(_ context.Context, collection string, data map[string]any) (string, error) {
	id := newID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.put(collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.data[collection], id)
	return nil
}

func (m *Memory) Commit(_ context.Context, writes ...Write) error {
	encoded := make([][]byte, len(writes))
	for i, w := range writes {
		raw, err := encode(w.Data)
		if err != nil {
			return err
		}
		encoded[i] = raw
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range writes {
		m.collection(w.Collection)[w.ID] = encoded[i]
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// put must be called with mu held.
func (m *Memory) put(collection, id string, data map[string]any) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}
	m.collection(collection)[id] = raw
	return nil
}

func (m *Memory) collection(name string) map[string][]byte {
	c, ok := m.data[name]
	if !ok {
		c = make(map[string][]byte)
		m.data[name] = c
	}
	return c
}
