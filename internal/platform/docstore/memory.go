package docstore

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is a thread-safe in-memory Backend for tests and local runs.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]*Snapshot
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]*Snapshot)}
}

func (m *MemoryBackend) Get(_ context.Context, path string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, id := SplitDocumentPath(path)
	s, ok := m.docs[path]
	if !ok {
		return &Snapshot{ID: id, Path: path}, nil
	}
	return copySnapshot(s), nil
}

func (m *MemoryBackend) Query(_ context.Context, q Query) ([]*Snapshot, error) {
	m.mu.RLock()
	var candidates []*Snapshot
	for path, s := range m.docs {
		parent, _ := SplitDocumentPath(path)
		if q.Covers(parent) {
			candidates = append(candidates, copySnapshot(s))
		}
	}
	m.mu.RUnlock()

	return q.Apply(candidates), nil
}

func (m *MemoryBackend) Set(_ context.Context, path string, data map[string]any, merge bool) error {
	norm, err := Normalize(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.docs[path]
	if ok && merge {
		for k, v := range norm {
			existing.Data[k] = v
		}
		existing.UpdateTime = time.Now().UTC()
		return nil
	}

	_, id := SplitDocumentPath(path)
	m.docs[path] = &Snapshot{
		ID:         id,
		Path:       path,
		Data:       norm,
		Exists:     true,
		UpdateTime: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	return nil
}

// Len returns the number of stored documents.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func copySnapshot(s *Snapshot) *Snapshot {
	out := *s
	if s.Data != nil {
		// Normalised payloads only hold JSON values, so a JSON copy is deep.
		out.Data, _ = Normalize(s.Data)
	}
	return &out
}
