package resultstore

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps results in process. Contents are lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	opts   options
	data   map[string][]Record // oldest first
	next   map[string]int
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts: buildOptions(opts),
		data: make(map[string][]Record),
		next: make(map[string]int),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	m.next[key]++
	rec := Record{
		Key:       key,
		Sequence:  m.next[key],
		Timestamp: time.Now().UTC(),
		Data:      slices.Clone(data),
	}

	versions := append(m.data[key], rec)
	if n := m.opts.retain; n > 0 && len(versions) > n {
		versions = slices.Clone(versions[len(versions)-n:])
	}
	m.data[key] = versions

	return copyRecord(rec), nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}
	versions := m.data[key]
	if len(versions) == 0 {
		return Record{}, ErrNotFound
	}
	return copyRecord(versions[len(versions)-1]), nil
}

// History implements Store.
func (m *MemoryStore) History(ctx context.Context, key string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	versions := m.data[key]
	out := make([]Record, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, copyRecord(versions[i]))
	}
	return out, nil
}

// Keys implements Store.
func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	keys := make([]string, 0, len(m.data))
	for k, v := range m.data {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Delete implements Store. A later Put starts again at sequence 1.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, key)
	delete(m.next, key)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

func copyRecord(r Record) Record {
	r.Data = slices.Clone(r.Data)
	return r
}
