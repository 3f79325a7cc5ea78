package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps the whole document tree in process memory.
// It is the default backend for a single server and for tests.
type MemoryStore struct {
	mu     sync.Mutex
	root   map[string]interface{}
	subs   map[*subscription]struct{}
	closed bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: make(map[string]interface{}),
		subs: make(map[*subscription]struct{}),
	}
}

func (m *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	parts, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	return m.snapshotLocked(parts)
}

func (m *MemoryStore) Set(ctx context.Context, path string, value interface{}) error {
	return m.Update(ctx, "", map[string]interface{}{path: value})
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	return m.Set(ctx, path, nil)
}

// Update writes every field relative to path as one atomic change.
func (m *MemoryStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	base, err := splitPath(path)
	if err != nil {
		return err
	}

	type write struct {
		parts []string
		value interface{}
	}
	writes := make([]write, 0, len(fields))
	for rel, v := range fields {
		relParts, err := splitPath(rel)
		if err != nil {
			return err
		}
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		parts := append(append([]string{}, base...), relParts...)
		if len(parts) == 0 {
			if _, ok := nv.(map[string]interface{}); nv != nil && !ok {
				return fmt.Errorf("%w: root must be an object", ErrInvalidPath)
			}
		}
		writes = append(writes, write{parts: parts, value: nv})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, w := range writes {
		m.setLocked(w.parts, w.value)
	}
	for _, w := range writes {
		m.notifyLocked(w.parts)
	}
	return nil
}

// Push appends value under path with a unique, time-ordered key.
func (m *MemoryStore) Push(ctx context.Context, path string, value interface{}) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate push key: %w", err)
	}
	key := id.String()
	if err := m.Set(ctx, joinPath(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Transaction runs fn while holding the store lock, so it is never retried.
func (m *MemoryStore) Transaction(ctx context.Context, path string, fn TxFunc) (Snapshot, error) {
	parts, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}

	current, err := m.snapshotLocked(parts)
	if err != nil {
		return Snapshot{}, err
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	if next == NoChange {
		return current, nil
	}
	nv, err := normalize(next)
	if err != nil {
		return current, err
	}
	m.setLocked(parts, nv)
	m.notifyLocked(parts)
	return m.snapshotLocked(parts)
}

func (m *MemoryStore) Subscribe(path string, onSnapshot func(Snapshot), onError func(error)) (func(), error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	initial, err := m.snapshotLocked(parts)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(parts, initial, onSnapshot, onError)
	m.subs[sub] = struct{}{}

	return func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
		sub.stop()
	}, nil
}

func (m *MemoryStore) SubscribeChildren(path string, l ChildListener, onError func(error)) (func(), error) {
	return m.Subscribe(path, childDiffer(l), onError)
}

// Close stops every subscription. Further calls fail with ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for sub := range m.subs {
		sub.stop()
	}
	m.subs = make(map[*subscription]struct{})
	return nil
}

func (m *MemoryStore) setLocked(parts []string, value interface{}) {
	next, _ := setAt(m.root, parts, value).(map[string]interface{})
	if next == nil {
		next = make(map[string]interface{})
	}
	m.root = next
}

func (m *MemoryStore) snapshotLocked(parts []string) (Snapshot, error) {
	node, found := getAt(m.root, parts)
	if len(parts) == 0 {
		found = len(m.root) > 0
	}
	return newSnapshot(parts, node, found)
}

func (m *MemoryStore) notifyLocked(changed []string) {
	for sub := range m.subs {
		if !related(sub.parts, changed) {
			continue
		}
		snap, err := m.snapshotLocked(sub.parts)
		if err != nil {
			sub.fail(err)
			continue
		}
		sub.offer(snap)
	}
}
