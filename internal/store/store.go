// Package store provides the path-addressed JSON document store that holds every room.
//
// Paths are "/"-separated ("rooms/C7X9QZ/players"). Values are anything that
// round-trips through encoding/json; a nil value deletes the node.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnavailable wraps failures of the backing store (network, timeouts).
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidPath is returned for empty segments or paths a backend cannot address.
	ErrInvalidPath = errors.New("invalid store path")

	// ErrConflict is returned when an optimistic transaction kept losing races.
	ErrConflict = errors.New("store transaction conflict")

	// ErrClosed is returned once the store has been closed.
	ErrClosed = errors.New("store closed")
)

type noChange struct{}

// NoChange may be returned from a TxFunc to commit nothing.
var NoChange = &noChange{}

// TxFunc computes the next value of a node from its current snapshot.
// Returning nil deletes the node; returning an error aborts and is passed through.
// A TxFunc may run more than once and must not call back into the store.
type TxFunc func(current Snapshot) (interface{}, error)

// ChildListener receives child-level events for a subscribed node.
// Removed receives the child's last known value.
type ChildListener struct {
	Added   func(Snapshot)
	Changed func(Snapshot)
	Removed func(Snapshot)

	// SkipInitial seeds the listener with the current children without firing Added.
	SkipInitial bool
}

// Store is implemented by MemoryStore and RedisStore.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, value interface{}) error
	Update(ctx context.Context, path string, fields map[string]interface{}) error
	Delete(ctx context.Context, path string) error
	Push(ctx context.Context, path string, value interface{}) (string, error)
	Transaction(ctx context.Context, path string, fn TxFunc) (Snapshot, error)

	// Subscribe delivers the current snapshot and then one snapshot per change.
	// Deliveries for one subscription are sequential; a slow consumer only sees the latest.
	Subscribe(path string, onSnapshot func(Snapshot), onError func(error)) (unsubscribe func(), err error)
	SubscribeChildren(path string, l ChildListener, onError func(error)) (unsubscribe func(), err error)

	Close() error
}

// Snapshot is the full value of a path at one instant.
type Snapshot struct {
	Path   string
	Key    string
	Exists bool
	Raw    json.RawMessage
}

// Decode unmarshals the snapshot into v. Decoding a missing node leaves v untouched.
func (s Snapshot) Decode(v interface{}) error {
	if !s.Exists {
		return nil
	}
	return json.Unmarshal(s.Raw, v)
}

// Children returns the snapshot's object members ordered by key.
func (s Snapshot) Children() []Snapshot {
	if !s.Exists {
		return nil
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(s.Raw, &members); err != nil {
		return nil
	}
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, Snapshot{
			Path:   joinPath(s.Path, k),
			Key:    k,
			Exists: true,
			Raw:    members[k],
		})
	}
	return out
}

func newSnapshot(parts []string, node interface{}, found bool) (Snapshot, error) {
	snap := Snapshot{Path: strings.Join(parts, "/")}
	if len(parts) > 0 {
		snap.Key = parts[len(parts)-1]
	}
	if !found || node == nil {
		return snap, nil
	}
	raw, err := json.Marshal(node)
	if err != nil {
		return snap, err
	}
	snap.Exists = true
	snap.Raw = raw
	return snap, nil
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "/" + key
}
