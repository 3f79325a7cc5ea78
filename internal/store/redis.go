package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key and channel the RedisStore touches.
const DefaultRedisPrefix = "neocascade"

// RedisStore keeps each document (the first two path segments, e.g. rooms/C7X9QZ)
// as one JSON string key. Writes run under WATCH/MULTI and publish the document path
// on a change channel so every server instance can fan out fresh snapshots.
type RedisStore struct {
	rdb        *redis.Client
	prefix     string
	maxRetries int

	mu   sync.Mutex
	subs map[*subscription]*redis.PubSub
}

// NewRedisStore wraps an already connected client.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		rdb:        rdb,
		prefix:     prefix,
		maxRetries: 64,
		subs:       make(map[*subscription]*redis.PubSub),
	}
}

func (r *RedisStore) docKey(docPath string) string { return r.prefix + ":doc:" + docPath }
func (r *RedisStore) channel(docPath string) string { return r.prefix + ":chan:" + docPath }

// split separates a path into its document path and the path inside that document.
func split(parts []string) (string, []string, error) {
	if len(parts) < 2 {
		return "", nil, fmt.Errorf("%w: %q does not address a document", ErrInvalidPath, strings.Join(parts, "/"))
	}
	return parts[0] + "/" + parts[1], parts[2:], nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *RedisStore) Get(ctx context.Context, path string) (Snapshot, error) {
	parts, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(parts) == 1 {
		return r.getCollection(ctx, parts)
	}
	docPath, inner, err := split(parts)
	if err != nil {
		return Snapshot{}, err
	}
	doc, err := r.loadDoc(ctx, r.rdb, docPath)
	if err != nil {
		return Snapshot{}, err
	}
	node, found := getAt(doc, inner)
	return newSnapshot(parts, node, found)
}

// getCollection assembles every document under a top-level segment like "rooms".
func (r *RedisStore) getCollection(ctx context.Context, parts []string) (Snapshot, error) {
	match := r.docKey(parts[0] + "/*")
	var keys []string
	iter := r.rdb.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return Snapshot{}, unavailable(err)
	}
	if len(keys) == 0 {
		return newSnapshot(parts, nil, false)
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return Snapshot{}, unavailable(err)
	}
	out := make(map[string]interface{}, len(keys))
	for i, key := range keys {
		s, ok := vals[i].(string)
		if !ok {
			continue // deleted between SCAN and MGET
		}
		var doc interface{}
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", key, err)
		}
		out[strings.TrimPrefix(key, r.docKey(parts[0]+"/"))] = doc
	}
	return newSnapshot(parts, out, len(out) > 0)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) loadDoc(ctx context.Context, c getter, docPath string) (interface{}, error) {
	raw, err := c.Get(ctx, r.docKey(docPath)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", docPath, err)
	}
	return doc, nil
}

// mutate runs apply against the current document inside an optimistic transaction,
// retrying when another writer touched the key first.
func (r *RedisStore) mutate(ctx context.Context, docPath string, apply func(doc interface{}) (interface{}, error)) error {
	key := r.docKey(docPath)
	txf := func(tx *redis.Tx) error {
		doc, err := r.loadDoc(ctx, tx, docPath)
		if err != nil {
			return err
		}
		next, err := apply(doc)
		if err != nil {
			return err
		}
		if next == NoChange {
			return nil
		}

		var data []byte
		if next != nil {
			if data, err = json.Marshal(next); err != nil {
				return fmt.Errorf("encode %s: %w", docPath, err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if next == nil {
				p.Del(ctx, key)
			} else {
				p.Set(ctx, key, data, 0)
			}
			p.Publish(ctx, r.channel(docPath), docPath)
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return unavailable(err)
		}
		return err
	}

	for i := 0; i < r.maxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrConflict, docPath)
}

func (r *RedisStore) Set(ctx context.Context, path string, value interface{}) error {
	return r.Update(ctx, path, map[string]interface{}{"": value})
}

func (r *RedisStore) Delete(ctx context.Context, path string) error {
	return r.Set(ctx, path, nil)
}

// Update applies fields relative to path. Every field must land in the same document.
func (r *RedisStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	base, err := splitPath(path)
	if err != nil {
		return err
	}

	docPath := ""
	type write struct {
		inner []string
		value interface{}
	}
	writes := make([]write, 0, len(fields))
	for rel, v := range fields {
		relParts, err := splitPath(rel)
		if err != nil {
			return err
		}
		dp, inner, err := split(append(append([]string{}, base...), relParts...))
		if err != nil {
			return err
		}
		if docPath != "" && dp != docPath {
			return fmt.Errorf("%w: update spans documents %s and %s", ErrInvalidPath, docPath, dp)
		}
		docPath = dp
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		writes = append(writes, write{inner: inner, value: nv})
	}
	if len(writes) == 0 {
		return nil
	}

	return r.mutate(ctx, docPath, func(doc interface{}) (interface{}, error) {
		for _, w := range writes {
			doc = setAt(doc, w.inner, w.value)
		}
		return doc, nil
	})
}

func (r *RedisStore) Push(ctx context.Context, path string, value interface{}) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate push key: %w", err)
	}
	key := id.String()
	if err := r.Set(ctx, joinPath(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Transaction may call fn several times when other writers race on the same document.
func (r *RedisStore) Transaction(ctx context.Context, path string, fn TxFunc) (Snapshot, error) {
	parts, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	docPath, inner, err := split(parts)
	if err != nil {
		return Snapshot{}, err
	}

	var result Snapshot
	err = r.mutate(ctx, docPath, func(doc interface{}) (interface{}, error) {
		node, found := getAt(doc, inner)
		current, err := newSnapshot(parts, node, found)
		if err != nil {
			return nil, err
		}
		result = current

		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == NoChange {
			return NoChange, nil
		}
		nv, err := normalize(next)
		if err != nil {
			return nil, err
		}
		out := setAt(doc, inner, nv)
		node, found = getAt(out, inner)
		if result, err = newSnapshot(parts, node, found); err != nil {
			return nil, err
		}
		return out, nil
	})
	return result, err
}

// Subscribe listens on the document's change channel, or on every document of a
// collection when path is a single segment.
func (r *RedisStore) Subscribe(path string, onSnapshot func(Snapshot), onError func(error)) (func(), error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: cannot subscribe to the root", ErrInvalidPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var ps *redis.PubSub
	if len(parts) == 1 {
		ps = r.rdb.PSubscribe(ctx, r.channel(parts[0]+"/*"))
	} else {
		docPath, _, _ := split(parts)
		ps = r.rdb.Subscribe(ctx, r.channel(docPath))
	}
	// wait for the subscription to be confirmed so no change slips in before the first read
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, unavailable(err)
	}

	initial, err := r.Get(ctx, path)
	if err != nil {
		cancel()
		_ = ps.Close()
		return nil, err
	}
	sub := newSubscription(parts, initial, onSnapshot, onError)
	r.mu.Lock()
	r.subs[sub] = ps
	r.mu.Unlock()

	refresh := func() {
		snap, err := r.Get(ctx, path)
		if err != nil {
			if ctx.Err() == nil {
				sub.fail(err)
			}
			return
		}
		sub.offer(snap)
	}

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				refresh()
			}
		}
	}()

	return func() {
		r.mu.Lock()
		delete(r.subs, sub)
		r.mu.Unlock()
		cancel()
		sub.stop()
		_ = ps.Close()
	}, nil
}

func (r *RedisStore) SubscribeChildren(path string, l ChildListener, onError func(error)) (func(), error) {
	return r.Subscribe(path, childDiffer(l), onError)
}

// Close stops all subscriptions. The underlying client is owned by the caller.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub, ps := range r.subs {
		sub.stop()
		_ = ps.Close()
	}
	r.subs = make(map[*subscription]*redis.PubSub)
	return nil
}
