// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian drains room events from.
const DefaultQueueName = "neocascade_room_events"

// Connect dials Redis and pings it. The caller owns the returned client.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// PublishRoomEvent serializes the event and pushes it onto the queue.
func PublishRoomEvent(ctx context.Context, rdb *redis.Client, queue string, ev models.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := rdb.RPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queue, err)
	}
	return nil
}

// QueueRecorder forwards every room event to a Redis list for the historian.
type QueueRecorder struct {
	Client *redis.Client
	Queue  string
}

// NewQueueRecorder returns a recorder on the default queue when queue is empty.
func NewQueueRecorder(rdb *redis.Client, queue string) *QueueRecorder {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &QueueRecorder{Client: rdb, Queue: queue}
}

func (q *QueueRecorder) RecordRoomEvent(ctx context.Context, ev models.RoomEvent) error {
	return PublishRoomEvent(ctx, q.Client, q.Queue, ev)
}
