// internal/historian/historian.go is an asynchronous historian that pops room events from a
// Redis queue and persists them in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/neocascade/internal/cache"
	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink persists batches of room events.
type Sink interface {
	InsertRoomEvents(ctx context.Context, events []models.RoomEvent) error
	MarkRoomAbandoned(ctx context.Context, code string) error
}

// Config tunes batching and inactivity detection.
type Config struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a room may go without events before it is marked abandoned.
	Inactivity time.Duration
	// PopTimeout bounds each BLPOP so shutdown is noticed promptly.
	PopTimeout time.Duration
}

// DefaultConfig mirrors the production defaults.
var DefaultConfig = Config{
	BatchSize:  20,
	FlushDelay: 500 * time.Millisecond,
	Inactivity: 10 * time.Minute,
	PopTimeout: 3 * time.Second,
}

// Service drains the queue into a Sink.
type Service struct {
	rdb    *redis.Client
	sink   Sink
	cfg    Config
	logger *logrus.Logger

	lastActivity sync.Map // room code -> time.Time

	batchMu sync.Mutex
	batch   []models.RoomEvent
}

// New builds a Service; zero Config fields take DefaultConfig values.
func New(rdb *redis.Client, sink Sink, cfg Config, logger *logrus.Logger) *Service {
	if cfg.Queue == "" {
		cfg.Queue = cache.DefaultQueueName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = DefaultConfig.FlushDelay
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = DefaultConfig.Inactivity
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = DefaultConfig.PopTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		rdb:    rdb,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		batch:  make([]models.RoomEvent, 0, cfg.BatchSize),
	}
}

// Run reads the queue, flushes on size or delay and sweeps inactive rooms until ctx is done.
// Whatever is still buffered is flushed before returning.
func (s *Service) Run(ctx context.Context) error {
	s.logger.WithField("queue", s.cfg.Queue).Info("historian started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.flushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.readLoop(ctx)
	wg.Wait()

	// ctx is already done; give the final flush its own deadline
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.logger.Info("historian stopped")
	return nil
}

func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := s.rdb.BLPop(ctx, s.cfg.PopTimeout, s.cfg.Queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Warn("BLPOP failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		// res[0] is the queue name and res[1] the payload
		var ev models.RoomEvent
		if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
			s.logger.WithError(err).Warn("dropping malformed room event")
			continue
		}
		s.Add(ctx, ev)
	}
}

// Add buffers one event and flushes when the batch is full.
func (s *Service) Add(ctx context.Context, ev models.RoomEvent) {
	switch ev.Kind {
	case models.EventRoomDeleted, models.EventRoomFinished:
		s.lastActivity.Delete(ev.RoomCode)
	default:
		s.lastActivity.Store(ev.RoomCode, time.Now())
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, ev)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()
	if full {
		s.Flush(ctx)
	}
}

// Flush writes the buffered events in one call to the sink. On failure they are kept for the next flush.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	if len(s.batch) == 0 {
		return
	}

	pending := make([]models.RoomEvent, len(s.batch))
	copy(pending, s.batch)
	if err := s.sink.InsertRoomEvents(ctx, pending); err != nil {
		s.logger.WithError(err).WithField("events", len(pending)).Error("failed to flush room events")
		return
	}
	s.batch = s.batch[:0]
	s.logger.WithField("events", len(pending)).Debug("flushed room events")
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *Service) inactivityLoop(ctx context.Context) {
	interval := s.cfg.Inactivity / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep marks every room idle since before now-Inactivity as abandoned.
func (s *Service) Sweep(ctx context.Context, now time.Time) {
	s.lastActivity.Range(func(key, val interface{}) bool {
		code, ok1 := key.(string)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.cfg.Inactivity {
			return true
		}
		// pending events for the room must land before its row is closed
		s.Flush(ctx)
		if err := s.sink.MarkRoomAbandoned(ctx, code); err != nil {
			s.logger.WithError(err).WithField("room", code).Warn("failed to mark room abandoned")
			return true
		}
		s.lastActivity.Delete(code)
		s.logger.WithField("room", code).Info("room marked abandoned after inactivity")
		return true
	})
}
