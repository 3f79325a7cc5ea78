// internal/game/simulator.go
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/jason-s-yu/neocascade/internal/store"
	"github.com/sirupsen/logrus"
)

// DefaultTickInterval is how often an attached room is simulated.
const DefaultTickInterval = 5 * time.Second

// DefaultAlertRetention is how many alerts a vessel keeps.
const DefaultAlertRetention = 5

// Simulator runs one ticker goroutine per room while at least one client is attached.
// Attaching the same room again shares the running loop.
type Simulator struct {
	Store   store.Store
	Logger  *logrus.Logger
	Metrics *monitoring.Metrics

	Params   TickParams
	Interval time.Duration
	// AlertRetention caps submarine/alerts; zero keeps every alert.
	AlertRetention int
	// OnAlert is called after a tick that raised alerts has committed.
	OnAlert func(code string, alerts []Alert)

	mu      sync.Mutex
	rooms   map[string]*simulation
	wg      sync.WaitGroup
	stopped bool
}

type simulation struct {
	refs   int
	cancel context.CancelFunc
}

// NewSimulator returns a Simulator with the default params, interval and alert retention.
func NewSimulator(s store.Store, logger *logrus.Logger) *Simulator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Simulator{
		Store:          s,
		Logger:         logger,
		Params:         DefaultTickParams,
		Interval:       DefaultTickInterval,
		AlertRetention: DefaultAlertRetention,
		rooms:          make(map[string]*simulation),
	}
}

// Attach registers interest in a room and starts its loop on the first attachment.
func (s *Simulator) Attach(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if sim, ok := s.rooms[code]; ok {
		sim.refs++
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sim := &simulation{refs: 1, cancel: cancel}
	s.rooms[code] = sim
	s.Metrics.SetSimulations(len(s.rooms))
	s.Logger.WithField("room", code).Debug("simulation started")

	s.wg.Add(1)
	go s.loop(ctx, code, sim)
}

// Detach drops one attachment and stops the loop when none remain.
func (s *Simulator) Detach(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.rooms[code]
	if !ok {
		return
	}
	sim.refs--
	if sim.refs > 0 {
		return
	}
	sim.cancel()
	delete(s.rooms, code)
	s.Metrics.SetSimulations(len(s.rooms))
	s.Logger.WithField("room", code).Debug("simulation stopped")
}

// Running reports whether a loop is active for the room.
func (s *Simulator) Running(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[code]
	return ok
}

// Stop cancels every loop and waits for them to exit. Later Attach calls are ignored.
func (s *Simulator) Stop() {
	s.mu.Lock()
	s.stopped = true
	for code, sim := range s.rooms {
		sim.cancel()
		delete(s.rooms, code)
	}
	s.Metrics.SetSimulations(0)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Simulator) loop(ctx context.Context, code string, sim *simulation) {
	defer s.wg.Done()

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, err := s.Step(ctx, code)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			s.forget(code, sim)
			return
		case ctx.Err() != nil:
			return
		default:
			s.Logger.WithError(err).WithField("room", code).Warn("simulation tick failed")
		}
	}
}

// forget removes a loop whose room disappeared, unless it was already replaced.
func (s *Simulator) forget(code string, sim *simulation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[code] == sim {
		sim.cancel()
		delete(s.rooms, code)
		s.Metrics.SetSimulations(len(s.rooms))
		s.Logger.WithField("room", code).Debug("room gone, simulation stopped")
	}
}

// Step applies one tick to the room in a single transaction and returns the alerts it raised.
// Finished rooms are left untouched.
func (s *Simulator) Step(ctx context.Context, code string) ([]Alert, error) {
	var alerts []Alert
	_, err := s.Store.Transaction(ctx, RoomPath(code), func(cur store.Snapshot) (interface{}, error) {
		alerts = nil
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		if room.Status == models.StatusFinished {
			return store.NoChange, nil
		}

		room.Submarine, alerts = Tick(room.Submarine, s.Params)
		for _, a := range alerts {
			room.Submarine.Alerts = append(room.Submarine.Alerts, a.Message)
		}
		room.Submarine.Alerts = retain(room.Submarine.Alerts, s.AlertRetention)
		room.Version++
		return room, nil
	})
	s.Metrics.Tick(err)
	if err != nil {
		return nil, err
	}

	for _, a := range alerts {
		s.Metrics.Alert(string(a.Level))
		s.Logger.WithFields(logrus.Fields{"room": code, "level": a.Level, "resource": a.Resource}).Info(a.Message)
	}
	if len(alerts) > 0 && s.OnAlert != nil {
		s.OnAlert(code, alerts)
	}
	return alerts, nil
}

// retain keeps the newest n entries; n <= 0 keeps everything.
func retain(list []string, n int) []string {
	if n <= 0 || len(list) <= n {
		return list
	}
	return append([]string(nil), list[len(list)-n:]...)
}
