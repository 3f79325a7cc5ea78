// internal/game/service.go
package game

import (
	"time"

	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/jason-s-yu/neocascade/internal/store"
	"github.com/sirupsen/logrus"
)

// Options configure a Service. Zero durations and attempts fall back to the package defaults;
// zero retentions keep everything.
type Options struct {
	Logger   *logrus.Logger
	Metrics  *monitoring.Metrics
	Recorder EventRecorder

	TickInterval    time.Duration
	ChatRetention   int
	AlertRetention  int
	MaxCodeAttempts int
}

// Service bundles the room components that share one store.
type Service struct {
	Store     store.Store
	Rooms     *Registry
	Controls  *Controls
	Chat      *Chat
	Simulator *Simulator
}

// NewService wires a Registry, Controls, Chat and Simulator onto s.
func NewService(s store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	rooms := NewRegistry(s, logger)
	rooms.Metrics = opts.Metrics
	rooms.Recorder = recorder
	if opts.MaxCodeAttempts > 0 {
		rooms.MaxCodeAttempts = opts.MaxCodeAttempts
	}

	controls := NewControls(s, logger)
	controls.Metrics = opts.Metrics
	controls.Recorder = recorder

	chat := NewChat(s, logger)
	chat.Metrics = opts.Metrics
	chat.Recorder = recorder
	chat.Retention = opts.ChatRetention

	sim := NewSimulator(s, logger)
	sim.Metrics = opts.Metrics
	if opts.TickInterval > 0 {
		sim.Interval = opts.TickInterval
	}
	sim.AlertRetention = opts.AlertRetention

	return &Service{
		Store:     s,
		Rooms:     rooms,
		Controls:  controls,
		Chat:      chat,
		Simulator: sim,
	}
}
