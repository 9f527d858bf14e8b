// Package httpapi exposes the discovery engine over HTTP: starting and
// stopping runs, inspecting their outcome, and streaming the ordered
// event log via Server-Sent Events.
package httpapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/events"
	"github.com/fyrsmithlabs/discoveryd/internal/orchestrator"
)

// Run states reported by the API.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// Runner is the engine surface the manager drives.
type Runner interface {
	Run(ctx context.Context, goal, runID string) (*orchestrator.Report, error)
	Stop()
}

// EngineFactory builds a fresh engine bound to a run's event log. Each
// run gets its own engine so concurrent runs never share stop state.
type EngineFactory func(log *events.Log) (Runner, error)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = fmt.Errorf("run not found")

// Manager starts engines, tracks their lifecycle and fans their event
// streams out to subscribers. With a NATS connection configured every
// event is also published to runs.<id>.events for external consumers.
type Manager struct {
	logger  *zap.Logger
	factory EngineFactory
	nc      *nats.Conn

	mu   sync.RWMutex
	runs map[string]*runHandle
}

// NewManager creates a manager. nc may be nil to disable NATS publishing.
func NewManager(factory EngineFactory, nc *nats.Conn, logger *zap.Logger) (*Manager, error) {
	if factory == nil {
		return nil, fmt.Errorf("engine factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:  logger,
		factory: factory,
		nc:      nc,
		runs:    make(map[string]*runHandle),
	}, nil
}

// runHandle is one run's lifecycle state. The mutex covers the event
// buffer, subscribers and the terminal status so SSE replay never loses
// or duplicates an event.
type runHandle struct {
	id   string
	goal string

	engine Runner

	mu          sync.Mutex
	buffer      []events.Event
	subscribers map[chan events.Event]struct{}
	status      string
	report      *orchestrator.Report
	runErr      error
}

// Observe implements events.Observer: buffer for replay, then fan out.
// Slow subscribers are dropped rather than allowed to stall the run.
func (h *runHandle) Observe(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buffer = append(h.buffer, e)
	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}

func (h *runHandle) subscribe() ([]events.Event, chan events.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]events.Event, len(h.buffer))
	copy(replay, h.buffer)

	ch := make(chan events.Event, 64)
	h.subscribers[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return replay, ch, cancel
}

func (h *runHandle) finish(report *orchestrator.Report, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report = report
	h.runErr = err
	switch {
	case err != nil:
		h.status = StatusFailed
	case report != nil && report.Stopped:
		h.status = StatusStopped
	default:
		h.status = StatusCompleted
	}
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// RunState is a point-in-time view of a run.
type RunState struct {
	ID     string
	Goal   string
	Status string
	Report *orchestrator.Report
	Err    error
}

func (h *runHandle) state() RunState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return RunState{ID: h.id, Goal: h.goal, Status: h.status, Report: h.report, Err: h.runErr}
}

// StartRun launches a new discovery run and returns its id.
func (m *Manager) StartRun(ctx context.Context, goal string) (string, error) {
	runID := uuid.NewString()

	h := &runHandle{
		id:          runID,
		goal:        goal,
		subscribers: make(map[chan events.Event]struct{}),
		status:      StatusRunning,
	}

	observers := []events.Observer{h}
	if m.nc != nil {
		pub, err := events.NewNATSPublisher(m.nc, m.logger)
		if err != nil {
			return "", fmt.Errorf("creating event publisher: %w", err)
		}
		observers = append(observers, pub)
	}
	log := events.NewLog(observers...)

	engine, err := m.factory(log)
	if err != nil {
		return "", fmt.Errorf("creating engine: %w", err)
	}
	h.engine = engine

	m.mu.Lock()
	m.runs[runID] = h
	m.mu.Unlock()

	// The run outlives the originating HTTP request; it is detached from
	// the request context and bounded by Stop and daemon shutdown.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		report, err := engine.Run(runCtx, goal, runID)
		if err != nil {
			m.logger.Error("run failed", zap.String("run_id", runID), zap.Error(err))
		}
		h.finish(report, err)
	}()

	m.logger.Info("run started", zap.String("run_id", runID), zap.String("goal", goal))
	return runID, nil
}

// Get returns the state of a run.
func (m *Manager) Get(runID string) (RunState, error) {
	h, err := m.handle(runID)
	if err != nil {
		return RunState{}, err
	}
	return h.state(), nil
}

// StopRun requests a graceful stop of a run.
func (m *Manager) StopRun(runID string) error {
	h, err := m.handle(runID)
	if err != nil {
		return err
	}
	h.engine.Stop()
	return nil
}

// Subscribe returns the run's buffered events and a live channel for the
// rest. The channel closes when the run finishes or cancel is called.
func (m *Manager) Subscribe(runID string) ([]events.Event, <-chan events.Event, func(), error) {
	h, err := m.handle(runID)
	if err != nil {
		return nil, nil, nil, err
	}
	replay, ch, cancel := h.subscribe()
	return replay, ch, cancel, nil
}

// StopAll requests a stop of every run still in flight.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.runs {
		h.engine.Stop()
	}
}

func (m *Manager) handle(runID string) (*runHandle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return h, nil
}
