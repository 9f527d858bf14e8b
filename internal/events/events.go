// Package events provides the append-only, strictly ordered event stream a
// discovery run emits. The event log is the sole channel by which the engine
// reports progress; a consumer that replays the stream can reconstruct the
// full state of a run.
package events

import (
	"sync"
	"time"
)

// Event types emitted during a run. Consumers must tolerate types they do
// not recognize.
const (
	TypeRunStart   = "run.start"
	TypeRunStopped = "run.stopped"
	TypeRunDone    = "run.done"

	TypeNodeStart        = "node.start"
	TypeNodeStatusUpdate = "node.status.update"
	TypeNodeResult       = "node.result"
	TypeNodeToolStart    = "node.tool.start"
	TypeNodeToolResult   = "node.tool.result"

	TypeRepairStart           = "repair.start"
	TypeRepairProposeStart    = "repair.propose.start"
	TypeRepairVetStart        = "repair.vet.start"
	TypeRepairVetSuccess      = "repair.vet.success"
	TypeRepairApplyCodePatch  = "repair.apply.code_patch"
	TypeRepairSuccess         = "repair.success"
	TypeRepairFailed          = "repair.failed"
	TypeRepairFailedPermanent = "repair.failed.permanent"
)

// Event is an immutable record of something that happened during a run.
// Events are never mutated or removed after emission.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	RunID     string         `json:"runId"`
	NodeID    string         `json:"nodeId,omitempty"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
}

// Observer receives events synchronously, in emission order. Back-pressure
// is the observer's problem: Emit does not return until every observer has
// returned.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Log stamps events with a monotonically non-decreasing timestamp and the
// run identifier, then delivers them synchronously to every registered
// observer in registration order. There is no buffering, no reordering and
// no drop policy.
type Log struct {
	mu        sync.Mutex
	observers []Observer
	last      time.Time
	now       func() time.Time
}

// NewLog creates an event log delivering to the given observers.
func NewLog(observers ...Observer) *Log {
	return &Log{
		observers: observers,
		now:       time.Now,
	}
}

// Register adds an observer. Observers registered mid-run only see events
// emitted after registration.
func (l *Log) Register(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Emit stamps e with runID and a timestamp no earlier than any previously
// stamped event, then delivers it to all observers before returning.
// The Timestamp and RunID fields of e are overwritten.
func (l *Log) Emit(e Event, runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	if ts.Before(l.last) {
		ts = l.last
	}
	l.last = ts

	e.Timestamp = ts
	e.RunID = runID

	for _, o := range l.observers {
		o.Observe(e)
	}
}
