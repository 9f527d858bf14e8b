package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NDJSONWriter writes each event as one JSON line. The resulting stream is
// the canonical, replayable history of a run.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewNDJSONWriter creates a writer emitting newline-delimited JSON to w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w)}
}

// Observe encodes the event. Encoding errors are retained, not surfaced to
// the emitter; check Err after the run if the sink matters.
func (w *NDJSONWriter) Observe(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(e); err != nil && w.err == nil {
		w.err = err
	}
}

// Err returns the first encoding error encountered, if any.
func (w *NDJSONWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// ZapObserver mirrors the event stream into a structured logger.
type ZapObserver struct {
	logger *zap.Logger
}

// NewZapObserver creates an observer logging events at debug level.
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapObserver{logger: logger}
}

func (z *ZapObserver) Observe(e Event) {
	z.logger.Debug("event",
		zap.String("run_id", e.RunID),
		zap.String("node_id", e.NodeID),
		zap.String("type", e.Type),
		zap.Any("data", e.Data),
	)
}

// Subject returns the NATS subject events for runID are published on.
func Subject(runID string) string {
	return fmt.Sprintf("runs.%s.events", runID)
}

// NATSPublisher publishes events to a per-run NATS subject so external
// consumers (SSE bridges, dashboards) can follow a run without coupling to
// the engine.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher creates a publisher on the given connection.
func NewNATSPublisher(nc *nats.Conn, logger *zap.Logger) (*NATSPublisher, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// Observe publishes the event as JSON. Publish failures are logged and
// dropped; the engine's own event ordering is not affected by a flaky
// transport.
func (p *NATSPublisher) Observe(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}
	if err := p.nc.Publish(Subject(e.RunID), payload); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("type", e.Type),
			zap.Error(err))
	}
}

// Collector buffers every observed event in order. It backs the HTTP API's
// replay of historical events to late-attaching stream consumers and is
// handy in tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Observe(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// All returns a copy of the collected events in emission order.
func (c *Collector) All() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns the event types in emission order.
func (c *Collector) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, len(c.events))
	for i, e := range c.events {
		types[i] = e.Type
	}
	return types
}

// OfType returns collected events matching the given type.
func (c *Collector) OfType(t string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
