package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/events"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// handleRunEvents streams a run's event log as Server-Sent Events. The
// full buffered history is replayed first, then live events follow until
// the run reaches a terminal event or the client disconnects.
func (s *Server) handleRunEvents(c echo.Context) error {
	runID := c.Param("id")

	replay, live, cancel, err := s.manager.Subscribe(runID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to subscribe")
	}
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)

	for _, e := range replay {
		if err := writeSSEEvent(w, e); err != nil {
			return nil
		}
		if isTerminal(e.Type) {
			w.Flush()
			return nil
		}
	}
	w.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case e, ok := <-live:
			if !ok {
				// Run finished or the subscriber was dropped.
				return nil
			}
			if err := writeSSEEvent(w, e); err != nil {
				s.logger.Debug("sse write failed", zap.String("run_id", runID), zap.Error(err))
				return nil
			}
			w.Flush()
			if isTerminal(e.Type) {
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case <-ctx.Done():
			s.logger.Debug("sse client disconnected", zap.String("run_id", runID))
			return nil
		}
	}
}

func isTerminal(eventType string) bool {
	return eventType == events.TypeRunDone || eventType == events.TypeRunStopped
}

func writeSSEEvent(w http.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	return err
}
