package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pulsed/internal/feed"
	"github.com/fyrsmithlabs/pulsed/internal/store"
)

// handleEvents streams record snapshots for one client and entity over
// SSE. Each change event triggers a refetch of the full list, and the
// fresh snapshot is pushed as one SSE message. Bursts coalesce: a
// refetch already in flight absorbs any events that arrive during it,
// so the client sees at most one trailing snapshot per burst.
func (s *Server) handleEvents(c echo.Context) error {
	if s.subscriber == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream unavailable")
	}

	entity := feed.Entity(c.QueryParam("entity"))
	if entity == "" {
		entity = feed.EntityDailyUpdates
	}
	if !entity.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown entity: %q", entity))
	}
	clientID := c.Param("clientID")
	view := store.ViewEmployee
	if c.QueryParam("view") == "client" {
		view = store.ViewClient
	}

	// The session param identifies the owning scope so one session
	// cannot double-subscribe a topic. Without it each connection is
	// its own scope.
	scope := c.QueryParam("session")
	if scope == "" {
		scope = uuid.NewString()
	}

	// Capacity 1 with drop-oldest: only the newest snapshot matters.
	snapshots := make(chan []byte, 1)
	refetch := func(ctx context.Context) error {
		data, err := s.snapshot(ctx, entity, clientID, view)
		if err != nil {
			return err
		}
		for {
			select {
			case snapshots <- data:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			default:
				select {
				case <-snapshots:
				default:
				}
			}
		}
	}

	sub, err := s.subscriber.Subscribe(scope, entity, clientID, refetch)
	if err != nil {
		return httpError(err)
	}
	defer sub.Close()

	ctx := c.Request().Context()

	// Initial snapshot before any change arrives.
	if err := refetch(ctx); err != nil {
		return httpError(err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-snapshots:
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				s.logger.Debug("sse write failed",
					zap.String("client_id", clientID),
					zap.Error(err))
				return nil
			}
			w.Flush()
		}
	}
}

// snapshot lists the current records for an entity and serializes them.
func (s *Server) snapshot(ctx context.Context, entity feed.Entity, clientID string, view store.View) ([]byte, error) {
	var (
		records any
		err     error
	)
	switch entity {
	case feed.EntityDailyUpdates:
		records, err = s.records.ListDailyUpdates(ctx, clientID, view)
	case feed.EntityWeeklySummaries:
		records, err = s.records.ListWeeklySummaries(ctx, clientID)
	case feed.EntityClientTasks:
		records, err = s.records.ListClientTasks(ctx, clientID)
	default:
		return nil, fmt.Errorf("unknown entity: %q", entity)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(records)
}
