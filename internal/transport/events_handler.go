package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/middleware"
	"order-fulfillment/internal/notify"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const heartbeatInterval = 25 * time.Second

// SubscribeFunc opens a stream of envelopes for the given subscriber keys.
type SubscribeFunc func(ctx context.Context, keys ...string) (<-chan []byte, error)

// EventsHandler streams order notifications to the caller as Server-Sent Events.
type EventsHandler struct {
	subscribe SubscribeFunc
	logger    *zap.Logger
}

func NewEventsHandler(subscribe SubscribeFunc, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{subscribe: subscribe, logger: logger}
}

func (h *EventsHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Get("/api/events", h.Stream)
}

// Stream subscribes to user:<id> and role:<role> and relays every envelope
// until the client goes away.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.RespondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	events, err := h.subscribe(ctx, domain.UserChannel(actor.ID), domain.RoleChannel(actor.Role))
	if err != nil {
		h.logger.Error("Failed to subscribe to events", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	// streams outlive the server's WriteTimeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("Event stream opened",
		zap.String("user_id", actor.ID.String()),
		zap.String("role", string(actor.Role)),
	)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case body, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, body)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, body []byte) {
	var env notify.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Event == "" {
		fmt.Fprintf(w, "data: %s\n\n", body)
		return
	}
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.EventID, env.Event, body)
}
