package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Hub owns the notification Centers of all live sessions. Centers are
// created on first use and dropped when the session ends; their state
// is never persisted.
type Hub struct {
	mu       sync.Mutex
	centers  map[string]*Center
	defaults Settings

	// delivery and prompter construct per-session sinks; either may be
	// nil for headless deployments.
	delivery func(sessionID string) Delivery
	prompter func(sessionID string) Prompter

	logger *zap.Logger
}

// HubOptions configures a Hub.
type HubOptions struct {
	// Defaults seeds each new session's settings. Zero value means
	// DefaultSettings().
	Defaults Settings

	// Delivery builds the sound/desktop sink for a session.
	Delivery func(sessionID string) Delivery

	// Prompter builds the permission prompter for a session.
	Prompter func(sessionID string) Prompter

	Logger *zap.Logger
}

// NewHub builds a Hub.
func NewHub(opts HubOptions) (*Hub, error) {
	defaults := opts.Defaults
	if defaults == (Settings{}) {
		defaults = DefaultSettings()
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		centers:  make(map[string]*Center),
		defaults: defaults,
		delivery: opts.Delivery,
		prompter: opts.Prompter,
		logger:   logger,
	}, nil
}

// Session returns the Center for a session, creating it on first use.
func (h *Hub) Session(sessionID string) *Center {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.centers[sessionID]; ok {
		return c
	}
	var delivery Delivery
	if h.delivery != nil {
		delivery = h.delivery(sessionID)
	}
	var prompter Prompter
	if h.prompter != nil {
		prompter = h.prompter(sessionID)
	}
	// Defaults are validated in NewHub, so this cannot fail.
	c, _ := NewCenter(h.defaults, delivery, prompter, h.logger.With(zap.String("session_id", sessionID)))
	h.centers[sessionID] = c
	newMetrics().Sessions.Inc()
	return c
}

// End drops a session's Center, discarding its notifications and
// settings.
func (h *Hub) End(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.centers[sessionID]; ok {
		delete(h.centers, sessionID)
		newMetrics().Sessions.Dec()
	}
}

// Broadcast pushes a notification to every live session.
func (h *Hub) Broadcast(n Notification) {
	h.mu.Lock()
	centers := make([]*Center, 0, len(h.centers))
	for _, c := range h.centers {
		centers = append(centers, c)
	}
	h.mu.Unlock()

	for _, c := range centers {
		c.Push(n)
	}
}
