package device

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"commuterbliss/internal/observability"
)

// Session is one open device connection.
type Session struct {
	ID       string
	DeviceID string
	out      chan Envelope
}

// Messages yields envelopes queued for this session.
func (s *Session) Messages() <-chan Envelope {
	return s.out
}

// Hub routes envelopes to connected device sessions. A device may hold
// several sessions; each gets every envelope. When a session's outbox is
// full the oldest pending envelope is dropped.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[string]*Session // device id -> session id -> session
	buffer   int
	logger   *slog.Logger
	metrics  *observability.Collector
}

// NewHub creates a Hub with per-session outboxes of the given size.
func NewHub(buffer int, logger *slog.Logger, metrics *observability.Collector) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		sessions: make(map[string]map[string]*Session),
		buffer:   buffer,
		logger:   logger,
		metrics:  metrics,
	}
}

// Subscribe opens a session for deviceID. Call the returned function to close it.
func (h *Hub) Subscribe(deviceID string) (*Session, func()) {
	s := &Session{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		out:      make(chan Envelope, h.buffer),
	}

	h.mu.Lock()
	if h.sessions[deviceID] == nil {
		h.sessions[deviceID] = make(map[string]*Session)
	}
	h.sessions[deviceID][s.ID] = s
	n := h.countLocked()
	h.mu.Unlock()

	h.metrics.SetSessions(n)
	h.logger.Info("device connected", "device", deviceID, "session", s.ID)

	var once sync.Once
	return s, func() {
		once.Do(func() { h.unsubscribe(s) })
	}
}

func (h *Hub) unsubscribe(s *Session) {
	h.mu.Lock()
	if set := h.sessions[s.DeviceID]; set != nil {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(h.sessions, s.DeviceID)
		}
	}
	n := h.countLocked()
	h.mu.Unlock()

	h.metrics.SetSessions(n)
	h.logger.Info("device disconnected", "device", s.DeviceID, "session", s.ID)
}

// Connected reports whether deviceID has at least one session.
func (h *Hub) Connected(deviceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[deviceID]) > 0
}

// Sessions returns the number of open sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.sessions {
		n += len(set)
	}
	return n
}

// Send queues env for every session of deviceID without blocking.
func (h *Hub) Send(_ context.Context, deviceID string, env Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.sessions[deviceID]
	if len(set) == 0 {
		return ErrNoSession
	}
	for _, s := range set {
		for {
			select {
			case s.out <- env:
			default:
				select {
				case <-s.out:
					h.metrics.MessageDropped()
					h.logger.Warn("device outbox full, dropped oldest message",
						"device", deviceID, "session", s.ID)
				default:
				}
				continue
			}
			break
		}
	}
	return nil
}
