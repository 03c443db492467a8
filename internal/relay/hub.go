package relay

import (
	"sync"
	"time"

	"edulink/internal/models"
	"edulink/internal/presence"
	"edulink/internal/signaling"
	"edulink/pkg/logger"
)

// Hub owns the per-user connection groups: every device a user has open
// joins the same group, so one logical event reaches all of them. The hub
// drives the presence tracker on the connect/disconnect edges.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*Client]bool
	presence *presence.Tracker
}

func NewHub(tracker *presence.Tracker) *Hub {
	return &Hub{
		conns:    make(map[string]map[*Client]bool),
		presence: tracker,
	}
}

// Register joins the client to its user's group. The status broadcast only
// happens on the user's first session, and never for hidden users.
func (h *Hub) Register(c *Client) {
	userID := c.UserID()

	h.mu.Lock()
	group := h.conns[userID]
	if group == nil {
		group = make(map[*Client]bool)
		h.conns[userID] = group
	}
	group[c] = true
	h.mu.Unlock()

	if first := h.presence.MarkOnline(userID); first && !h.presence.IsHidden(userID) {
		h.broadcastStatus(userID, presence.StatusOnline, nil)
	}
	h.sendSnapshot(c)

	logger.Info("User %s connected (%s)", userID, c.ID())
}

// Unregister removes the client from its group and decrements the presence
// count. The offline announcement, if this was the last device, is deferred
// by the tracker's grace period.
func (h *Hub) Unregister(c *Client) {
	userID := c.UserID()

	h.mu.Lock()
	removed := false
	if group, ok := h.conns[userID]; ok {
		if group[c] {
			delete(group, c)
			removed = true
		}
		if len(group) == 0 {
			delete(h.conns, userID)
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}

	h.presence.MarkOffline(userID, func(id string, lastSeen time.Time) {
		if h.presence.IsHidden(id) {
			return
		}
		seenAt := lastSeen
		h.broadcastStatus(id, presence.StatusOffline, &seenAt)
	})

	logger.Info("User %s disconnected (%s)", userID, c.ID())
}

// SendToUser fans one event out to every active connection of the user.
func (h *Hub) SendToUser(userID string, ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns[userID] {
		c.Send(ev)
	}
}

// Broadcast delivers one event to every connection on the relay.
func (h *Hub) Broadcast(ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, group := range h.conns {
		for c := range group {
			c.Send(ev)
		}
	}
}

// ConnsFor implements signaling.Directory.
func (h *Hub) ConnsFor(userID string) []signaling.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	group := h.conns[userID]
	conns := make([]signaling.Conn, 0, len(group))
	for c := range group {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) broadcastStatus(userID, status string, lastSeen *time.Time) {
	ev, err := models.NewEvent(models.EventUserStatus, models.UserStatusPayload{
		UserID:     userID,
		Status:     status,
		LastSeenAt: lastSeen,
	})
	if err != nil {
		logger.Error("Error marshaling status update: %v", err)
		return
	}
	h.Broadcast(ev)
}

func (h *Hub) sendSnapshot(c *Client) {
	ev, err := models.NewEvent(models.EventUserStatusInit, h.presence.Snapshot())
	if err != nil {
		logger.Error("Error marshaling presence snapshot: %v", err)
		return
	}
	c.Send(ev)
}
