package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is the wire format pushed to connected clients when the ledger
// changes. Extra carries event-specific fields such as point deltas.
type Event struct {
	Type     string         `json:"type"`
	Entity   string         `json:"entity"`
	Action   string         `json:"action"`
	FamilyID int64          `json:"family_id"`
	Extra    map[string]any `json:"extra,omitempty"`
}

func NewEvent(entity, action string, familyID int64) Event {
	return Event{
		Type:     entity + "." + action,
		Entity:   entity,
		Action:   action,
		FamilyID: familyID,
	}
}

// PointsAwarded builds the event broadcast after a task award commits.
func PointsAwarded(familyID, memberID, taskID int64, points int) Event {
	e := NewEvent("task", "points_awarded", familyID)
	e.Extra = map[string]any{
		"member_id": memberID,
		"task_id":   taskID,
		"points":    points,
	}
	return e
}

// RewardRedeemed builds the event broadcast after a redemption commits.
func RewardRedeemed(familyID, memberID int64, redemptionID string, cost, remaining int) Event {
	e := NewEvent("reward", "redeemed", familyID)
	e.Extra = map[string]any{
		"member_id":     memberID,
		"redemption_id": redemptionID,
		"point_cost":    cost,
		"remaining":     remaining,
	}
	return e
}

// Hub tracks connected clients and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", "clients", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client disconnected", "clients", n)
}

// Broadcast sends the event to every client in the same family. Slow
// clients are skipped rather than blocking the ledger path.
func (h *Hub) Broadcast(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.familyID != e.FamilyID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping event", "type", e.Type)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
