package fanout

import (
	"fmt"
	"sync"

	"agromind/internal/constants"
	"agromind/internal/metrics"
	"agromind/internal/models"

	"github.com/sirupsen/logrus"
)

// Relay forwards locally published events to other server instances.
// Forward must not block.
type Relay interface {
	Forward(ev models.Event)
}

type connection struct {
	events chan models.Event
	groups map[string]struct{}
}

// Hub tracks live connections and the groups they joined, and delivers
// published events to every connection subscribed to the event's group.
// Delivery never blocks: a connection whose buffer is full misses the event.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]*connection
	groups     map[string]map[string]struct{}
	bufferSize int

	relay   Relay
	logger  *logrus.Logger
	metrics *metrics.Registry
}

// NewHub creates a hub whose connections buffer up to bufferSize events
func NewHub(logger *logrus.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultSubscriberSendBuffer
	}
	return &Hub{
		conns:      make(map[string]*connection),
		groups:     make(map[string]map[string]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
		metrics:    metrics.GetRegistry(),
	}
}

// SetRelay attaches a cross-instance relay. Must be called before Publish is
// used concurrently.
func (h *Hub) SetRelay(relay Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = relay
}

// Register adds a connection and returns the channel its events arrive on.
// The channel is closed by Unregister. Registering an existing id replaces
// the previous connection.
func (h *Hub) Register(connID string) <-chan models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[connID]; ok {
		h.removeLocked(connID, old)
	}

	conn := &connection{
		events: make(chan models.Event, h.bufferSize),
		groups: make(map[string]struct{}),
	}
	h.conns[connID] = conn
	h.metrics.AddToGauge(metrics.FanoutConnections, 1, nil, "Open real-time connections")

	return conn.events
}

// Subscribe adds groupID to the connection's groups. A connection may join
// any number of groups; joining twice is a no-op.
func (h *Hub) Subscribe(connID, groupID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("unknown connection %s", connID)
	}

	conn.groups[groupID] = struct{}{}
	members, ok := h.groups[groupID]
	if !ok {
		members = make(map[string]struct{})
		h.groups[groupID] = members
	}
	members[connID] = struct{}{}

	return nil
}

// Unregister drops the connection from every group and closes its channel
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, ok := h.conns[connID]; ok {
		h.removeLocked(connID, conn)
	}
}

func (h *Hub) removeLocked(connID string, conn *connection) {
	for groupID := range conn.groups {
		members := h.groups[groupID]
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, groupID)
		}
	}
	delete(h.conns, connID)
	close(conn.events)
	h.metrics.AddToGauge(metrics.FanoutConnections, -1, nil, "Open real-time connections")
}

// Publish delivers msg to the group's local subscribers and hands it to the
// relay, if any. It returns the number of local deliveries.
func (h *Hub) Publish(groupID string, kind models.EventKind, msg *models.Message) int {
	ev := models.Event{Kind: kind, GroupID: groupID, Message: msg}
	delivered := h.PublishLocal(ev)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		relay.Forward(ev)
	}

	return delivered
}

// PublishLocal delivers ev to this instance's subscribers only
func (h *Hub) PublishLocal(ev models.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	labels := map[string]string{"event": string(ev.Kind)}
	h.metrics.IncrementCounter(metrics.FanoutPublished, labels, "Fanout events published")

	delivered := 0
	for connID := range h.groups[ev.GroupID] {
		conn := h.conns[connID]
		select {
		case conn.events <- ev:
			delivered++
		default:
			h.metrics.IncrementCounter(metrics.FanoutDropped, labels, "Fanout events dropped on full buffers")
			h.logger.WithFields(logrus.Fields{
				"connection_id": connID,
				"group_id":      ev.GroupID,
				"event":         ev.Kind,
			}).Debug("Subscriber buffer full, dropping event")
		}
	}
	if delivered > 0 {
		h.metrics.AddToCounter(metrics.FanoutDelivered, float64(delivered), labels, "Fanout events delivered")
	}

	return delivered
}

// Subscribers returns how many connections joined groupID
func (h *Hub) Subscribers(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

// Connections returns the number of registered connections
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
