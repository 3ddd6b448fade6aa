package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/metrics"
	"github.com/quocanhngo/talkcore/internal/model"
	"go.uber.org/zap"
)

// Hub manages all WebSocket connections of this instance and delivers events
// to them. Events go through the Bus so every instance sees them; without a
// Bus delivery is local only.
type Hub struct {
	// Map of userID -> set of client connections (one user can have multiple tabs/devices)
	clients map[uuid.UUID]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client

	bus     Bus
	log     *zap.Logger
	metrics *metrics.Metrics

	// Callback when user comes online/offline
	onStatusChange func(userID uuid.UUID, online bool)
}

// TargetedEvent wraps an event with a target user ID for the bus
type TargetedEvent struct {
	TargetUserID uuid.UUID      `json:"target_user_id,omitempty"`
	Event        *model.WSEvent `json:"event"`
}

func NewHub(bus Bus, log *zap.Logger, m *metrics.Metrics, onStatusChange func(userID uuid.UUID, online bool)) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:        make(map[uuid.UUID]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client, 64),
		bus:            bus,
		log:            log.Named("hub"),
		metrics:        m,
		onStatusChange: onStatusChange,
	}
}

// Run starts the Hub's main event loop
func (h *Hub) Run(ctx context.Context) {
	if h.bus != nil {
		go h.subscribe(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register queues a client for registration with the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	first := false
	if _, ok := h.clients[client.UserID]; !ok {
		h.clients[client.UserID] = make(map[*Client]bool)
		first = true
	}
	h.clients[client.UserID][client] = true
	conns := len(h.clients[client.UserID])
	h.mu.Unlock()

	h.metrics.WSConnected(1)
	h.log.Debug("client connected", zap.Stringer("user_id", client.UserID), zap.Int("connections", conns))

	if first {
		if h.onStatusChange != nil {
			go h.onStatusChange(client.UserID, true)
		}
		h.emit(context.Background(), uuid.Nil, &model.WSEvent{
			Type:    model.WSEventOnline,
			Payload: model.OnlineEvent{UserID: client.UserID, IsOnline: true},
		})
	}
}

// removeClient is safe to call more than once for the same client
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.UserID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	client.close()
	last := len(clients) == 0
	if last {
		delete(h.clients, client.UserID)
	}
	h.mu.Unlock()

	h.metrics.WSConnected(-1)
	h.log.Debug("client disconnected", zap.Stringer("user_id", client.UserID))

	if last {
		if h.onStatusChange != nil {
			go h.onStatusChange(client.UserID, false)
		}
		h.emit(context.Background(), uuid.Nil, &model.WSEvent{
			Type:    model.WSEventOffline,
			Payload: model.OnlineEvent{UserID: client.UserID, IsOnline: false},
		})
	}
}

// Name identifies the hub as a notification sink
func (h *Hub) Name() string { return "realtime" }

// Notify delivers a message event to every connection of userID on any instance
func (h *Hub) Notify(ctx context.Context, userID uuid.UUID, n model.Notification) error {
	return h.emit(ctx, userID, &model.WSEvent{Type: string(n.Type), Payload: n})
}

// SendToUsers sends a client-originated event (typing, read) to users
func (h *Hub) SendToUsers(ctx context.Context, userIDs []uuid.UUID, event *model.WSEvent) {
	for _, id := range userIDs {
		if err := h.emit(ctx, id, event); err != nil {
			h.log.Warn("event not published", zap.String("type", event.Type), zap.Error(err))
		}
	}
}

// emit publishes on the bus, or delivers locally when there is none.
// A nil target broadcasts to every local client.
func (h *Hub) emit(ctx context.Context, target uuid.UUID, event *model.WSEvent) error {
	te := TargetedEvent{TargetUserID: target, Event: event}
	if h.bus == nil {
		h.deliver(te)
		return nil
	}
	data, err := json.Marshal(te)
	if err != nil {
		return err
	}
	return h.bus.Publish(ctx, data)
}

func (h *Hub) deliver(te TargetedEvent) {
	if te.Event == nil {
		return
	}
	data, err := json.Marshal(te.Event)
	if err != nil {
		h.log.Error("marshal event failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	var targets []*Client
	if te.TargetUserID != uuid.Nil {
		for c := range h.clients[te.TargetUserID] {
			targets = append(targets, c)
		}
	} else {
		for _, set := range h.clients {
			for c := range set {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			// slow consumer, drop the connection
			select {
			case h.unregister <- c:
			default:
				go func(c *Client) { h.unregister <- c }(c)
			}
		}
	}
}

// IsUserOnline checks if a user has any active connections on this instance
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) subscribe(ctx context.Context) {
	msgs, closeFn := h.bus.Subscribe(ctx)
	defer closeFn()
	h.log.Info("bus subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			var te TargetedEvent
			if err := json.Unmarshal(raw, &te); err != nil {
				h.log.Warn("bad bus payload", zap.Error(err))
				continue
			}
			h.deliver(te)
		}
	}
}
