package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/redis/go-redis/v9"
)

const redisChannel = "studymate:account_events"

// Hub keeps the open sessions of every signed-in student and pushes account
// events to them. Events go through Redis Pub/Sub so that every instance
// delivers to the sessions it holds.
type Hub struct {
	// userID -> set of connections (one student can have several devices)
	clients map[uuid.UUID]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	deliver    chan TargetedEvent

	rdb   redis.UniversalClient
	ready chan struct{}
	done  chan struct{}
}

// NewHub creates a new WebSocket Hub
func NewHub(rdb redis.UniversalClient) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan TargetedEvent, 256),
		rdb:        rdb,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Ready is closed once the Redis subscription is active
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run starts the Hub's main event loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	go h.subscribeRedis(ctx)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case targeted := <-h.deliver:
			h.sendToLocalUser(targeted.TargetUserID, targeted.Event)
		}
	}
}

// Register queues a client for registration with the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client; it is a no-op once the hub stopped
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.UserID]; !ok {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true
	log.Printf("✅ Session connected: %s (total connections: %d)", client.UserID, len(h.clients[client.UserID]))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dropLocked(client) {
		log.Printf("❌ Session disconnected: %s", client.UserID)
	}
}

// dropLocked closes a client's queue once. Callers hold h.mu.
func (h *Hub) dropLocked(client *Client) bool {
	clients, ok := h.clients[client.UserID]
	if !ok || !clients[client] {
		return false
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.UserID)
	}
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			h.dropLocked(client)
		}
	}
}

// PublishToUser sends an event to every session of a user on any instance
func (h *Hub) PublishToUser(ctx context.Context, userID uuid.UUID, event model.WSEvent) error {
	data, err := json.Marshal(TargetedEvent{TargetUserID: userID, Event: &event})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := h.rdb.Publish(ctx, redisChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// sendToLocalUser delivers an event to the user's sessions on this instance.
// Events that invalidate the session also close the connection afterwards.
func (h *Hub) sendToLocalUser(userID uuid.UUID, event *model.WSEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[userID]
	if !ok {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
			if endsSession(event.Type) {
				h.dropLocked(client)
			}
		default:
			// send buffer full
			h.dropLocked(client)
		}
	}
}

func endsSession(eventType string) bool {
	return eventType == model.WSEventPasswordChanged || eventType == model.WSEventSessionRevoked
}

// ConnectionCount returns how many sessions a user has on this instance
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ========== Redis Pub/Sub for Horizontal Scaling ==========

// TargetedEvent wraps an event with its target user for Redis Pub/Sub
type TargetedEvent struct {
	TargetUserID uuid.UUID      `json:"target_user_id"`
	Event        *model.WSEvent `json:"event"`
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("⚠️  Redis Pub/Sub subscribe failed: %v", err)
		return
	}
	close(h.ready)

	ch := pubsub.Channel()
	log.Println("📡 Redis Pub/Sub subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var targeted TargetedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &targeted); err != nil {
				log.Printf("Error unmarshaling Redis message: %v", err)
				continue
			}
			if targeted.TargetUserID == uuid.Nil || targeted.Event == nil {
				continue
			}

			select {
			case h.deliver <- targeted:
			case <-ctx.Done():
				return
			}
		}
	}
}
