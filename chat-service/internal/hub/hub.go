package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/config"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/pkg/log"
)

// Hub is the connection session registry: it owns every local client and
// the room memberships they hold.
type Hub struct {
	clients    map[string]*Client                    // clientID -> client
	rooms      map[domain.RoomKey]map[string]*Client // room -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	done       chan struct{}
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// RoomMessage is a frame queued for every member of a room.
type RoomMessage struct {
	Room    domain.RoomKey
	Message []byte
	Exclude string // Client ID to exclude
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[domain.RoomKey]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every remaining client.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *RoomMessage) {
	var slow []*Client

	h.mu.RLock()
	for clientID, client := range h.rooms[msg.Room] {
		if clientID == msg.Exclude {
			continue
		}
		if !client.trySend(msg.Message) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	for _, client := range slow {
		h.removeLocked(client)
	}
	h.mu.Unlock()

	l := log.L()
	for _, client := range slow {
		l.Warn().Str(log.FieldConnID, client.ID).Str(log.FieldRoom, msg.Room.String()).Msg("send buffer full, dropping client")
	}
}

// removeLocked drops client from every room and closes its send buffer.
func (h *Hub) removeLocked(client *Client) {
	for key, members := range h.rooms {
		if _, ok := members[client.ID]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, key)
			}
		}
	}
	delete(h.clients, client.ID)
	client.close()
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join adds client to a room. Joining twice is a no-op.
func (h *Hub) Join(client *Client, key domain.RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[string]*Client)
	}
	h.rooms[key][client.ID] = client
	l := log.L()
	l.Info().Str(log.FieldConnID, client.ID).Str(log.FieldRoom, key.String()).Msg("client joined room")
}

// Leave removes client from a room.
func (h *Hub) Leave(client *Client, key domain.RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[key]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, key)
		}
	}
	l := log.L()
	l.Info().Str(log.FieldConnID, client.ID).Str(log.FieldRoom, key.String()).Msg("client left room")
}

// IsMember reports whether client is joined to key.
func (h *Hub) IsMember(client *Client, key domain.RoomKey) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[key][client.ID]
	return ok
}

// Broadcast queues message for every member of key except exclude.
func (h *Hub) Broadcast(key domain.RoomKey, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.BroadcastRaw(key, data, exclude)
	return nil
}

// BroadcastRaw queues an encoded frame for every member of key except exclude.
func (h *Hub) BroadcastRaw(key domain.RoomKey, data []byte, exclude string) {
	select {
	case h.broadcast <- &RoomMessage{Room: key, Message: data, Exclude: exclude}:
	case <-h.done:
	}
}

// RoomSize returns the number of local members of key.
func (h *Hub) RoomSize(key domain.RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
