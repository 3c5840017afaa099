package realtime

import (
	"encoding/json"
	"sync"

	"github.com/rolechat/backend/internal/metrics"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/pkg/logger"
)

// SnapshotEvent is the wire envelope pushed to every subscriber of a room
// whenever the room's message list changes. Subscribers replace their
// local list with Messages; there is no incremental merge.
type SnapshotEvent struct {
	Type     string           `json:"type"`
	RoomID   string           `json:"roomID"`
	Messages []models.Message `json:"messages"`
}

// Hub fans room snapshots out to live subscribers. Room hubs are created
// lazily and each runs its own loop, so one slow room never blocks
// another.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*roomHub
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*roomHub)}
}

func (h *Hub) room(roomID string) *roomHub {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room != nil {
		return room
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	room = h.rooms[roomID]
	if room != nil {
		return room
	}
	room = newRoomHub(roomID)
	h.rooms[roomID] = room
	go room.run()
	return room
}

// Publish implements services.Publisher: it serializes the authoritative
// snapshot once and broadcasts it to every subscriber of the room.
func (h *Hub) Publish(roomID string, messages []models.Message) {
	event := SnapshotEvent{Type: "snapshot", RoomID: roomID, Messages: messages}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("snapshot_marshal_failed", err, map[string]interface{}{"room_id": roomID})
		return
	}
	h.room(roomID).broadcast <- payload
}

// Subscribe registers a new subscriber on a room. The returned
// Subscription must be cancelled on teardown; Cancel is idempotent.
func (h *Hub) Subscribe(roomID string) *Subscription {
	room := h.room(roomID)
	sub := &subscriber{send: make(chan []byte, 16)}
	room.register <- sub

	subscription := &Subscription{C: sub.send}
	subscription.cancel = func() {
		room.unregister <- sub
	}
	return subscription
}

// Online reports the current number of subscribers for a room.
func (h *Hub) Online(roomID string) int {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.online()
}

// Subscription is one cancellable feed of snapshot payloads. C is closed
// once the subscription is removed from the hub, after which no further
// payloads are delivered.
type Subscription struct {
	C      <-chan []byte
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

type subscriber struct {
	send chan []byte
}

type roomHub struct {
	roomID      string
	subscribers map[*subscriber]bool
	register    chan *subscriber
	unregister  chan *subscriber
	broadcast   chan []byte

	mu    sync.RWMutex
	count int
}

func newRoomHub(roomID string) *roomHub {
	return &roomHub{
		roomID:      roomID,
		subscribers: make(map[*subscriber]bool),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan []byte, 64),
	}
}

func (rh *roomHub) run() {
	for {
		select {
		case sub := <-rh.register:
			rh.subscribers[sub] = true
			rh.setCount(len(rh.subscribers))
			metrics.HubSubscribers.Inc()
		case sub := <-rh.unregister:
			if _, ok := rh.subscribers[sub]; ok {
				delete(rh.subscribers, sub)
				close(sub.send)
				rh.setCount(len(rh.subscribers))
				metrics.HubSubscribers.Dec()
			}
		case payload := <-rh.broadcast:
			metrics.SnapshotsPublished.Inc()
			for sub := range rh.subscribers {
				select {
				case sub.send <- payload:
				default:
					// Slow consumer: drop it rather than stall the room.
					delete(rh.subscribers, sub)
					close(sub.send)
					rh.setCount(len(rh.subscribers))
					metrics.HubSubscribers.Dec()
				}
			}
		}
	}
}

func (rh *roomHub) setCount(n int) {
	rh.mu.Lock()
	rh.count = n
	rh.mu.Unlock()
}

func (rh *roomHub) online() int {
	rh.mu.RLock()
	defer rh.mu.RUnlock()
	return rh.count
}
