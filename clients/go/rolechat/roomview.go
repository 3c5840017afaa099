package rolechat

import (
	"sort"
	"sync"
	"time"
)

// DeliveryState tracks a locally appended message until the server
// snapshot confirms it.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

// Entry is one message in the merged room view. Confirmed entries come
// from server snapshots; pending and failed entries exist only locally.
type Entry struct {
	Message Message
	State   DeliveryState
	LocalID int
}

// RoomView merges the server's snapshot stream with optimistic local
// sends for one room. Snapshots replace the confirmed list wholesale; a
// pending entry is resolved when a snapshot contains the caller's message
// with the same body sent at or after the local append.
type RoomView struct {
	roomID string
	selfID string

	mu        sync.Mutex
	confirmed []Message
	pending   []Entry
	nextLocal int
}

func NewRoomView(roomID, selfID string) *RoomView {
	return &RoomView{roomID: roomID, selfID: selfID}
}

// AppendPending records an optimistic local send and returns its local id
// for later resolution.
func (v *RoomView) AppendPending(body string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextLocal++
	v.pending = append(v.pending, Entry{
		Message: Message{
			RoomID:    v.roomID,
			SenderID:  v.selfID,
			Body:      body,
			CreatedAt: time.Now(),
		},
		State:   StatePending,
		LocalID: v.nextLocal,
	})
	return v.nextLocal
}

// MarkFailed flags a pending entry after its send request failed. The
// entry stays visible so the user can retry.
func (v *RoomView) MarkFailed(localID int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.pending {
		if v.pending[i].LocalID == localID {
			v.pending[i].State = StateFailed
			return
		}
	}
}

// Retry puts a failed entry back into the pending state and refreshes its
// local timestamp.
func (v *RoomView) Retry(localID int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.pending {
		if v.pending[i].LocalID == localID && v.pending[i].State == StateFailed {
			v.pending[i].State = StatePending
			v.pending[i].Message.CreatedAt = time.Now()
			return
		}
	}
}

// clockSkew absorbs the difference between the local clock at append time
// and the server clock stamped on the persisted message.
const clockSkew = 5 * time.Second

// ApplySnapshot replaces the confirmed message list with the server's
// authoritative one and drops every pending entry the snapshot confirms.
func (v *RoomView) ApplySnapshot(messages []Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.confirmed = messages

	if len(v.pending) == 0 {
		return
	}

	claimed := make(map[string]bool)
	remaining := v.pending[:0]
	for _, entry := range v.pending {
		if entry.State == StateFailed || !v.confirms(messages, entry, claimed) {
			remaining = append(remaining, entry)
		}
	}
	v.pending = remaining
}

func (v *RoomView) confirms(messages []Message, entry Entry, claimed map[string]bool) bool {
	for _, msg := range messages {
		if claimed[msg.ID] {
			continue
		}
		if msg.SenderID != v.selfID || msg.Body != entry.Message.Body {
			continue
		}
		if msg.CreatedAt.Before(entry.Message.CreatedAt.Add(-clockSkew)) {
			continue
		}
		claimed[msg.ID] = true
		return true
	}
	return false
}

// Messages returns the merged view: confirmed messages in server order
// followed by local pending and failed entries, oldest first.
func (v *RoomView) Messages() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	merged := make([]Entry, 0, len(v.confirmed)+len(v.pending))
	for _, msg := range v.confirmed {
		merged = append(merged, Entry{Message: msg, State: StateConfirmed})
	}

	local := append([]Entry(nil), v.pending...)
	sort.SliceStable(local, func(i, j int) bool {
		return local[i].LocalID < local[j].LocalID
	})
	merged = append(merged, local...)
	return merged
}

// PendingCount reports how many local entries still await confirmation.
func (v *RoomView) PendingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	count := 0
	for _, entry := range v.pending {
		if entry.State == StatePending {
			count++
		}
	}
	return count
}
