package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GlobalRoomID is the identifier of the shared room every user can read.
const GlobalRoomID = "global"

// AttachmentPreview is the last-message preview shown for attachment-only
// messages.
const AttachmentPreview = "[attachment]"

// Room is a message stream. The global room pre-exists; a private room is
// created implicitly on the first message between a pair of users and its
// ID is derived from the pair, so either side computes it without a lookup.
type Room struct {
	ID                 string       `json:"id" gorm:"type:varchar(80);primaryKey"`
	IsPrivate          bool         `json:"isPrivate" gorm:"not null;default:false"`
	LastMessagePreview string       `json:"lastMessagePreview" gorm:"type:varchar(255);not null;default:''"`
	LastMessageAt      *time.Time   `json:"lastMessageAt,omitempty"`
	CreatedAt          time.Time    `json:"createdAt" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updatedAt" gorm:"not null"`
	Members            []RoomMember `json:"members,omitempty" gorm:"foreignKey:RoomID"`
}

func (Room) TableName() string {
	return "rooms"
}

// RoomMember tracks one participant's membership and unread counter.
type RoomMember struct {
	RoomID      string     `json:"roomID" gorm:"type:varchar(80);primaryKey"`
	UserID      uuid.UUID  `json:"userID" gorm:"type:uuid;primaryKey"`
	UnreadCount int        `json:"unreadCount" gorm:"not null;default:0"`
	LastReadAt  *time.Time `json:"lastReadAt,omitempty"`
}

func (RoomMember) TableName() string {
	return "room_members"
}

// PrivateRoomID derives the canonical id for the pairwise room between two
// users. The pair is sorted first, so the result is order-independent.
func PrivateRoomID(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// PrivateRoomPeer returns the other participant encoded in a private room
// id, or false when the id is not a private room containing userID.
func PrivateRoomPeer(roomID string, userID uuid.UUID) (uuid.UUID, bool) {
	parts := strings.Split(roomID, "_")
	if len(parts) != 2 {
		return uuid.Nil, false
	}
	first, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	second, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	switch userID {
	case first:
		return second, true
	case second:
		return first, true
	default:
		return uuid.Nil, false
	}
}
