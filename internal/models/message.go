package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttachmentKind string

const (
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindFile  AttachmentKind = "file"
)

// Message is one chat message. Sender email and role are denormalized
// snapshots taken at send time so a later role change does not rewrite
// history. Reactions maps sender id to a single emoji.
type Message struct {
	BaseModel
	RoomID      string          `json:"roomID" gorm:"type:varchar(80);not null;index:idx_messages_room_created,priority:1"`
	SenderID    uuid.UUID       `json:"senderID" gorm:"type:uuid;not null;index"`
	SenderEmail string          `json:"senderEmail" gorm:"type:varchar(255);not null"`
	SenderRole  string          `json:"senderRole" gorm:"type:varchar(50);not null;default:'user'"`
	Body        string          `json:"body" gorm:"type:text;not null;default:''"`
	Attachment  *Attachment     `json:"attachment,omitempty" gorm:"embedded;embeddedPrefix:attachment_"`
	ReplyTo     *ReplyRef       `json:"replyTo,omitempty" gorm:"embedded;embeddedPrefix:reply_"`
	Reactions   datatypes.JSONType[map[string]string] `json:"reactions"`
}

func (Message) TableName() string {
	return "messages"
}

// AfterFind drops the zero-valued embedded structs gorm materializes for
// rows stored without an attachment or reply, so they serialize as null.
func (m *Message) AfterFind(tx *gorm.DB) error {
	if m.Attachment != nil && m.Attachment.URL == "" {
		m.Attachment = nil
	}
	if m.ReplyTo != nil && m.ReplyTo.TargetID == uuid.Nil {
		m.ReplyTo = nil
	}
	return nil
}

// Attachment references an uploaded object by its public URL.
type Attachment struct {
	URL      string         `json:"url" gorm:"type:text"`
	Kind     AttachmentKind `json:"kind" gorm:"type:varchar(10)"`
	Filename string         `json:"filename" gorm:"type:varchar(255)"`
}

// ReplyRef is a best-effort snapshot of the replied-to message, kept even
// if that message is later deleted.
type ReplyRef struct {
	TargetID   uuid.UUID `json:"targetID" gorm:"type:uuid"`
	Snippet    string    `json:"snippet" gorm:"type:varchar(255)"`
	SenderName string    `json:"senderName" gorm:"type:varchar(255)"`
}

// ReactionOf returns the acting user's current reaction, if any.
func (m *Message) ReactionOf(userID uuid.UUID) (string, bool) {
	reactions := m.Reactions.Data()
	emoji, ok := reactions[userID.String()]
	return emoji, ok
}
