package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/internal/storage"
	"github.com/rolechat/backend/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const replySnippetLimit = 80

// Publisher receives the authoritative message snapshot for a room after
// every mutation. The realtime hub implements it; a nil publisher disables
// broadcasting.
type Publisher interface {
	Publish(roomID string, messages []models.Message)
}

// AttachmentUpload is a pending attachment: the bytes are uploaded before
// the message record is persisted, and an upload failure fails the whole
// send.
type AttachmentUpload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	Filename    string
}

// RoomSummary is one sidebar entry: a private room seen from one
// participant's side.
type RoomSummary struct {
	RoomID             string     `json:"roomID"`
	PeerID             uuid.UUID  `json:"peerID"`
	PeerEmail          string     `json:"peerEmail"`
	UnreadCount        int        `json:"unreadCount"`
	LastMessagePreview string     `json:"lastMessagePreview"`
	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty"`
}

// ChatService implements the message lifecycle for the global room and the
// deterministic pairwise private rooms.
type ChatService struct {
	DB           *gorm.DB
	Store        storage.ObjectStore
	HistoryLimit int

	publisher Publisher
}

func NewChatService(db *gorm.DB, store storage.ObjectStore, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &ChatService{DB: db, Store: store, HistoryLimit: historyLimit}
}

// SetPublisher attaches the snapshot broadcaster. Done after construction
// because the hub needs the service for initial snapshots.
func (s *ChatService) SetPublisher(p Publisher) {
	s.publisher = p
}

// CanAccess reports whether userID may read or write roomID: everyone may
// use the global room, private rooms only their two participants.
func (s *ChatService) CanAccess(roomID string, userID uuid.UUID) bool {
	if roomID == models.GlobalRoomID {
		return true
	}
	_, ok := models.PrivateRoomPeer(roomID, userID)
	return ok
}

// History returns the most recent messages of a room in ascending
// creation order, bounded by HistoryLimit.
func (s *ChatService) History(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Limit(s.HistoryLimit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

type SendInput struct {
	RoomID     string
	Text       string
	Attachment *AttachmentUpload
	ReplyToID  *uuid.UUID
}

func (s *ChatService) Send(ctx context.Context, sender *models.User, input SendInput) (*models.Message, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" && input.Attachment == nil {
		return nil, fmt.Errorf("%w: message needs text or an attachment", ErrValidation)
	}
	if !s.CanAccess(input.RoomID, sender.ID) {
		return nil, fmt.Errorf("%w: not a member of room %s", ErrPermission, input.RoomID)
	}

	var attachment *models.Attachment
	if input.Attachment != nil {
		uploaded, err := s.uploadAttachment(ctx, input.Attachment)
		if err != nil {
			return nil, err
		}
		attachment = uploaded
	}

	var reply *models.ReplyRef
	if input.ReplyToID != nil {
		snapshot, err := s.replySnapshot(ctx, input.RoomID, *input.ReplyToID)
		if err != nil {
			return nil, err
		}
		reply = snapshot
	}

	msg := models.Message{
		RoomID:      input.RoomID,
		SenderID:    sender.ID,
		SenderEmail: sender.Email,
		SenderRole:  sender.Role,
		Body:        text,
		Attachment:  attachment,
		ReplyTo:     reply,
		Reactions:   datatypes.NewJSONType(map[string]string{}),
	}

	preview := text
	if preview == "" {
		preview = models.AttachmentPreview
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return s.touchRoom(tx, input.RoomID, sender.ID, preview, msg.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	s.publishSnapshot(ctx, input.RoomID)
	return &msg, nil
}

func (s *ChatService) uploadAttachment(ctx context.Context, upload *AttachmentUpload) (*models.Attachment, error) {
	objectName := "attachments/" + uuid.NewString() + strings.ToLower(path.Ext(upload.Filename))
	if err := s.Store.Upload(ctx, objectName, upload.Reader, upload.Size, upload.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	kind := models.AttachmentKindFile
	if strings.HasPrefix(upload.ContentType, "image/") {
		kind = models.AttachmentKindImage
	}

	return &models.Attachment{
		URL:      s.Store.PublicURL(objectName),
		Kind:     kind,
		Filename: upload.Filename,
	}, nil
}

func (s *ChatService) replySnapshot(ctx context.Context, roomID string, targetID uuid.UUID) (*models.ReplyRef, error) {
	var target models.Message
	err := s.DB.WithContext(ctx).
		First(&target, "id = ? AND room_id = ?", targetID, roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reply target %s", ErrNotFound, targetID)
		}
		return nil, err
	}

	snippet := target.Body
	if snippet == "" && target.Attachment != nil {
		snippet = models.AttachmentPreview
	}
	if len(snippet) > replySnippetLimit {
		cut := replySnippetLimit
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}

	sender := models.User{Email: target.SenderEmail}
	return &models.ReplyRef{
		TargetID:   target.ID,
		Snippet:    snippet,
		SenderName: sender.DisplayName(),
	}, nil
}

// touchRoom upserts the room row, refreshes the last-message preview and,
// for private rooms, increments the other participant's unread counter by
// exactly one using an atomic column update.
func (s *ChatService) touchRoom(tx *gorm.DB, roomID string, senderID uuid.UUID, preview string, at time.Time) error {
	peerID, isPrivate := models.PrivateRoomPeer(roomID, senderID)

	room := models.Room{ID: roomID, IsPrivate: isPrivate}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&room).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{
		"last_message_preview": preview,
		"last_message_at":      at,
	}
	if err := tx.Model(&models.Room{}).Where("id = ?", roomID).Updates(updates).Error; err != nil {
		return err
	}
	if !isPrivate {
		return nil
	}

	for _, memberID := range []uuid.UUID{senderID, peerID} {
		member := models.RoomMember{RoomID: roomID, UserID: memberID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
			return err
		}
	}

	return tx.Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, peerID).
		Update("unread_count", gorm.Expr("unread_count + ?", 1)).Error
}

// React toggles the acting user's reaction on a message: the same emoji
// removes it, a different emoji replaces it. The read-modify-write runs
// against current server state inside a transaction (row-locked on
// postgres) so concurrent reactions do not lose updates.
func (s *ChatService) React(ctx context.Context, roomID string, messageID, actorID uuid.UUID, emoji string) (*models.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji cannot be empty", ErrValidation)
	}
	if !s.CanAccess(roomID, actorID) {
		return nil, fmt.Errorf("%w: not a member of room %s", ErrPermission, roomID)
	}

	var msg models.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("id = ? AND room_id = ?", messageID, roomID)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.First(&msg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
			}
			return err
		}

		reactions := msg.Reactions.Data()
		if reactions == nil {
			reactions = map[string]string{}
		}
		key := actorID.String()
		if reactions[key] == emoji {
			delete(reactions, key)
		} else {
			reactions[key] = emoji
		}

		msg.Reactions = datatypes.NewJSONType(reactions)
		return tx.Model(&models.Message{}).
			Where("id = ?", messageID).
			Update("reactions", msg.Reactions).Error
	})
	if err != nil {
		return nil, err
	}

	s.publishSnapshot(ctx, roomID)
	return &msg, nil
}

// Delete removes a message; only its sender may do so. Attachment objects
// are removed best-effort, the authoritative removal propagates through
// the next snapshot.
func (s *ChatService) Delete(ctx context.Context, roomID string, messageID, callerID uuid.UUID) error {
	var msg models.Message
	err := s.DB.WithContext(ctx).
		First(&msg, "id = ? AND room_id = ?", messageID, roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
		}
		return err
	}
	if msg.SenderID != callerID {
		return fmt.Errorf("%w: only the sender can delete a message", ErrPermission)
	}

	if err := s.DB.WithContext(ctx).Delete(&models.Message{}, "id = ?", messageID).Error; err != nil {
		return err
	}

	if msg.Attachment != nil {
		if remover, ok := s.Store.(interface {
			ObjectNameFromURL(url string) (string, bool)
		}); ok {
			if objectName, found := remover.ObjectNameFromURL(msg.Attachment.URL); found {
				if err := s.Store.Delete(ctx, objectName); err != nil {
					logger.Warn("attachment_cleanup_failed", map[string]interface{}{
						"message_id": messageID.String(),
						"error":      err.Error(),
					})
				}
			}
		}
	}

	s.publishSnapshot(ctx, roomID)
	return nil
}

// MarkRead zeroes the caller's unread counter for a room. Calling it on a
// room with no membership record is a no-op, and repeated calls are
// idempotent.
func (s *ChatService) MarkRead(ctx context.Context, roomID string, userID uuid.UUID) error {
	now := time.Now()
	return s.DB.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(map[string]interface{}{
			"unread_count": 0,
			"last_read_at": now,
		}).Error
}

// Rooms lists the caller's private rooms for the sidebar, newest activity
// first.
func (s *ChatService) Rooms(ctx context.Context, userID uuid.UUID) ([]RoomSummary, error) {
	var rooms []models.Room
	err := s.DB.WithContext(ctx).
		Model(&models.Room{}).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ? AND rooms.is_private", userID).
		Order("rooms.last_message_at DESC NULLS LAST").
		Preload("Members").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	peerIDs := make([]uuid.UUID, 0, len(rooms))
	for _, room := range rooms {
		peerID, ok := models.PrivateRoomPeer(room.ID, userID)
		if !ok {
			continue
		}
		peerIDs = append(peerIDs, peerID)

		summary := RoomSummary{
			RoomID:             room.ID,
			PeerID:             peerID,
			LastMessagePreview: room.LastMessagePreview,
			LastMessageAt:      room.LastMessageAt,
		}
		for _, member := range room.Members {
			if member.UserID == userID {
				summary.UnreadCount = member.UnreadCount
			}
		}
		summaries = append(summaries, summary)
	}

	if len(peerIDs) > 0 {
		var peers []models.User
		if err := s.DB.WithContext(ctx).Find(&peers, "id IN ?", peerIDs).Error; err != nil {
			return nil, err
		}
		emails := make(map[uuid.UUID]string, len(peers))
		for _, peer := range peers {
			emails[peer.ID] = peer.Email
		}
		for i := range summaries {
			summaries[i].PeerEmail = emails[summaries[i].PeerID]
		}
	}

	return summaries, nil
}

// Unreads maps each private-chat peer to the caller's unread count for
// that room, feeding the sidebar badges.
func (s *ChatService) Unreads(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	var members []models.RoomMember
	err := s.DB.WithContext(ctx).
		Find(&members, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}

	unreads := make(map[string]int, len(members))
	for _, member := range members {
		peerID, ok := models.PrivateRoomPeer(member.RoomID, userID)
		if !ok {
			continue
		}
		if member.UnreadCount > 0 {
			unreads[peerID.String()] = member.UnreadCount
		}
	}
	return unreads, nil
}

func (s *ChatService) publishSnapshot(ctx context.Context, roomID string) {
	if s.publisher == nil {
		return
	}
	msgs, err := s.History(ctx, roomID)
	if err != nil {
		logger.Error("snapshot_load_failed", err, map[string]interface{}{"room_id": roomID})
		return
	}
	s.publisher.Publish(roomID, msgs)
}
