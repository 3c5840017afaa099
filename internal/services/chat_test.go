package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rolechat/backend/internal/models"
)

// fakeStore records uploads so attachment flows run without MinIO.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	if f.failing {
		return errors.New("storage unavailable")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[objectName] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Delete(_ context.Context, objectName string) error {
	f.mu.Lock()
	delete(f.objects, objectName)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) PublicURL(objectName string) string {
	return "http://storage.test/bucket/" + objectName
}

func (f *fakeStore) ObjectNameFromURL(url string) (string, bool) {
	const prefix = "http://storage.test/bucket/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// recordingPublisher captures every published snapshot.
type recordingPublisher struct {
	mu    sync.Mutex
	rooms []string
	last  map[string][]models.Message
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{last: make(map[string][]models.Message)}
}

func (p *recordingPublisher) Publish(roomID string, messages []models.Message) {
	p.mu.Lock()
	p.rooms = append(p.rooms, roomID)
	p.last[roomID] = messages
	p.mu.Unlock()
}

func (p *recordingPublisher) lastFor(roomID string) []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last[roomID]
}

func TestPrivateRoomIdentity(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	if models.PrivateRoomID(a, b) != models.PrivateRoomID(b, a) {
		t.Fatalf("room id must be order-independent")
	}

	roomID := models.PrivateRoomID(a, b)
	peer, ok := models.PrivateRoomPeer(roomID, a)
	if !ok || peer != b {
		t.Fatalf("expected peer %s, got %s ok=%v", b, peer, ok)
	}
	peer, ok = models.PrivateRoomPeer(roomID, b)
	if !ok || peer != a {
		t.Fatalf("expected peer %s, got %s ok=%v", a, peer, ok)
	}

	if _, ok := models.PrivateRoomPeer(roomID, uuid.New()); ok {
		t.Fatalf("outsider must not resolve a peer")
	}
	if _, ok := models.PrivateRoomPeer("global", a); ok {
		t.Fatalf("the global room has no peer")
	}
}

func TestChatSendAndHistory(t *testing.T) {
	db := setupTestDB(t)
	store := newFakeStore()
	pub := newRecordingPublisher()
	svc := NewChatService(db, store, 5)
	svc.SetPublisher(pub)
	ctx := context.Background()

	alice := createUser(t, db, "chat-alice@test.com", models.RoleUser)
	bob := createUser(t, db, "chat-bob@test.com", models.RoleUser)

	t.Run("send requires text or attachment", func(t *testing.T) {
		_, err := svc.Send(ctx, alice, SendInput{RoomID: models.GlobalRoomID, Text: "   "})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("send rejects rooms the sender is not part of", func(t *testing.T) {
		foreign := models.PrivateRoomID(uuid.New(), uuid.New())
		_, err := svc.Send(ctx, alice, SendInput{RoomID: foreign, Text: "hello"})
		if !errors.Is(err, ErrPermission) {
			t.Fatalf("expected ErrPermission, got %v", err)
		}
	})

	t.Run("history is ascending and bounded", func(t *testing.T) {
		for _, text := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
			if _, err := svc.Send(ctx, alice, SendInput{RoomID: models.GlobalRoomID, Text: text}); err != nil {
				t.Fatalf("Send failed: %v", err)
			}
		}

		msgs, err := svc.History(ctx, models.GlobalRoomID)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(msgs) != 5 {
			t.Fatalf("expected history bounded to 5, got %d", len(msgs))
		}
		if msgs[0].Body != "three" || msgs[4].Body != "seven" {
			t.Fatalf("expected oldest-first window, got %q..%q", msgs[0].Body, msgs[4].Body)
		}

		snapshot := pub.lastFor(models.GlobalRoomID)
		if len(snapshot) != 5 || snapshot[4].Body != "seven" {
			t.Fatalf("expected snapshot to mirror history")
		}
	})

	t.Run("attachment upload failure fails the send", func(t *testing.T) {
		store.failing = true
		_, err := svc.Send(ctx, alice, SendInput{
			RoomID: models.GlobalRoomID,
			Attachment: &AttachmentUpload{
				Reader:      strings.NewReader("bytes"),
				Size:        5,
				ContentType: "application/pdf",
				Filename:    "doc.pdf",
			},
		})
		store.failing = false
		if !errors.Is(err, ErrUpload) {
			t.Fatalf("expected ErrUpload, got %v", err)
		}

		var count int64
		if err := db.Model(&models.Message{}).Where("attachment_url <> ''").Count(&count).Error; err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected no message persisted after failed upload")
		}
	})

	t.Run("attachment-only send uses the preview placeholder", func(t *testing.T) {
		roomID := models.PrivateRoomID(alice.ID, bob.ID)
		msg, err := svc.Send(ctx, alice, SendInput{
			RoomID: roomID,
			Attachment: &AttachmentUpload{
				Reader:      strings.NewReader("png"),
				Size:        3,
				ContentType: "image/png",
				Filename:    "pic.PNG",
			},
		})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if msg.Attachment == nil || msg.Attachment.Kind != models.AttachmentKindImage {
			t.Fatalf("expected image attachment, got %+v", msg.Attachment)
		}
		if !strings.HasSuffix(msg.Attachment.URL, ".png") {
			t.Fatalf("expected lowercased extension, got %q", msg.Attachment.URL)
		}

		var room models.Room
		if err := db.First(&room, "id = ?", roomID).Error; err != nil {
			t.Fatalf("room not created: %v", err)
		}
		if room.LastMessagePreview != models.AttachmentPreview {
			t.Fatalf("expected %q preview, got %q", models.AttachmentPreview, room.LastMessagePreview)
		}
	})

	t.Run("delete removes the attachment object", func(t *testing.T) {
		before := store.count()
		msg, err := svc.Send(ctx, alice, SendInput{
			RoomID: models.GlobalRoomID,
			Attachment: &AttachmentUpload{
				Reader:      strings.NewReader("zip"),
				Size:        3,
				ContentType: "application/zip",
				Filename:    "a.zip",
			},
		})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if store.count() != before+1 {
			t.Fatalf("expected object uploaded")
		}

		if err := svc.Delete(ctx, models.GlobalRoomID, msg.ID, alice.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if store.count() != before {
			t.Fatalf("expected object removed with the message")
		}
	})

	t.Run("delete is sender-only", func(t *testing.T) {
		msg, err := svc.Send(ctx, alice, SendInput{RoomID: models.GlobalRoomID, Text: "mine"})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if err := svc.Delete(ctx, models.GlobalRoomID, msg.ID, bob.ID); !errors.Is(err, ErrPermission) {
			t.Fatalf("expected ErrPermission, got %v", err)
		}
	})

	t.Run("text-only messages load with a null attachment", func(t *testing.T) {
		carol := createUser(t, db, "chat-carol@test.com", models.RoleUser)
		roomID := models.PrivateRoomID(alice.ID, carol.ID)
		if _, err := svc.Send(ctx, alice, SendInput{RoomID: roomID, Text: "plain"}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}

		msgs, err := svc.History(ctx, roomID)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}
		if msgs[0].Attachment != nil {
			t.Fatalf("expected nil attachment on loaded text message, got %+v", msgs[0].Attachment)
		}
		if msgs[0].ReplyTo != nil {
			t.Fatalf("expected nil reply ref on loaded text message, got %+v", msgs[0].ReplyTo)
		}

		payload, err := json.Marshal(msgs[0])
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if strings.Contains(string(payload), `"attachment"`) {
			t.Fatalf("expected attachment omitted from JSON, got %s", payload)
		}
	})

	t.Run("reply snippet truncates on a rune boundary", func(t *testing.T) {
		roomID := models.PrivateRoomID(alice.ID, bob.ID)
		body := strings.Repeat("a", 79) + "日本語"
		target, err := svc.Send(ctx, alice, SendInput{RoomID: roomID, Text: body})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}

		reply, err := svc.Send(ctx, bob, SendInput{RoomID: roomID, Text: "ok", ReplyToID: &target.ID})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if reply.ReplyTo == nil {
			t.Fatalf("expected reply ref to be set")
		}
		if !utf8.ValidString(reply.ReplyTo.Snippet) {
			t.Fatalf("expected valid UTF-8 snippet, got %q", reply.ReplyTo.Snippet)
		}
		if reply.ReplyTo.Snippet != strings.Repeat("a", 79) {
			t.Fatalf("expected snippet cut before the multibyte rune, got %q", reply.ReplyTo.Snippet)
		}
	})
}

func TestChatUnreadLifecycle(t *testing.T) {
	db := setupTestDB(t)
	svc := NewChatService(db, newFakeStore(), 100)
	ctx := context.Background()

	alice := createUser(t, db, "unread-alice@test.com", models.RoleUser)
	bob := createUser(t, db, "unread-bob@test.com", models.RoleUser)
	roomID := models.PrivateRoomID(alice.ID, bob.ID)

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(ctx, alice, SendInput{RoomID: roomID, Text: "ping"}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	unreads, err := svc.Unreads(ctx, bob.ID)
	if err != nil {
		t.Fatalf("Unreads failed: %v", err)
	}
	if unreads[alice.ID.String()] != 3 {
		t.Fatalf("expected 3 unread, got %v", unreads)
	}

	if unreads, err = svc.Unreads(ctx, alice.ID); err != nil || len(unreads) != 0 {
		t.Fatalf("sender must have no unread, got %v err=%v", unreads, err)
	}

	if err := svc.MarkRead(ctx, roomID, bob.ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if unreads, err = svc.Unreads(ctx, bob.ID); err != nil || len(unreads) != 0 {
		t.Fatalf("expected cleared unread, got %v err=%v", unreads, err)
	}

	// Idempotent, including on rooms without a membership row.
	if err := svc.MarkRead(ctx, roomID, bob.ID); err != nil {
		t.Fatalf("repeat MarkRead failed: %v", err)
	}
	if err := svc.MarkRead(ctx, models.GlobalRoomID, bob.ID); err != nil {
		t.Fatalf("MarkRead on global failed: %v", err)
	}

	summaries, err := svc.Rooms(ctx, bob.ID)
	if err != nil {
		t.Fatalf("Rooms failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one room, got %d", len(summaries))
	}
	if summaries[0].PeerEmail != "unread-alice@test.com" || summaries[0].UnreadCount != 0 {
		t.Fatalf("unexpected summary %+v", summaries[0])
	}
}

func TestChatReactions(t *testing.T) {
	db := setupTestDB(t)
	svc := NewChatService(db, newFakeStore(), 100)
	ctx := context.Background()

	alice := createUser(t, db, "react-alice@test.com", models.RoleUser)
	bob := createUser(t, db, "react-bob@test.com", models.RoleUser)

	msg, err := svc.Send(ctx, alice, SendInput{RoomID: models.GlobalRoomID, Text: "react"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	t.Run("toggle and replace", func(t *testing.T) {
		updated, err := svc.React(ctx, models.GlobalRoomID, msg.ID, bob.ID, "👍")
		if err != nil {
			t.Fatalf("React failed: %v", err)
		}
		if emoji, ok := updated.ReactionOf(bob.ID); !ok || emoji != "👍" {
			t.Fatalf("expected 👍, got %q ok=%v", emoji, ok)
		}

		updated, err = svc.React(ctx, models.GlobalRoomID, msg.ID, bob.ID, "🎉")
		if err != nil {
			t.Fatalf("React failed: %v", err)
		}
		if emoji, _ := updated.ReactionOf(bob.ID); emoji != "🎉" {
			t.Fatalf("expected replacement, got %q", emoji)
		}

		updated, err = svc.React(ctx, models.GlobalRoomID, msg.ID, bob.ID, "🎉")
		if err != nil {
			t.Fatalf("React failed: %v", err)
		}
		if _, ok := updated.ReactionOf(bob.ID); ok {
			t.Fatalf("expected toggle-off")
		}
	})

	t.Run("reactions from different users coexist", func(t *testing.T) {
		if _, err := svc.React(ctx, models.GlobalRoomID, msg.ID, alice.ID, "❤️"); err != nil {
			t.Fatalf("React failed: %v", err)
		}
		updated, err := svc.React(ctx, models.GlobalRoomID, msg.ID, bob.ID, "👍")
		if err != nil {
			t.Fatalf("React failed: %v", err)
		}
		reactions := updated.Reactions.Data()
		if len(reactions) != 2 {
			t.Fatalf("expected 2 reactions, got %v", reactions)
		}
	})

	t.Run("guards", func(t *testing.T) {
		if _, err := svc.React(ctx, models.GlobalRoomID, msg.ID, bob.ID, "  "); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if _, err := svc.React(ctx, models.GlobalRoomID, uuid.New(), bob.ID, "👍"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		foreign := models.PrivateRoomID(uuid.New(), uuid.New())
		if _, err := svc.React(ctx, foreign, msg.ID, bob.ID, "👍"); !errors.Is(err, ErrPermission) {
			t.Fatalf("expected ErrPermission, got %v", err)
		}
	})
}
