package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rolechat/backend/internal/metrics"
	"github.com/rolechat/backend/internal/middleware"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/internal/services"
	"github.com/rolechat/backend/pkg/utils"
)

// ChatHandler serves room listings, history and message mutations.
// Realtime snapshot delivery lives in the websocket handler; everything
// here answers over plain HTTP.
type ChatHandler struct {
	Chat               *services.ChatService
	MaxAttachmentBytes int64
}

func NewChatHandler(chat *services.ChatService, maxAttachmentBytes int64) *ChatHandler {
	return &ChatHandler{Chat: chat, MaxAttachmentBytes: maxAttachmentBytes}
}

// Rooms lists the caller's private conversations, newest activity first.
func (h *ChatHandler) Rooms(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	summaries, err := h.Chat.Rooms(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing rooms")
	}
	return utils.Success(c, fiber.StatusOK, summaries)
}

// OpenPrivate resolves the deterministic room shared with another user,
// creating nothing; the room materializes on first message.
func (h *ChatHandler) OpenPrivate(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	peerID, err := parseUUID(c.Params("userID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if peerID == user.ID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot open a chat with yourself")
	}

	var peer models.User
	if err := h.Chat.DB.WithContext(c.Context()).First(&peer, "id = ?", peerID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"roomID":    models.PrivateRoomID(user.ID, peerID),
		"peerID":    peer.ID,
		"peerEmail": peer.Email,
	})
}

// History returns the most recent messages of a room in ascending order.
func (h *ChatHandler) History(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	roomID := c.Params("roomID")
	if !h.Chat.CanAccess(roomID, user.ID) {
		return utils.Error(c, fiber.StatusForbidden, "not a member of this room")
	}

	msgs, err := h.Chat.History(c.Context(), roomID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading history")
	}
	return utils.Success(c, fiber.StatusOK, msgs)
}

// Send accepts multipart form data: a "text" field, an optional "file"
// part and an optional "replyTo" message id. Plain JSON bodies with just
// a text field work too.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	input := services.SendInput{RoomID: c.Params("roomID")}

	if form, err := c.MultipartForm(); err == nil && form != nil {
		if values := form.Value["text"]; len(values) > 0 {
			input.Text = values[0]
		}
		if values := form.Value["replyTo"]; len(values) > 0 && values[0] != "" {
			replyID, err := parseUUID(values[0])
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "invalid reply target id")
			}
			input.ReplyToID = &replyID
		}
		if files := form.File["file"]; len(files) > 0 {
			header := files[0]
			if header.Size > h.MaxAttachmentBytes {
				return utils.Error(c, fiber.StatusRequestEntityTooLarge,
					fmt.Sprintf("attachment exceeds %d bytes", h.MaxAttachmentBytes))
			}
			file, err := header.Open()
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "failed reading attachment")
			}
			defer file.Close()

			input.Attachment = &services.AttachmentUpload{
				Reader:      file,
				Size:        header.Size,
				ContentType: header.Header.Get("Content-Type"),
				Filename:    header.Filename,
			}
		}
	} else {
		var body struct {
			Text    string `json:"text"`
			ReplyTo string `json:"replyTo"`
		}
		if err := c.BodyParser(&body); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		}
		input.Text = body.Text
		if body.ReplyTo != "" {
			replyID, err := parseUUID(body.ReplyTo)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "invalid reply target id")
			}
			input.ReplyToID = &replyID
		}
	}

	msg, err := h.Chat.Send(c.Context(), user, input)
	if err != nil {
		return serviceError(c, err)
	}

	metrics.MessagesSent.Inc()
	return utils.Success(c, fiber.StatusCreated, msg)
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

// React toggles the caller's reaction on a message.
func (h *ChatHandler) React(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("messageID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	var req reactRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	msg, err := h.Chat.React(c.Context(), c.Params("roomID"), messageID, user.ID, req.Emoji)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, msg)
}

// Delete removes a message the caller sent.
func (h *ChatHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("messageID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	if err := h.Chat.Delete(c.Context(), c.Params("roomID"), messageID, user.ID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "message deleted"})
}

// MarkRead zeroes the caller's unread counter for a room.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	roomID := c.Params("roomID")
	if !h.Chat.CanAccess(roomID, user.ID) {
		return utils.Error(c, fiber.StatusForbidden, "not a member of this room")
	}

	if err := h.Chat.MarkRead(c.Context(), roomID, user.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed marking room read")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "room marked read"})
}

// Unreads maps private-chat peer ids to the caller's unread counts.
func (h *ChatHandler) Unreads(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	unreads, err := h.Chat.Unreads(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading unread counts")
	}
	return utils.Success(c, fiber.StatusOK, unreads)
}
