package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rolechat/backend/internal/middleware"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/internal/realtime"
	"github.com/rolechat/backend/internal/services"
	"github.com/rolechat/backend/pkg/logger"
	"github.com/rolechat/backend/pkg/utils"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WSHandler upgrades authenticated clients to a websocket and streams
// room snapshots at them. Clients never send messages over the socket;
// all mutations go through HTTP and come back as snapshots.
type WSHandler struct {
	Chat *services.ChatService
	Hub  *realtime.Hub
}

func NewWSHandler(chat *services.ChatService, hub *realtime.Hub) *WSHandler {
	return &WSHandler{Chat: chat, Hub: hub}
}

// Upgrade gates the route: it verifies the upgrade request and the
// caller's room access while fiber context is still available.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return utils.Error(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
	}

	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	roomID := c.Params("roomID")
	if !h.Chat.CanAccess(roomID, user.ID) {
		return utils.Error(c, fiber.StatusForbidden, "not a member of this room")
	}

	c.Locals("roomID", roomID)
	return c.Next()
}

// Serve runs the subscriber loop for one connection.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		roomID, _ := conn.Locals("roomID").(string)
		user, _ := conn.Locals("currentUser").(*models.User)
		if roomID == "" || user == nil {
			conn.Close()
			return
		}

		sub := h.Hub.Subscribe(roomID)
		defer sub.Cancel()

		// Initial snapshot so the client renders without waiting for the
		// next mutation.
		if err := h.sendSnapshot(conn, roomID); err != nil {
			return
		}

		logger.InfoWithUser(user.ID.String(), "ws_subscribed", map[string]interface{}{
			"room_id": roomID,
			"online":  h.Hub.Online(roomID),
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()

		for {
			select {
			case payload, ok := <-sub.C:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}

func (h *WSHandler) sendSnapshot(conn *websocket.Conn, roomID string) error {
	msgs, err := h.Chat.History(context.Background(), roomID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(realtime.SnapshotEvent{
		Type:     "snapshot",
		RoomID:   roomID,
		Messages: msgs,
	})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
