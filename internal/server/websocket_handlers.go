package server

import (
	"errors"

	"tribune/internal/featureflags"
	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FeedWebSocket serves GET /api/ws/feed. Clients receive every post event as
// JSON; they never send anything but control frames.
func (s *Server) FeedWebSocket() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(uint)

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			msg := `{"error":"unavailable"}`
			if errors.Is(err, notifications.ErrUserLimit) || errors.Is(err, notifications.ErrServerFull) {
				msg = `{"error":"too many connections"}`
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if !s.featureFlags.Enabled(featureflags.LiveFeed, viewerID(c)) {
			middleware.Logger.InfoContext(c.UserContext(), "live feed disabled for user")
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Live feed is not enabled"))
		}
		return upgrade(c)
	}
}
