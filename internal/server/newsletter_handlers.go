package server

import (
	"tribune/internal/models"

	"github.com/gofiber/fiber/v2"
)

type emailRequest struct {
	Email string `json:"email"`
}

// Subscribe handles POST /api/newsletter/subscribe
func (s *Server) Subscribe(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	sub, err := s.subscriptionService.Subscribe(c.UserContext(), req.Email)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"email":      sub.Email,
		"subscribed": true,
	})
}

// Unsubscribe handles POST /api/newsletter/unsubscribe. Unknown addresses
// succeed so the endpoint does not reveal who is subscribed.
func (s *Server) Unsubscribe(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if err := s.subscriptionService.Unsubscribe(c.UserContext(), req.Email); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"subscribed": false})
}

// SubscriptionStatus handles GET /api/newsletter/status?email=
func (s *Server) SubscriptionStatus(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("email is required"))
	}
	ok, err := s.subscriptionService.IsSubscribed(c.UserContext(), email)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"subscribed": ok})
}

// GetSubscribers handles GET /api/admin/subscribers
func (s *Server) GetSubscribers(c *fiber.Ctx) error {
	subs, err := s.subscriptionService.ListActive(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"subscribers": page(subs, parsePagination(c, 50)),
		"total":       len(subs),
	})
}
