package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const wsTicketTTL = 60 * time.Second

func wsTicketKey(ticket string) string {
	return "ws_ticket:" + ticket
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Signup handles POST /api/auth/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Signup(c.UserContext(), service.SignupInput{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	resp, err := s.issueSession(user)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	resp, err := s.issueSession(user)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(resp)
}

func (s *Server) issueSession(user *models.User) (*authResponse, error) {
	token, claims, err := middleware.IssueToken(s.config.JWTSecret, user.ID, user.Username, time.Now())
	if err != nil {
		return nil, err
	}
	return &authResponse{Token: token, ExpiresAt: claims.ExpiresAt, User: user}, nil
}

// Logout handles POST /api/auth/logout by revoking the presented token until
// it would have expired anyway.
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*middleware.Claims)
	if ok && claims.JTI != "" && s.redis != nil {
		ttl := time.Until(claims.ExpiresAt)
		if ttl > 0 {
			if err := s.redis.Set(c.UserContext(), middleware.RevocationKey(claims.JTI), "1", ttl).Err(); err != nil {
				return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
			}
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMe handles GET /api/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	user, err := s.userService.GetIdentity(c.UserContext(), viewerID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"user":          user,
		"feature_flags": s.featureFlags.Snapshot(user.ID),
	})
}

// IssueWSTicket handles POST /api/ws/ticket. The ticket is single-use and
// short-lived; the live feed accepts it as ?ticket= on the upgrade request.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewValidationError("Live feed is unavailable"))
	}
	ticket := uuid.NewString()
	userID := viewerID(c)
	if err := s.redis.Set(c.UserContext(), wsTicketKey(ticket), strconv.FormatUint(uint64(userID), 10), wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// consumeWSTicket redeems a ticket, deleting it so it cannot be replayed.
func (s *Server) consumeWSTicket(ctx context.Context, ticket string) (uint, bool) {
	if s.redis == nil || ticket == "" {
		return 0, false
	}
	raw, err := s.redis.GetDel(ctx, wsTicketKey(ticket)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.Logger.WarnContext(ctx, "ws ticket lookup failed", slog.String("error", err.Error()))
		}
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// verifyToken parses a bearer token and rejects revoked ones.
func (s *Server) verifyToken(ctx context.Context, token string) (*middleware.Claims, error) {
	claims, err := middleware.ParseToken(s.config.JWTSecret, token)
	if err != nil {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}
	if claims.JTI != "" && s.redis != nil {
		revoked, err := s.redis.Exists(ctx, middleware.RevocationKey(claims.JTI)).Result()
		if err == nil && revoked > 0 {
			return nil, models.NewUnauthorizedError("Token has been revoked")
		}
	}
	return claims, nil
}

func setViewer(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	c.SetUserContext(context.WithValue(c.UserContext(), middleware.UserIDKey, userID))
}

// viewerID is the authenticated user, or 0 for anonymous readers.
func viewerID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws/") && c.Path() != "/api/ws/ticket"

		if ticket := c.Query("ticket"); ticket != "" && isWSPath {
			userID, ok := s.consumeWSTicket(c.UserContext(), ticket)
			if !ok {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			setViewer(c, userID)
			return c.Next()
		}

		token := middleware.BearerToken(c)
		if token == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}
		claims, err := s.verifyToken(c.UserContext(), token)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}

		c.Locals("claims", claims)
		setViewer(c, claims.UserID)
		return c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.userService.GetIdentity(c.UserContext(), viewerID(c))
		if err != nil {
			if models.StatusFor(err) == fiber.StatusNotFound {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Account no longer exists"))
			}
			return models.RespondWithAppError(c, err)
		}
		if !user.IsAdmin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// optionalIdentity resolves the viewer from a bearer token when one is
// present. Invalid tokens are ignored so public pages keep working.
func (s *Server) optionalIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := middleware.BearerToken(c)
		if token == "" {
			return c.Next()
		}
		if claims, err := s.verifyToken(c.UserContext(), token); err == nil {
			c.Locals("claims", claims)
			c.Locals("userID", claims.UserID)
		}
		return c.Next()
	}
}
