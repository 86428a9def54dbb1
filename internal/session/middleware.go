package session

import (
	"github.com/gofiber/fiber/v2"
)

// Header and cookie carrying the session id.
const (
	HeaderName = "X-Session-ID"
	CookieName = "tribune_sid"
)

// Locals keys set by Middleware.
const (
	LocalsSession   = "session"
	LocalsSessionID = "sessionID"
)

// Middleware attaches a Session to every request, creating one when the
// client presents none or an expired one. New ids are echoed back in both
// the header and the cookie.
func Middleware(reg *Registry, secureCookie bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderName)
		if id == "" {
			id = c.Cookies(CookieName)
		}

		s, created := reg.GetOrCreate(id)
		if created {
			c.Cookie(&fiber.Cookie{
				Name:     CookieName,
				Value:    s.ID,
				Path:     "/",
				HTTPOnly: true,
				Secure:   secureCookie,
				SameSite: fiber.CookieSameSiteLaxMode,
				// No Expires: the browser keeps it for the browsing session
				// and the registry enforces the idle timeout.
				SessionOnly: true,
			})
		}
		c.Set(HeaderName, s.ID)
		c.Locals(LocalsSession, s)
		c.Locals(LocalsSessionID, s.ID)
		return c.Next()
	}
}

// FromContext returns the request's session, or nil outside Middleware.
func FromContext(c *fiber.Ctx) *Session {
	s, _ := c.Locals(LocalsSession).(*Session)
	return s
}
