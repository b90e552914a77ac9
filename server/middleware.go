package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const claimsLocalsKey = "artisan.claims"

// requireAccess validates the bearer access token and stores its claims.
func (s *Server) requireAccess(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}

	claims, err := s.tokens.Validate(strings.TrimSpace(token), TokenTypeAccess)
	if err != nil {
		return err
	}
	c.Locals(claimsLocalsKey, claims)
	return c.Next()
}

// ClaimsFromCtx returns the claims stored by the bearer middleware.
func ClaimsFromCtx(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals(claimsLocalsKey).(*Claims)
	return claims, ok && claims != nil
}
