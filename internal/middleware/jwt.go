package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sofico/sofico_wallet/internal/auth"
	"github.com/sofico/sofico_wallet/internal/funding"
)

const principalLocal = "principal"

// JWTAuth validates the bearer token and attaches the principal to the request's user context.
func JWTAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return funding.RespondError(c, fiber.NewError(http.StatusUnauthorized, "missing bearer token"))
		}
		p, err := auth.ParseToken(strings.TrimSpace(authz[len("bearer "):]), secret)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(funding.ErrorResponse{
				Error:   funding.KindUnauthenticated,
				Message: "invalid token",
			})
		}

		c.Locals(principalLocal, p)
		c.SetUserContext(auth.WithPrincipal(c.UserContext(), p))
		return c.Next()
	}
}

// RequireRole rejects principals whose role is not one of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := auth.FromContext(c.UserContext())
		if !ok {
			return c.Status(http.StatusUnauthorized).JSON(funding.ErrorResponse{
				Error:   funding.KindUnauthenticated,
				Message: "authentication required",
			})
		}
		for _, role := range roles {
			if p.Role == role {
				return c.Next()
			}
		}
		return c.Status(http.StatusForbidden).JSON(funding.ErrorResponse{
			Error:   funding.KindForbidden,
			Message: "insufficient role",
		})
	}
}
