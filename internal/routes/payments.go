package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sofico/sofico_wallet/internal/auth"
	"github.com/sofico/sofico_wallet/internal/middleware"
	"github.com/sofico/sofico_wallet/internal/payments"
)

// RegisterPaymentRoutes wires the checkout callback and admin payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, idempotent, callbackLimit fiber.Handler) {
	r.Post("/payments/callback", callbackLimit, h.Callback)

	admin := r.Group("/admin/payments", middleware.RequireRole(auth.RoleAdmin))
	admin.Get("/:paymentId", h.Details)
	admin.Post("/:paymentId/refund", idempotent, h.Refund)
}
