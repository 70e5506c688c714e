package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sofico/sofico_wallet/internal/auth"
	"github.com/sofico/sofico_wallet/internal/funding"
	"github.com/sofico/sofico_wallet/internal/middleware"
)

// RegisterFundingRoutes wires top-ups, withdrawals and the admin withdrawal review queue.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, idempotent fiber.Handler) {
	r.Post("/wallet/add-funds", idempotent, h.AddFunds)
	r.Post("/wallet/withdraw", idempotent, h.Withdraw)

	admin := r.Group("/admin/withdrawals", middleware.RequireRole(auth.RoleAdmin))
	admin.Get("", h.PendingWithdrawals)
	admin.Post("/:transactionId/approve", h.ApproveWithdrawal)
	admin.Post("/:transactionId/reject", h.RejectWithdrawal)
}
