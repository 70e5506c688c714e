package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sofico/sofico_wallet/internal/wallet"
)

// RegisterWalletRoutes wires the caller's balance and history endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet/balance", h.Balance)
	r.Get("/wallet/transactions", h.History)
}
