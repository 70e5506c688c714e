package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/sofico/sofico_wallet/internal/funding"
	"github.com/sofico/sofico_wallet/internal/ledger"
	"github.com/sofico/sofico_wallet/internal/money"
)

// Handler exposes the caller's wallet: balance and transaction history.
type Handler struct {
	service *funding.Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *funding.Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	WalletID       string `json:"wallet_id"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
	Currency       string `json:"currency"`
	Version        int64  `json:"version"`
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	w, err := h.service.Balance(c.UserContext())
	if err != nil {
		return funding.RespondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{
		WalletID:       w.ID,
		Balance:        w.Balance,
		BalanceDisplay: money.Format(w.Balance),
		Currency:       w.Currency,
		Version:        w.Version,
	})
}

// History returns a newest-first page of transactions. Optional filters: kind, status, cursor, limit.
func (h *Handler) History(c *fiber.Ctx) error {
	f := ledger.Filter{
		Kind:   ledger.Kind(c.Query("kind")),
		Status: ledger.Status(c.Query("status")),
		Cursor: c.Query("cursor"),
		Limit:  c.QueryInt("limit"),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return funding.RespondError(c, fiber.NewError(http.StatusBadRequest, "kind must be CREDIT or DEBIT"))
	}
	switch f.Status {
	case "", ledger.StatusPending, ledger.StatusApproved, ledger.StatusRejected:
	default:
		return funding.RespondError(c, fiber.NewError(http.StatusBadRequest, "status must be PENDING, APPROVED or REJECTED"))
	}

	page, err := h.service.History(c.UserContext(), f)
	if err != nil {
		return funding.RespondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(funding.ToPageResponse(page))
}
