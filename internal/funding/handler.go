package funding

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sofico/sofico_wallet/internal/ledger"
	"github.com/sofico/sofico_wallet/internal/money"
)

// Handler exposes top-up, withdrawal and withdrawal review endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// AddFunds creates a processor order for a wallet top-up.
func (h *Handler) AddFunds(c *fiber.Ctx) error {
	var req AddFundsRequest
	if err := c.BodyParser(&req); err != nil {
		return RespondError(c, fiber.NewError(http.StatusBadRequest, err.Error()))
	}
	amount, err := money.FromDecimal(req.Amount)
	if err != nil {
		return RespondError(c, err)
	}

	res, err := h.service.AddFunds(c.UserContext(), amount)
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(AddFundsResponse{
		TransactionID: res.TransactionID,
		OrderID:       res.OrderID,
		Amount:        res.Amount,
		AmountDisplay: money.Format(res.Amount),
		Currency:      res.Currency,
		KeyID:         res.KeyID,
	})
}

// Withdraw records a withdrawal request awaiting review.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return RespondError(c, fiber.NewError(http.StatusBadRequest, err.Error()))
	}
	amount, err := money.FromDecimal(req.Amount)
	if err != nil {
		return RespondError(c, err)
	}

	tx, err := h.service.Withdraw(c.UserContext(), amount, strings.TrimSpace(req.Description))
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"transaction_id": tx.ID,
		"status":         tx.Status,
		"transaction":    ToTransactionResponse(tx),
	})
}

// ApproveWithdrawal settles a withdrawal request and decrements the balance.
func (h *Handler) ApproveWithdrawal(c *fiber.Ctx) error {
	out, err := h.service.ApproveWithdrawal(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(ToSettleResponse(out))
}

// RejectWithdrawal closes a withdrawal request without moving money.
func (h *Handler) RejectWithdrawal(c *fiber.Ctx) error {
	var req RejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return RespondError(c, fiber.NewError(http.StatusBadRequest, err.Error()))
		}
	}
	out, err := h.service.RejectWithdrawal(c.UserContext(), c.Params("transactionId"), strings.TrimSpace(req.Reason))
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(ToSettleResponse(out))
}

// PendingWithdrawals lists withdrawal requests awaiting review.
func (h *Handler) PendingWithdrawals(c *fiber.Ctx) error {
	page, err := h.service.PendingWithdrawals(c.UserContext(), ledger.Filter{
		Cursor: c.Query("cursor"),
		Limit:  c.QueryInt("limit"),
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(ToPageResponse(page))
}
