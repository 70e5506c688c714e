package payments

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/sofico/sofico_wallet/internal/funding"
	"github.com/sofico/sofico_wallet/internal/money"
)

// Handler exposes the gateway-facing endpoints: checkout callback, refunds and payment lookups.
type Handler struct {
	service *funding.Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *funding.Service) *Handler {
	return &Handler{service: service}
}

type callbackRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type refundResponse struct {
	RefundID    string                      `json:"refund_id"`
	PaymentID   string                      `json:"payment_id"`
	Amount      int64                       `json:"amount"`
	NewBalance  int64                       `json:"new_balance"`
	Transaction funding.TransactionResponse `json:"transaction"`
}

type paymentResponse struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Method        string `json:"method,omitempty"`
	Email         string `json:"email,omitempty"`
	Contact       string `json:"contact,omitempty"`
}

// Callback verifies a checkout result and settles the pending top-up. Redelivery is safe.
func (h *Handler) Callback(c *fiber.Ctx) error {
	var req callbackRequest
	if err := c.BodyParser(&req); err != nil {
		return funding.RespondError(c, fiber.NewError(http.StatusBadRequest, err.Error()))
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	if req.OrderID == "" || req.PaymentID == "" {
		return funding.RespondError(c, fiber.NewError(http.StatusBadRequest, "order and payment ids are required"))
	}

	out, err := h.service.ConfirmPayment(c.UserContext(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return funding.RespondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(funding.ToSettleResponse(out))
}

// Refund returns part or all of a captured payment.
func (h *Handler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return funding.RespondError(c, fiber.NewError(http.StatusBadRequest, err.Error()))
	}
	amount, err := money.FromDecimal(req.Amount)
	if err != nil {
		return funding.RespondError(c, err)
	}

	paymentID := c.Params("paymentId")
	res, err := h.service.Refund(c.UserContext(), paymentID, amount)
	if err != nil {
		return funding.RespondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(refundResponse{
		RefundID:    res.RefundID,
		PaymentID:   paymentID,
		Amount:      amount,
		NewBalance:  res.Wallet.Balance,
		Transaction: funding.ToTransactionResponse(res.Transaction),
	})
}

// Details returns the processor's record of a payment.
func (h *Handler) Details(c *fiber.Ctx) error {
	p, err := h.service.PaymentDetails(c.UserContext(), c.Params("paymentId"))
	if err != nil {
		return funding.RespondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		AmountDisplay: money.Format(p.Amount),
		Currency:      p.Currency,
		Status:        p.Status,
		Method:        p.Method,
		Email:         p.Email,
		Contact:       p.Contact,
	})
}
