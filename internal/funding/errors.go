package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/sofico/sofico_wallet/internal/gateway"
	"github.com/sofico/sofico_wallet/internal/ledger"
	"github.com/sofico/sofico_wallet/internal/money"
)

var (
	// ErrUnauthenticated is returned when an operation runs without a principal.
	ErrUnauthenticated = errors.New("authenticated principal required")

	// ErrForbidden indicates the principal does not own the ledger entry it referenced.
	ErrForbidden = errors.New("transaction belongs to another user")

	// ErrNotWithdrawal is returned when approving or rejecting anything but a withdrawal request.
	ErrNotWithdrawal = errors.New("transaction is not a withdrawal request")

	// ErrRefundExceedsPayment indicates cumulative refunds would exceed the original credit.
	ErrRefundExceedsPayment = errors.New("refund exceeds original payment")

	// ErrKYCRequired is returned for withdrawals by principals without verified KYC.
	ErrKYCRequired = errors.New("kyc verification required for withdrawals")
)

// Stable error kinds reported to clients.
const (
	KindInvalidAmount      = "InvalidAmount"
	KindNotFound           = "NotFound"
	KindInsufficientFunds  = "InsufficientFunds"
	KindInvalidSignature   = "InvalidSignature"
	KindGatewayUnavailable = "GatewayUnavailable"
	KindGatewayRejected    = "GatewayRejected"
	KindConflict           = "Conflict"
	KindAlreadyExists      = "AlreadyExists"
	KindDuplicateReference = "DuplicateReference"
	KindUnauthenticated    = "Unauthenticated"
	KindForbidden          = "Forbidden"
	KindNotWithdrawal      = "NotWithdrawal"
	KindRefundExceeds      = "RefundExceedsPayment"
	KindKYCRequired        = "KYCRequired"
	KindInvalidRequest     = "InvalidRequest"
	KindInternal           = "Internal"
)

// Kind maps err to its stable kind.
func Kind(err error) string {
	var gwErr *gateway.Error
	var fiberErr *fiber.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, money.ErrMalformed),
		errors.Is(err, money.ErrPrecision), errors.Is(err, money.ErrOverflow):
		return KindInvalidAmount
	case errors.Is(err, ledger.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, gateway.ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return KindGatewayUnavailable
	case errors.As(err, &gwErr):
		return KindGatewayRejected
	case errors.Is(err, ledger.ErrConflict):
		return KindConflict
	case errors.Is(err, ledger.ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ledger.ErrDuplicateReference):
		return KindDuplicateReference
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotWithdrawal):
		return KindNotWithdrawal
	case errors.Is(err, ledger.ErrInvalidOutcome), errors.Is(err, ledger.ErrInvalidKind):
		return KindInvalidRequest
	case errors.Is(err, ErrRefundExceedsPayment):
		return KindRefundExceeds
	case errors.Is(err, ErrKYCRequired):
		return KindKYCRequired
	case errors.As(err, &fiberErr) && fiberErr.Code < http.StatusInternalServerError:
		return KindInvalidRequest
	default:
		return KindInternal
	}
}

var kindStatus = map[string]int{
	KindInvalidAmount:      http.StatusBadRequest,
	KindNotFound:           http.StatusNotFound,
	KindInsufficientFunds:  http.StatusUnprocessableEntity,
	KindInvalidSignature:   http.StatusBadRequest,
	KindGatewayUnavailable: http.StatusBadGateway,
	KindGatewayRejected:    http.StatusBadGateway,
	KindConflict:           http.StatusConflict,
	KindAlreadyExists:      http.StatusConflict,
	KindDuplicateReference: http.StatusConflict,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindNotWithdrawal:      http.StatusUnprocessableEntity,
	KindRefundExceeds:      http.StatusUnprocessableEntity,
	KindKYCRequired:        http.StatusForbidden,
	KindInvalidRequest:     http.StatusBadRequest,
}

// HTTPStatus maps err to the status code used by the HTTP layer.
func HTTPStatus(err error) int {
	if status, ok := kindStatus[Kind(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the JSON body of every failed wallet request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError writes err as {"error": kind, "message": text}. Internal errors do not leak detail.
func RespondError(c *fiber.Ctx, err error) error {
	kind := Kind(err)
	msg := err.Error()
	if kind == KindInternal {
		msg = "internal error"
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		msg = fiberErr.Message
	}
	return c.Status(HTTPStatus(err)).JSON(ErrorResponse{Error: kind, Message: msg})
}
