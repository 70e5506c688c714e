package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature indicates a callback signature did not match the expected HMAC.
	ErrInvalidSignature = errors.New("invalid payment signature")

	// ErrGatewayUnavailable wraps transport failures and processor-side 5xx responses. The
	// caller may retry; the ledger entry stays PENDING.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Error is returned when the processor rejected a request (4xx).
type Error struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway rejected request (%d): %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("gateway rejected request (%d %s): %s", e.StatusCode, e.Code, e.Description)
}

// OrderRef identifies an order created at the processor for a pending top-up.
type OrderRef struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// PaymentDetails is the processor's view of a captured payment.
type PaymentDetails struct {
	ID       string
	OrderID  string
	Amount   int64
	Currency string
	Status   string
	Method   string
	Email    string
	Contact  string
}

// RefundRef identifies a refund issued against a payment.
type RefundRef struct {
	ID        string
	PaymentID string
	Amount    int64
	Status    string
}

// Gateway is the capability set the wallet needs from an external payment processor.
// Every call is a single attempt.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency string) (OrderRef, error)
	VerifySignature(orderID, paymentID, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (PaymentDetails, error)
	Refund(ctx context.Context, paymentID string, amount int64) (RefundRef, error)
	// KeyID is the public key id handed to checkout clients.
	KeyID() string
}
