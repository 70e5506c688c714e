package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StaticGateway simulates a processor in-process. Orders and payments are remembered so
// FetchPayment and Refund behave consistently; it is used in development and tests.
type StaticGateway struct {
	signer Signer
	keyID  string

	mu       sync.Mutex
	orders   map[string]OrderRef
	payments map[string]PaymentDetails
	refunded map[string]int64

	// Fail, when set, is returned by every network-shaped call.
	Fail error
}

// NewStaticGateway returns a simulated gateway signing with secret.
func NewStaticGateway(keyID, secret string) *StaticGateway {
	return &StaticGateway{
		signer:   NewSigner(secret),
		keyID:    keyID,
		orders:   make(map[string]OrderRef),
		payments: make(map[string]PaymentDetails),
		refunded: make(map[string]int64),
	}
}

func (g *StaticGateway) KeyID() string { return g.keyID }

func (g *StaticGateway) CreateOrder(_ context.Context, amount int64, currency string) (OrderRef, error) {
	if g.Fail != nil {
		return OrderRef{}, g.Fail
	}
	ref := OrderRef{ID: "order_" + compactID(), Amount: amount, Currency: currency, Status: "created"}
	g.mu.Lock()
	g.orders[ref.ID] = ref
	g.mu.Unlock()
	return ref, nil
}

func (g *StaticGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return g.signer.Verify(orderID, paymentID, signature)
}

// Capture simulates the client completing checkout for orderID. It returns the payment id and
// the signature the processor would hand back to the client.
func (g *StaticGateway) Capture(orderID string) (paymentID, signature string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return "", "", &Error{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "unknown order"}
	}
	paymentID = "pay_" + compactID()
	g.payments[paymentID] = PaymentDetails{
		ID:       paymentID,
		OrderID:  orderID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Status:   "captured",
		Method:   "upi",
	}
	return paymentID, g.signer.Sign(orderID, paymentID), nil
}

func (g *StaticGateway) FetchPayment(_ context.Context, paymentID string) (PaymentDetails, error) {
	if g.Fail != nil {
		return PaymentDetails{}, g.Fail
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return PaymentDetails{}, &Error{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "payment not found"}
	}
	return p, nil
}

func (g *StaticGateway) Refund(_ context.Context, paymentID string, amount int64) (RefundRef, error) {
	if g.Fail != nil {
		return RefundRef{}, g.Fail
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return RefundRef{}, &Error{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "payment not found"}
	}
	if g.refunded[paymentID]+amount > p.Amount {
		return RefundRef{}, &Error{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: fmt.Sprintf("refund exceeds captured amount %d", p.Amount)}
	}
	g.refunded[paymentID] += amount
	return RefundRef{ID: "rfnd_" + compactID(), PaymentID: paymentID, Amount: amount, Status: "processed"}, nil
}

func compactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
