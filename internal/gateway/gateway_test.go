package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sofico/sofico_wallet/internal/logging"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *RazorpayGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRazorpayGateway(Config{
		BaseURL:   srv.URL,
		KeyID:     "rzp_test_key",
		KeySecret: "secret",
		Timeout:   2 * time.Second,
	}, srv.Client(), logging.Discard())
}

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("secret")
	sig := s.Sign("order_1", "pay_1")

	require.True(t, s.Verify("order_1", "pay_1", sig))
	require.False(t, s.Verify("order_1", "pay_2", sig))
	require.False(t, s.Verify("order_1", "pay_1", sig[:len(sig)-1]+"0"))
	require.False(t, NewSigner("other").Verify("order_1", "pay_1", sig))
	require.False(t, NewSigner("").Verify("order_1", "pay_1", NewSigner("").Sign("order_1", "pay_1")))
}

func TestCreateOrderSendsBasicAuthAndBody(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "rzp_test_key", user)
		require.Equal(t, "secret", pass)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/orders", r.URL.Path)

		var body orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, int64(50_000), body.Amount)
		require.Equal(t, "INR", body.Currency)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(orderResponse{ID: "order_abc", Amount: body.Amount, Currency: body.Currency, Status: "created"})
	})

	ref, err := gw.CreateOrder(context.Background(), 50_000, "INR")
	require.NoError(t, err)
	require.Equal(t, "order_abc", ref.ID)
	require.Equal(t, int64(50_000), ref.Amount)
}

func TestServerErrorIsUnavailable(t *testing.T) {
	calls := 0
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := gw.CreateOrder(context.Background(), 100, "INR")
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	require.Equal(t, 1, calls, "gateway calls must not be retried")
}

func TestClientErrorIsRejection(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be at least INR 1.00"}}`))
	})

	_, err := gw.Refund(context.Background(), "pay_1", 10)
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	require.Equal(t, "BAD_REQUEST_ERROR", gwErr.Code)
	require.False(t, errors.Is(err, ErrGatewayUnavailable))
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	gw := NewRazorpayGateway(Config{BaseURL: srv.URL, KeyID: "k", KeySecret: "s"}, nil, logging.Discard())

	_, err := gw.FetchPayment(context.Background(), "pay_1")
	require.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestFetchPaymentAndRefund(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payments/pay_1":
			_, _ = w.Write([]byte(`{"id":"pay_1","order_id":"order_1","amount":500,"currency":"INR","status":"captured","method":"upi"}`))
		case "/v1/payments/pay_1/refund":
			require.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"id":"rfnd_1","payment_id":"pay_1","amount":200,"status":"processed"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p, err := gw.FetchPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	require.Equal(t, "order_1", p.OrderID)
	require.Equal(t, "captured", p.Status)

	r, err := gw.Refund(context.Background(), "pay_1", 200)
	require.NoError(t, err)
	require.Equal(t, "rfnd_1", r.ID)
	require.Equal(t, int64(200), r.Amount)
}

func TestStaticGatewayCaptureAndRefund(t *testing.T) {
	ctx := context.Background()
	gw := NewStaticGateway("rzp_test", "secret")

	order, err := gw.CreateOrder(ctx, 500, "INR")
	require.NoError(t, err)

	paymentID, sig, err := gw.Capture(order.ID)
	require.NoError(t, err)
	require.True(t, gw.VerifySignature(order.ID, paymentID, sig))

	p, err := gw.FetchPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, order.ID, p.OrderID)

	_, err = gw.Refund(ctx, paymentID, 300)
	require.NoError(t, err)
	_, err = gw.Refund(ctx, paymentID, 201)
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
}
