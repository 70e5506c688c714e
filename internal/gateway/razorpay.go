package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Config configures the HTTP processor client.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	RPS       float64
}

// RazorpayGateway talks to a Razorpay-compatible orders/payments API over HTTPS with basic auth.
type RazorpayGateway struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	signer  Signer
	logger  *slog.Logger
}

// NewRazorpayGateway constructs the client. A nil httpClient gets one with cfg.Timeout.
func NewRazorpayGateway(cfg Config, httpClient *http.Client, logger *slog.Logger) *RazorpayGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
	}
	return &RazorpayGateway{
		cfg:     cfg,
		client:  httpClient,
		limiter: rate.NewLimiter(limit, burst),
		signer:  NewSigner(cfg.KeySecret),
		logger:  logger,
	}
}

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type paymentResponse struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type refundResponse struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

type errorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// KeyID returns the public key id.
func (g *RazorpayGateway) KeyID() string { return g.cfg.KeyID }

// CreateOrder registers an order for amount (minor units).
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount int64, currency string) (OrderRef, error) {
	var out orderResponse
	req := orderRequest{Amount: amount, Currency: currency, Receipt: "rcpt_" + uuid.NewString()[:8]}
	if err := g.do(ctx, http.MethodPost, "/v1/orders", req, &out); err != nil {
		return OrderRef{}, err
	}
	if out.ID == "" {
		return OrderRef{}, fmt.Errorf("%w: order response without id", ErrGatewayUnavailable)
	}
	return OrderRef{ID: out.ID, Amount: out.Amount, Currency: out.Currency, Status: out.Status}, nil
}

// VerifySignature checks the checkout callback signature locally.
func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return g.signer.Verify(orderID, paymentID, signature)
}

// FetchPayment returns the processor's record of a payment.
func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (PaymentDetails, error) {
	var out paymentResponse
	if err := g.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return PaymentDetails{}, err
	}
	return PaymentDetails(out), nil
}

// Refund issues a (partial) refund of amount against paymentID.
func (g *RazorpayGateway) Refund(ctx context.Context, paymentID string, amount int64) (RefundRef, error) {
	var out refundResponse
	path := "/v1/payments/" + url.PathEscape(paymentID) + "/refund"
	if err := g.do(ctx, http.MethodPost, path, refundRequest{Amount: amount}, &out); err != nil {
		return RefundRef{}, err
	}
	if out.ID == "" {
		return RefundRef{}, fmt.Errorf("%w: refund response without id", ErrGatewayUnavailable)
	}
	if out.PaymentID == "" {
		out.PaymentID = paymentID
	}
	return RefundRef(out), nil
}

func (g *RazorpayGateway) do(ctx context.Context, method, path string, body, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("gateway call failed", slog.String("method", method), slog.String("path", path), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}
	g.logger.Debug("gateway call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var env errorEnvelope
		_ = json.Unmarshal(raw, &env)
		desc := env.Error.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Code: env.Error.Code, Description: desc}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
		}
	}
	return nil
}
