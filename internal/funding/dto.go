package funding

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sofico/sofico_wallet/internal/ledger"
	"github.com/sofico/sofico_wallet/internal/money"
)

// AddFundsRequest starts a top-up. Amount is in major units ("500.00" or 500).
type AddFundsRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AddFundsResponse carries what the client needs to open checkout.
type AddFundsResponse struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Currency      string `json:"currency"`
	KeyID         string `json:"key_id,omitempty"`
}

// WithdrawRequest asks for a withdrawal of Amount major units.
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// RejectRequest carries the reviewer's reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// TransactionResponse is the wire shape of a ledger entry.
type TransactionResponse struct {
	ID            string     `json:"id"`
	WalletID      string     `json:"wallet_id"`
	Kind          string     `json:"kind"`
	Amount        int64      `json:"amount"`
	AmountDisplay string     `json:"amount_display"`
	Description   string     `json:"description,omitempty"`
	Status        string     `json:"status"`
	ExternalRef   string     `json:"external_ref,omitempty"`
	PaymentRef    string     `json:"payment_ref,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

// SettleResponse reports a settled entry. NewBalance is omitted for rejections.
type SettleResponse struct {
	TransactionID string              `json:"transaction_id"`
	Status        string              `json:"status"`
	NewBalance    *int64              `json:"new_balance,omitempty"`
	Transaction   TransactionResponse `json:"transaction"`
}

// PageResponse is one page of transaction history.
type PageResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

// ToTransactionResponse converts a ledger entry to its wire shape.
func ToTransactionResponse(tx ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            tx.ID,
		WalletID:      tx.WalletID,
		Kind:          string(tx.Kind),
		Amount:        tx.Amount,
		AmountDisplay: money.Format(tx.Amount),
		Description:   tx.Description,
		Status:        string(tx.Status),
		ExternalRef:   tx.ExternalRef,
		PaymentRef:    tx.PaymentRef,
		Reason:        tx.Reason,
		CreatedAt:     tx.CreatedAt,
		SettledAt:     tx.SettledAt,
	}
}

// ToSettleResponse converts a settlement outcome to its wire shape.
func ToSettleResponse(out SettleOutcome) SettleResponse {
	resp := SettleResponse{
		TransactionID: out.Transaction.ID,
		Status:        string(out.Transaction.Status),
		Transaction:   ToTransactionResponse(out.Transaction),
	}
	if out.Transaction.Status == ledger.StatusApproved {
		balance := out.Wallet.Balance
		resp.NewBalance = &balance
	}
	return resp
}

// ToPageResponse converts a ledger page to its wire shape.
func ToPageResponse(page ledger.Page) PageResponse {
	resp := PageResponse{Transactions: make([]TransactionResponse, 0, len(page.Transactions)), NextCursor: page.NextCursor}
	for _, tx := range page.Transactions {
		resp.Transactions = append(resp.Transactions, ToTransactionResponse(tx))
	}
	return resp
}
