package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound occurs when a wallet or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the user already owns a wallet.
	ErrAlreadyExists = errors.New("wallet already exists")

	// ErrInvalidAmount is returned for non-positive transaction amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds occurs when an approved debit would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict indicates the wallet version moved between read and write. The
	// settlement did not happen and may be retried.
	ErrConflict = errors.New("concurrent settlement conflict")

	// ErrDuplicateReference indicates another transaction already carries the external reference.
	ErrDuplicateReference = errors.New("duplicate external reference")

	// ErrInvalidOutcome is returned when settling to anything but APPROVED or REJECTED.
	ErrInvalidOutcome = errors.New("settlement outcome must be APPROVED or REJECTED")

	// ErrInvalidKind is returned for transaction kinds other than CREDIT and DEBIT.
	ErrInvalidKind = errors.New("transaction kind must be CREDIT or DEBIT")
)

// Kind is the direction of a transaction relative to its wallet.
type Kind string

const (
	KindCredit Kind = "CREDIT"
	KindDebit  Kind = "DEBIT"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCredit || k == KindDebit
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

const (
	// DefaultPageSize is used when a filter does not specify a limit.
	DefaultPageSize = 20
	// MaxPageSize caps a single page of history.
	MaxPageSize = 100
)

// Wallet is the per-user balance record. Balance is in minor units and only changes
// through SettleTransaction.
type Wallet struct {
	ID        string
	UserID    string
	Balance   int64
	Currency  string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an append-only ledger entry owned by one wallet.
type Transaction struct {
	ID          string
	WalletID    string
	Kind        Kind
	Amount      int64
	Description string
	Status      Status
	// ExternalRef is the gateway order id for top-ups or the refund id for refunds.
	ExternalRef string
	// PaymentRef is the gateway payment id once known.
	PaymentRef string
	Reason     string
	CreatedAt  time.Time
	SettledAt  *time.Time
}

// NewTransaction describes an entry to append in PENDING state.
type NewTransaction struct {
	WalletID    string
	Kind        Kind
	Amount      int64
	Description string
	ExternalRef string
	PaymentRef  string
}

// Settlement moves a PENDING transaction to a terminal state.
type Settlement struct {
	TransactionID string
	Outcome       Status
	PaymentRef    string
	Reason        string
}

// SettleResult captures the outcome of a settlement. Applied is false when the
// transaction was already terminal and nothing changed.
type SettleResult struct {
	Transaction Transaction
	Wallet      Wallet
	Applied     bool
}

// Filter narrows and paginates transaction listings. Cursor is the id of the last
// transaction of the previous page.
type Filter struct {
	Kind       Kind
	Status     Status
	PaymentRef string
	Cursor     string
	Limit      int
	// RequestsOnly drops entries tagged with a gateway reference (top-ups and refunds),
	// leaving the withdrawal requests an operator can approve or reject.
	RequestsOnly bool
}

// PageSize returns the effective page size of the filter.
func (f Filter) PageSize() int {
	switch {
	case f.Limit <= 0:
		return DefaultPageSize
	case f.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return f.Limit
	}
}

// Page is one slice of a newest-first transaction listing. NextCursor is empty on the last page.
type Page struct {
	Transactions []Transaction
	NextCursor   string
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
type Store interface {
	GetWallet(ctx context.Context, userID string) (Wallet, error)
	GetWalletByID(ctx context.Context, walletID string) (Wallet, error)
	CreateWallet(ctx context.Context, userID, currency string) (Wallet, error)

	GetTransaction(ctx context.Context, id string) (Transaction, error)
	FindByExternalRef(ctx context.Context, ref string) (Transaction, error)
	FindCreditByPaymentRef(ctx context.Context, paymentRef string) (Transaction, error)

	AppendTransaction(ctx context.Context, in NewTransaction) (Transaction, error)
	SettleTransaction(ctx context.Context, in Settlement) (SettleResult, error)

	ListTransactions(ctx context.Context, walletID string, f Filter) (Page, error)
	ListPending(ctx context.Context, kind Kind, f Filter) (Page, error)
}

func newTransactionID() string {
	return ulid.Make().String()
}

func validateNew(in NewTransaction) error {
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !in.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

// plan computes the wallet and transaction after a settlement without persisting
// anything. Rejections leave the wallet untouched.
func plan(w Wallet, tx Transaction, s Settlement, now time.Time) (Wallet, Transaction, error) {
	settled := tx
	settled.Status = s.Outcome
	settled.SettledAt = &now
	settled.Reason = s.Reason
	if s.PaymentRef != "" {
		settled.PaymentRef = s.PaymentRef
	}

	if s.Outcome == StatusRejected {
		return w, settled, nil
	}

	next := w
	switch tx.Kind {
	case KindCredit:
		if next.Balance > math.MaxInt64-tx.Amount {
			return Wallet{}, Transaction{}, fmt.Errorf("credit %s overflows wallet %s", tx.ID, w.ID)
		}
		next.Balance += tx.Amount
	case KindDebit:
		if next.Balance < tx.Amount {
			return Wallet{}, Transaction{}, ErrInsufficientFunds
		}
		next.Balance -= tx.Amount
	default:
		return Wallet{}, Transaction{}, ErrInvalidKind
	}
	next.Version++
	next.UpdatedAt = now
	return next, settled, nil
}

func validOutcome(s Status) bool {
	return s == StatusApproved || s == StatusRejected
}
