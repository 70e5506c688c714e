package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// KindBalanceChanged is the event kind emitted after every applied settlement.
const KindBalanceChanged = "balance_changed"

// TransactionInfo is the settled ledger entry carried by an event.
type TransactionInfo struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`
	PaymentRef  string `json:"payment_ref,omitempty"`
}

// BalanceChanged describes a wallet after a settlement.
type BalanceChanged struct {
	Kind        string          `json:"kind"`
	UserID      string          `json:"user_id"`
	WalletID    string          `json:"wallet_id"`
	NewBalance  int64           `json:"new_balance"`
	Currency    string          `json:"currency"`
	Transaction TransactionInfo `json:"transaction"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Notifier delivers balance events to downstream systems.
type Notifier interface {
	Notify(ctx context.Context, event BalanceChanged) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Notify logs the event.
func (n *LoggerNotifier) Notify(_ context.Context, event BalanceChanged) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", event.Kind),
		slog.String("user_id", event.UserID),
		slog.String("wallet_id", event.WalletID),
		slog.Int64("new_balance", event.NewBalance),
		slog.String("transaction_id", event.Transaction.ID),
		slog.String("status", event.Transaction.Status),
	)
	return nil
}

// Fanout delivers an event to every notifier and joins their errors.
type Fanout []Notifier

// Notify calls each non-nil notifier in order.
func (f Fanout) Notify(ctx context.Context, event BalanceChanged) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
