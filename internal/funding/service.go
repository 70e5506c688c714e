package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sofico/sofico_wallet/internal/auth"
	"github.com/sofico/sofico_wallet/internal/gateway"
	"github.com/sofico/sofico_wallet/internal/ledger"
	"github.com/sofico/sofico_wallet/internal/metrics"
	"github.com/sofico/sofico_wallet/internal/notification"
)

const (
	defaultCurrency    = "INR"
	defaultMaxAttempts = 5
	defaultBaseBackoff = 10 * time.Millisecond

	topUpDescription  = "Wallet top-up"
	refundDescription = "Refund"
	signatureReason   = "payment signature verification failed"
)

// Options tunes the coordinator.
type Options struct {
	Currency                string
	SettleMaxAttempts       int
	SettleBaseBackoff       time.Duration
	RequireKYCForWithdrawal bool
}

// Service coordinates wallet operations: it validates requests against the ledger, calls the
// payment gateway when money moves externally, settles ledger entries and emits balance events.
// It is the only writer of wallet balances.
type Service struct {
	store    ledger.Store
	gateway  gateway.Gateway
	notifier notification.Notifier
	logger   *slog.Logger
	opts     Options
}

// NewService wires the coordinator. A nil notifier disables events.
func NewService(store ledger.Store, gw gateway.Gateway, notifier notification.Notifier, logger *slog.Logger, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	if opts.SettleMaxAttempts < 1 {
		opts.SettleMaxAttempts = defaultMaxAttempts
	}
	if opts.SettleBaseBackoff < 0 {
		opts.SettleBaseBackoff = defaultBaseBackoff
	}
	return &Service{store: store, gateway: gw, notifier: notifier, logger: logger, opts: opts}, nil
}

// Currency returns the ledger currency.
func (s *Service) Currency() string { return s.opts.Currency }

// AddFundsResult is returned to the client to complete checkout.
type AddFundsResult struct {
	TransactionID string
	OrderID       string
	Amount        int64
	Currency      string
	KeyID         string
}

// SettleOutcome describes a settled (or already terminal) ledger entry.
type SettleOutcome struct {
	Transaction ledger.Transaction
	Wallet      ledger.Wallet
	Applied     bool
}

// RefundResult describes an issued refund and its ledger entry.
type RefundResult struct {
	RefundID    string
	Transaction ledger.Transaction
	Wallet      ledger.Wallet
}

// AddFunds creates a processor order and records a PENDING credit tagged with the order id.
// The wallet is created on the user's first top-up.
func (s *Service) AddFunds(ctx context.Context, amount int64) (AddFundsResult, error) {
	p, err := principal(ctx)
	if err != nil {
		return AddFundsResult{}, err
	}
	if amount <= 0 {
		return AddFundsResult{}, ledger.ErrInvalidAmount
	}

	var order gateway.OrderRef
	err = observeGateway("create_order", func() error {
		var err error
		order, err = s.gateway.CreateOrder(ctx, amount, s.opts.Currency)
		return err
	})
	if err != nil {
		return AddFundsResult{}, err
	}

	w, err := s.ensureWallet(ctx, p.UserID)
	if err != nil {
		return AddFundsResult{}, err
	}
	tx, err := s.store.AppendTransaction(ctx, ledger.NewTransaction{
		WalletID:    w.ID,
		Kind:        ledger.KindCredit,
		Amount:      amount,
		Description: topUpDescription,
		ExternalRef: order.ID,
	})
	if err != nil {
		return AddFundsResult{}, fmt.Errorf("record pending credit for order %s: %w", order.ID, err)
	}

	s.logger.Info("add funds order created",
		slog.String("user_id", p.UserID),
		slog.String("transaction_id", tx.ID),
		slog.String("order_id", order.ID),
		slog.Int64("amount", amount),
	)
	return AddFundsResult{
		TransactionID: tx.ID,
		OrderID:       order.ID,
		Amount:        amount,
		Currency:      s.opts.Currency,
		KeyID:         s.gateway.KeyID(),
	}, nil
}

// ConfirmPayment settles the credit for orderID once the processor's signature checks out.
// A bad signature settles the credit REJECTED and returns gateway.ErrInvalidSignature.
// Repeated calls return the terminal record without touching the balance again.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) (SettleOutcome, error) {
	p, err := principal(ctx)
	if err != nil {
		return SettleOutcome{}, err
	}
	tx, err := s.store.FindByExternalRef(ctx, orderID)
	if err != nil {
		return SettleOutcome{}, err
	}
	if tx.Kind != ledger.KindCredit {
		return SettleOutcome{}, fmt.Errorf("%w: no top-up for order %s", ledger.ErrNotFound, orderID)
	}
	if err := s.checkOwner(ctx, p, tx); err != nil {
		return SettleOutcome{}, err
	}

	if !s.gateway.VerifySignature(orderID, paymentID, signature) {
		s.logger.Warn("payment signature rejected",
			slog.String("order_id", orderID),
			slog.String("payment_id", paymentID),
			slog.String("transaction_id", tx.ID),
		)
		out, err := s.settle(ctx, ledger.Settlement{
			TransactionID: tx.ID,
			Outcome:       ledger.StatusRejected,
			Reason:        signatureReason,
		})
		if err != nil {
			return SettleOutcome{}, err
		}
		return out, gateway.ErrInvalidSignature
	}

	return s.settle(ctx, ledger.Settlement{
		TransactionID: tx.ID,
		Outcome:       ledger.StatusApproved,
		PaymentRef:    paymentID,
	})
}

// Withdraw records a PENDING withdrawal request. The balance is only checked here; it is
// decremented when an admin approves the request.
func (s *Service) Withdraw(ctx context.Context, amount int64, description string) (ledger.Transaction, error) {
	p, err := principal(ctx)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if amount <= 0 {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}
	if s.opts.RequireKYCForWithdrawal && !p.KYCVerified {
		return ledger.Transaction{}, ErrKYCRequired
	}

	w, err := s.store.GetWallet(ctx, p.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Transaction{}, ledger.ErrInsufficientFunds
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	if amount > w.Balance {
		return ledger.Transaction{}, ledger.ErrInsufficientFunds
	}

	tx, err := s.store.AppendTransaction(ctx, ledger.NewTransaction{
		WalletID:    w.ID,
		Kind:        ledger.KindDebit,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.logger.Info("withdrawal requested",
		slog.String("user_id", p.UserID),
		slog.String("transaction_id", tx.ID),
		slog.Int64("amount", amount),
	)
	return tx, nil
}

// ApproveWithdrawal settles a withdrawal request APPROVED. Sufficiency is re-checked against
// the current balance; on ledger.ErrInsufficientFunds the request stays PENDING.
func (s *Service) ApproveWithdrawal(ctx context.Context, transactionID string) (SettleOutcome, error) {
	if _, err := s.withdrawal(ctx, transactionID); err != nil {
		return SettleOutcome{}, err
	}
	return s.settle(ctx, ledger.Settlement{TransactionID: transactionID, Outcome: ledger.StatusApproved})
}

// RejectWithdrawal settles a withdrawal request REJECTED with no balance effect.
func (s *Service) RejectWithdrawal(ctx context.Context, transactionID, reason string) (SettleOutcome, error) {
	if _, err := s.withdrawal(ctx, transactionID); err != nil {
		return SettleOutcome{}, err
	}
	return s.settle(ctx, ledger.Settlement{TransactionID: transactionID, Outcome: ledger.StatusRejected, Reason: reason})
}

// Refund returns amount of a captured payment to the payer through the processor and debits
// the wallet that received the original credit. Refund debits left PENDING by an earlier call
// are settled first; one of the same amount is returned in place of a new processor refund.
func (s *Service) Refund(ctx context.Context, paymentID string, amount int64) (RefundResult, error) {
	if _, err := principal(ctx); err != nil {
		return RefundResult{}, err
	}
	if amount <= 0 {
		return RefundResult{}, ledger.ErrInvalidAmount
	}

	credit, err := s.creditForPayment(ctx, paymentID)
	if err != nil {
		return RefundResult{}, err
	}
	if prior, ok, err := s.settlePendingRefunds(ctx, credit.WalletID, paymentID, amount); err != nil || ok {
		return prior, err
	}
	refunded, err := s.refundedAmount(ctx, credit.WalletID, paymentID)
	if err != nil {
		return RefundResult{}, err
	}
	if refunded+amount > credit.Amount {
		return RefundResult{}, fmt.Errorf("%w: %d already refunded of %d", ErrRefundExceedsPayment, refunded, credit.Amount)
	}
	w, err := s.store.GetWalletByID(ctx, credit.WalletID)
	if err != nil {
		return RefundResult{}, err
	}
	if w.Balance < amount {
		return RefundResult{}, ledger.ErrInsufficientFunds
	}

	var ref gateway.RefundRef
	err = observeGateway("refund", func() error {
		var err error
		ref, err = s.gateway.Refund(ctx, paymentID, amount)
		return err
	})
	if err != nil {
		return RefundResult{}, err
	}

	tx, err := s.store.AppendTransaction(ctx, ledger.NewTransaction{
		WalletID:    credit.WalletID,
		Kind:        ledger.KindDebit,
		Amount:      amount,
		Description: refundDescription,
		ExternalRef: ref.ID,
		PaymentRef:  paymentID,
	})
	if err != nil {
		s.logger.Error("refund issued but not recorded",
			slog.String("refund_id", ref.ID),
			slog.String("payment_id", paymentID),
			slog.Any("error", err),
		)
		return RefundResult{}, fmt.Errorf("record refund %s: %w", ref.ID, err)
	}
	out, err := s.settle(ctx, ledger.Settlement{TransactionID: tx.ID, Outcome: ledger.StatusApproved, PaymentRef: paymentID})
	if err != nil {
		s.logger.Error("refund recorded but not settled",
			slog.String("refund_id", ref.ID),
			slog.String("transaction_id", tx.ID),
			slog.Any("error", err),
		)
		return RefundResult{RefundID: ref.ID, Transaction: tx}, err
	}
	return RefundResult{RefundID: ref.ID, Transaction: out.Transaction, Wallet: out.Wallet}, nil
}

// PaymentDetails returns the processor's record of a payment.
func (s *Service) PaymentDetails(ctx context.Context, paymentID string) (gateway.PaymentDetails, error) {
	if _, err := principal(ctx); err != nil {
		return gateway.PaymentDetails{}, err
	}
	var details gateway.PaymentDetails
	err := observeGateway("fetch_payment", func() error {
		var err error
		details, err = s.gateway.FetchPayment(ctx, paymentID)
		return err
	})
	return details, err
}

// Balance returns the caller's wallet.
func (s *Service) Balance(ctx context.Context) (ledger.Wallet, error) {
	p, err := principal(ctx)
	if err != nil {
		return ledger.Wallet{}, err
	}
	return s.store.GetWallet(ctx, p.UserID)
}

// History returns a newest-first page of the caller's transactions.
func (s *Service) History(ctx context.Context, f ledger.Filter) (ledger.Page, error) {
	p, err := principal(ctx)
	if err != nil {
		return ledger.Page{}, err
	}
	w, err := s.store.GetWallet(ctx, p.UserID)
	if err != nil {
		return ledger.Page{}, err
	}
	return s.store.ListTransactions(ctx, w.ID, f)
}

// PendingWithdrawals returns a newest-first page of withdrawal requests awaiting review.
func (s *Service) PendingWithdrawals(ctx context.Context, f ledger.Filter) (ledger.Page, error) {
	if _, err := principal(ctx); err != nil {
		return ledger.Page{}, err
	}
	f.RequestsOnly = true
	return s.store.ListPending(ctx, ledger.KindDebit, f)
}

// settle applies a settlement, retrying version conflicts with backoff, and emits a balance
// event when the settlement changed state.
func (s *Service) settle(ctx context.Context, in ledger.Settlement) (SettleOutcome, error) {
	var res ledger.SettleResult
	attempts, err := retryOnConflict(ctx, s.opts.SettleMaxAttempts, s.opts.SettleBaseBackoff,
		func(attempt int) {
			metrics.SettleConflicts.Inc()
			s.logger.Warn("settlement conflict",
				slog.String("transaction_id", in.TransactionID),
				slog.Int("attempt", attempt),
			)
		},
		func() error {
			var err error
			res, err = s.store.SettleTransaction(ctx, in)
			return err
		})
	if err != nil {
		return SettleOutcome{}, err
	}

	out := SettleOutcome{Transaction: res.Transaction, Wallet: res.Wallet, Applied: res.Applied}
	if !res.Applied {
		return out, nil
	}

	metrics.Settlements.WithLabelValues(string(res.Transaction.Kind), string(res.Transaction.Status)).Inc()
	s.logger.Info("transaction settled",
		slog.String("transaction_id", res.Transaction.ID),
		slog.String("wallet_id", res.Wallet.ID),
		slog.String("outcome", string(res.Transaction.Status)),
		slog.Int64("balance", res.Wallet.Balance),
		slog.Int("attempts", attempts),
	)
	s.emit(ctx, res)
	return out, nil
}

func (s *Service) emit(ctx context.Context, res ledger.SettleResult) {
	if s.notifier == nil {
		return
	}
	tx := res.Transaction
	event := notification.BalanceChanged{
		Kind:       notification.KindBalanceChanged,
		UserID:     res.Wallet.UserID,
		WalletID:   res.Wallet.ID,
		NewBalance: res.Wallet.Balance,
		Currency:   res.Wallet.Currency,
		Transaction: notification.TransactionInfo{
			ID:          tx.ID,
			Kind:        string(tx.Kind),
			Amount:      tx.Amount,
			Status:      string(tx.Status),
			Description: tx.Description,
			ExternalRef: tx.ExternalRef,
			PaymentRef:  tx.PaymentRef,
		},
		OccurredAt: time.Now().UTC(),
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		metrics.NotifyFailures.Inc()
		s.logger.Warn("balance event delivery failed",
			slog.String("transaction_id", tx.ID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) ensureWallet(ctx context.Context, userID string) (ledger.Wallet, error) {
	w, err := s.store.GetWallet(ctx, userID)
	if !errors.Is(err, ledger.ErrNotFound) {
		return w, err
	}
	w, err = s.store.CreateWallet(ctx, userID, s.opts.Currency)
	if errors.Is(err, ledger.ErrAlreadyExists) {
		return s.store.GetWallet(ctx, userID)
	}
	if err == nil {
		s.logger.Info("wallet created", slog.String("user_id", userID), slog.String("wallet_id", w.ID))
	}
	return w, err
}

func (s *Service) withdrawal(ctx context.Context, transactionID string) (ledger.Transaction, error) {
	if _, err := principal(ctx); err != nil {
		return ledger.Transaction{}, err
	}
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if tx.Kind != ledger.KindDebit || tx.ExternalRef != "" {
		return ledger.Transaction{}, ErrNotWithdrawal
	}
	return tx, nil
}

func (s *Service) checkOwner(ctx context.Context, p auth.Principal, tx ledger.Transaction) error {
	if p.IsAdmin() {
		return nil
	}
	w, err := s.store.GetWalletByID(ctx, tx.WalletID)
	if err != nil {
		return err
	}
	if w.UserID != p.UserID {
		return ErrForbidden
	}
	return nil
}

// creditForPayment finds the approved top-up confirmed with paymentID, falling back to the
// processor's order id for credits confirmed before the payment id was recorded.
func (s *Service) creditForPayment(ctx context.Context, paymentID string) (ledger.Transaction, error) {
	credit, err := s.store.FindCreditByPaymentRef(ctx, paymentID)
	if errors.Is(err, ledger.ErrNotFound) {
		var details gateway.PaymentDetails
		err = observeGateway("fetch_payment", func() error {
			var err error
			details, err = s.gateway.FetchPayment(ctx, paymentID)
			return err
		})
		if err != nil {
			return ledger.Transaction{}, err
		}
		credit, err = s.store.FindByExternalRef(ctx, details.OrderID)
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	if credit.Kind != ledger.KindCredit || credit.Status != ledger.StatusApproved {
		return ledger.Transaction{}, fmt.Errorf("%w: no approved top-up for payment %s", ledger.ErrNotFound, paymentID)
	}
	return credit, nil
}

// settlePendingRefunds settles refund debits for paymentID that the processor already paid out
// but the ledger could not settle at the time. It reports the first one matching amount so a
// retried refund completes the earlier attempt instead of refunding twice.
func (s *Service) settlePendingRefunds(ctx context.Context, walletID, paymentID string, amount int64) (RefundResult, bool, error) {
	var (
		match RefundResult
		found bool
	)
	f := ledger.Filter{Kind: ledger.KindDebit, Status: ledger.StatusPending, PaymentRef: paymentID, Limit: ledger.MaxPageSize}
	for {
		page, err := s.store.ListTransactions(ctx, walletID, f)
		if err != nil {
			return RefundResult{}, false, err
		}
		for _, tx := range page.Transactions {
			out, err := s.settle(ctx, ledger.Settlement{TransactionID: tx.ID, Outcome: ledger.StatusApproved, PaymentRef: paymentID})
			if err != nil {
				return RefundResult{RefundID: tx.ExternalRef, Transaction: tx}, false, fmt.Errorf("settle pending refund %s: %w", tx.ExternalRef, err)
			}
			s.logger.Info("pending refund settled",
				slog.String("refund_id", tx.ExternalRef),
				slog.String("transaction_id", tx.ID),
				slog.String("payment_id", paymentID),
			)
			if !found && tx.Amount == amount {
				match = RefundResult{RefundID: tx.ExternalRef, Transaction: out.Transaction, Wallet: out.Wallet}
				found = true
			}
		}
		if page.NextCursor == "" {
			return match, found, nil
		}
		f.Cursor = page.NextCursor
	}
}

func (s *Service) refundedAmount(ctx context.Context, walletID, paymentID string) (int64, error) {
	var total int64
	f := ledger.Filter{Kind: ledger.KindDebit, PaymentRef: paymentID, Limit: ledger.MaxPageSize}
	for {
		page, err := s.store.ListTransactions(ctx, walletID, f)
		if err != nil {
			return 0, err
		}
		for _, tx := range page.Transactions {
			if tx.Status != ledger.StatusRejected {
				total += tx.Amount
			}
		}
		if page.NextCursor == "" {
			return total, nil
		}
		f.Cursor = page.NextCursor
	}
}

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Principal{}, ErrUnauthenticated
	}
	return p, nil
}

func observeGateway(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = Kind(err)
	}
	metrics.GatewayCalls.WithLabelValues(op, result).Inc()
	return err
}
