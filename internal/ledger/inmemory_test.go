package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func mustWallet(t *testing.T, s Store, userID string) Wallet {
	t.Helper()
	w, err := s.CreateWallet(context.Background(), userID, "INR")
	if err != nil {
		t.Fatalf("create wallet %s: %v", userID, err)
	}
	return w
}

func mustAppend(t *testing.T, s Store, in NewTransaction) Transaction {
	t.Helper()
	tx, err := s.AppendTransaction(context.Background(), in)
	if err != nil {
		t.Fatalf("append transaction: %v", err)
	}
	return tx
}

func TestInMemoryStore_CreateWalletOncePerUser(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	w := mustWallet(t, s, "user-1")
	if w.Balance != 0 || w.Version != 0 || w.Currency != "INR" {
		t.Fatalf("unexpected new wallet: %+v", w)
	}
	if _, err := s.CreateWallet(ctx, "user-1", "INR"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if _, err := s.GetWallet(ctx, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryStore_AppendValidatesInput(t *testing.T) {
	s := NewInMemory()
	w := mustWallet(t, s, "user-1")
	ctx := context.Background()

	if _, err := s.AppendTransaction(ctx, NewTransaction{WalletID: w.ID, Kind: KindCredit, Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := s.AppendTransaction(ctx, NewTransaction{WalletID: w.ID, Kind: KindDebit, Amount: -5}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := s.AppendTransaction(ctx, NewTransaction{WalletID: "missing", Kind: KindCredit, Amount: 5}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	tx := mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindCredit, Amount: 500, ExternalRef: "order_1"})
	if tx.Status != StatusPending {
		t.Fatalf("expected pending, got %s", tx.Status)
	}
	if _, err := s.AppendTransaction(ctx, NewTransaction{WalletID: w.ID, Kind: KindCredit, Amount: 500, ExternalRef: "order_1"}); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference, got %v", err)
	}

	found, err := s.FindByExternalRef(ctx, "order_1")
	if err != nil || found.ID != tx.ID {
		t.Fatalf("find by external ref: %v (%+v)", err, found)
	}

	after, _ := s.GetWallet(ctx, "user-1")
	if after.Balance != 0 {
		t.Fatalf("pending transaction must not move balance, got %d", after.Balance)
	}
}

func TestInMemoryStore_SettleIsIdempotent(t *testing.T) {
	s := NewInMemory()
	w := mustWallet(t, s, "user-1")
	ctx := context.Background()
	tx := mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindCredit, Amount: 500})

	first, err := s.SettleTransaction(ctx, Settlement{TransactionID: tx.ID, Outcome: StatusApproved, PaymentRef: "pay_1"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !first.Applied || first.Wallet.Balance != 500 || first.Wallet.Version != 1 {
		t.Fatalf("unexpected first settlement: %+v", first)
	}
	if first.Transaction.PaymentRef != "pay_1" || first.Transaction.SettledAt == nil {
		t.Fatalf("settled transaction missing payment ref or timestamp: %+v", first.Transaction)
	}

	second, err := s.SettleTransaction(ctx, Settlement{TransactionID: tx.ID, Outcome: StatusApproved})
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.Applied {
		t.Fatal("second settlement must not apply")
	}
	if second.Wallet.Balance != 500 {
		t.Fatalf("expected balance to stay 500, got %d", second.Wallet.Balance)
	}

	// A terminal transaction cannot flip to the other outcome either.
	third, err := s.SettleTransaction(ctx, Settlement{TransactionID: tx.ID, Outcome: StatusRejected})
	if err != nil {
		t.Fatalf("third settle: %v", err)
	}
	if third.Transaction.Status != StatusApproved {
		t.Fatalf("expected approved to be immutable, got %s", third.Transaction.Status)
	}

	credit, err := s.FindCreditByPaymentRef(ctx, "pay_1")
	if err != nil || credit.ID != tx.ID {
		t.Fatalf("find credit by payment ref: %v", err)
	}
}

func TestInMemoryStore_DebitInsufficientFundsStaysPending(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w, err := SeedBalance(ctx, s, "user-1", "INR", 100)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	tx := mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindDebit, Amount: 101})

	if _, err := s.SettleTransaction(ctx, Settlement{TransactionID: tx.ID, Outcome: StatusApproved}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	got, _ := s.GetTransaction(ctx, tx.ID)
	if got.Status != StatusPending {
		t.Fatalf("expected transaction to remain pending, got %s", got.Status)
	}

	res, err := s.SettleTransaction(ctx, Settlement{TransactionID: tx.ID, Outcome: StatusRejected, Reason: "no funds"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if res.Wallet.Balance != 100 || res.Transaction.Reason != "no funds" {
		t.Fatalf("unexpected rejection result: %+v", res)
	}
}

func TestInMemoryStore_ExactBalanceDebit(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w, _ := SeedBalance(ctx, s, "user-1", "INR", 500)
	tx := mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindDebit, Amount: 500})

	res, err := s.SettleTransaction(ctx, Settlement{TransactionID: tx.ID, Outcome: StatusApproved})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.Wallet.Balance != 0 {
		t.Fatalf("expected zero balance, got %d", res.Wallet.Balance)
	}
}

func TestInMemoryStore_InvalidOutcome(t *testing.T) {
	s := NewInMemory()
	w := mustWallet(t, s, "user-1")
	tx := mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindCredit, Amount: 1})
	if _, err := s.SettleTransaction(context.Background(), Settlement{TransactionID: tx.ID, Outcome: StatusPending}); !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected invalid outcome, got %v", err)
	}
}

func TestInMemoryStore_ListTransactionsNewestFirstWithCursor(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := mustWallet(t, s, "user-1")

	var ids []string
	for i := 0; i < 5; i++ {
		tx := mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindCredit, Amount: int64(i + 1)})
		ids = append(ids, tx.ID)
	}

	first, err := s.ListTransactions(ctx, w.ID, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Transactions) != 2 || first.Transactions[0].ID != ids[4] || first.Transactions[1].ID != ids[3] {
		t.Fatalf("unexpected first page: %+v", first.Transactions)
	}
	if first.NextCursor != ids[3] {
		t.Fatalf("expected cursor %s, got %s", ids[3], first.NextCursor)
	}

	second, _ := s.ListTransactions(ctx, w.ID, Filter{Limit: 2, Cursor: first.NextCursor})
	third, _ := s.ListTransactions(ctx, w.ID, Filter{Limit: 2, Cursor: second.NextCursor})
	if len(third.Transactions) != 1 || third.Transactions[0].ID != ids[0] || third.NextCursor != "" {
		t.Fatalf("unexpected last page: %+v", third)
	}

	if _, err := s.ListTransactions(ctx, "missing", Filter{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryStore_ListPendingAcrossWallets(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, _ := SeedBalance(ctx, s, "user-a", "INR", 1_000)
	b, _ := SeedBalance(ctx, s, "user-b", "INR", 1_000)

	mustAppend(t, s, NewTransaction{WalletID: a.ID, Kind: KindDebit, Amount: 10})
	settled := mustAppend(t, s, NewTransaction{WalletID: b.ID, Kind: KindDebit, Amount: 20})
	mustAppend(t, s, NewTransaction{WalletID: b.ID, Kind: KindDebit, Amount: 30})
	mustAppend(t, s, NewTransaction{WalletID: b.ID, Kind: KindCredit, Amount: 40})
	if _, err := s.SettleTransaction(ctx, Settlement{TransactionID: settled.ID, Outcome: StatusApproved}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	page, err := s.ListPending(ctx, KindDebit, Filter{})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(page.Transactions) != 2 {
		t.Fatalf("expected 2 pending debits, got %d", len(page.Transactions))
	}
	if page.Transactions[0].Amount != 30 || page.Transactions[1].Amount != 10 {
		t.Fatalf("expected newest first, got %+v", page.Transactions)
	}
}

func TestInMemoryStore_ListPendingRequestsOnly(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w, _ := SeedBalance(ctx, s, "user-a", "INR", 1_000)

	request := mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindDebit, Amount: 10})
	mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindDebit, Amount: 20, ExternalRef: "rfnd_1", PaymentRef: "pay_1"})

	all, err := s.ListPending(ctx, KindDebit, Filter{})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(all.Transactions) != 2 {
		t.Fatalf("expected 2 pending debits, got %d", len(all.Transactions))
	}

	requests, err := s.ListPending(ctx, KindDebit, Filter{RequestsOnly: true})
	if err != nil {
		t.Fatalf("list pending requests: %v", err)
	}
	if len(requests.Transactions) != 1 || requests.Transactions[0].ID != request.ID {
		t.Fatalf("expected only the withdrawal request, got %+v", requests.Transactions)
	}
}

// Concurrent approvals against one wallet must neither lose updates nor overdraw.
func TestInMemoryStore_ConcurrentSettlementsConserveBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w, _ := SeedBalance(ctx, s, "user-1", "INR", 1_000)

	const workers = 20
	var debits, credits []Transaction
	for i := 0; i < workers; i++ {
		debits = append(debits, mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindDebit, Amount: 100}))
		credits = append(credits, mustAppend(t, s, NewTransaction{WalletID: w.ID, Kind: KindCredit, Amount: 30}))
	}

	settle := func(id string) {
		for {
			_, err := s.SettleTransaction(ctx, Settlement{TransactionID: id, Outcome: StatusApproved})
			if errors.Is(err, ErrConflict) {
				continue
			}
			if err != nil && !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("settle %s: %v", id, err)
			}
			return
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(id string) { defer wg.Done(); settle(id) }(debits[i].ID)
		go func(id string) { defer wg.Done(); settle(id) }(credits[i].ID)
	}
	wg.Wait()

	final, _ := s.GetWallet(ctx, "user-1")
	page, _ := s.ListTransactions(ctx, w.ID, Filter{Status: StatusApproved, Limit: MaxPageSize})
	var sum int64
	for _, tx := range page.Transactions {
		switch tx.Kind {
		case KindCredit:
			sum += tx.Amount
		case KindDebit:
			sum -= tx.Amount
		}
	}
	if final.Balance != sum {
		t.Fatalf("balance %d does not match approved entries %d", final.Balance, sum)
	}
	if final.Balance < 0 {
		t.Fatalf("balance went negative: %d", final.Balance)
	}
	if final.Version != int64(len(page.Transactions)) {
		t.Fatalf("expected version %d, got %d", len(page.Transactions), final.Version)
	}
}
