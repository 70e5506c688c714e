package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]Wallet // by wallet id
	walletByUser map[string]string
	transactions map[string]Transaction
	byWallet     map[string][]string
	byExternal   map[string]string
}

// NewInMemory creates a concurrency-safe in-memory ledger store useful for unit tests
// and local development. Settlement follows the same read/compare-and-swap protocol as
// the Postgres store, so version conflicts surface under contention.
func NewInMemory() Store {
	return &inMemoryStore{
		wallets:      make(map[string]Wallet),
		walletByUser: make(map[string]string),
		transactions: make(map[string]Transaction),
		byWallet:     make(map[string][]string),
		byExternal:   make(map[string]string),
	}
}

func (s *inMemoryStore) GetWallet(_ context.Context, userID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.walletByUser[userID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return s.wallets[id], nil
}

func (s *inMemoryStore) GetWalletByID(_ context.Context, walletID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (s *inMemoryStore) CreateWallet(_ context.Context, userID, currency string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.walletByUser[userID]; exists {
		return Wallet{}, ErrAlreadyExists
	}
	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.walletByUser[userID] = w.ID
	return w, nil
}

func (s *inMemoryStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (s *inMemoryStore) FindByExternalRef(_ context.Context, ref string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[ref]
	if !ok || ref == "" {
		return Transaction{}, ErrNotFound
	}
	return s.transactions[id], nil
}

func (s *inMemoryStore) FindCreditByPaymentRef(_ context.Context, paymentRef string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if paymentRef == "" {
		return Transaction{}, ErrNotFound
	}
	for _, tx := range s.transactions {
		if tx.Kind == KindCredit && tx.PaymentRef == paymentRef {
			return tx, nil
		}
	}
	return Transaction{}, ErrNotFound
}

func (s *inMemoryStore) AppendTransaction(_ context.Context, in NewTransaction) (Transaction, error) {
	if err := validateNew(in); err != nil {
		return Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[in.WalletID]; !ok {
		return Transaction{}, ErrNotFound
	}
	if in.ExternalRef != "" {
		if _, exists := s.byExternal[in.ExternalRef]; exists {
			return Transaction{}, ErrDuplicateReference
		}
	}

	tx := Transaction{
		ID:          newTransactionID(),
		WalletID:    in.WalletID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Description: in.Description,
		Status:      StatusPending,
		ExternalRef: in.ExternalRef,
		PaymentRef:  in.PaymentRef,
		CreatedAt:   time.Now().UTC(),
	}
	s.transactions[tx.ID] = tx
	s.byWallet[tx.WalletID] = append(s.byWallet[tx.WalletID], tx.ID)
	if tx.ExternalRef != "" {
		s.byExternal[tx.ExternalRef] = tx.ID
	}
	return tx, nil
}

func (s *inMemoryStore) SettleTransaction(_ context.Context, in Settlement) (SettleResult, error) {
	if !validOutcome(in.Outcome) {
		return SettleResult{}, ErrInvalidOutcome
	}

	// Read phase.
	s.mu.RLock()
	tx, ok := s.transactions[in.TransactionID]
	w := s.wallets[tx.WalletID]
	s.mu.RUnlock()
	if !ok {
		return SettleResult{}, ErrNotFound
	}
	if tx.Status.Terminal() {
		return SettleResult{Transaction: tx, Wallet: w}, nil
	}

	next, settled, err := plan(w, tx, in, time.Now().UTC())
	if err != nil {
		return SettleResult{}, err
	}

	// Write phase: compare-and-swap on the wallet version.
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.transactions[in.TransactionID]
	if current.Status.Terminal() {
		return SettleResult{Transaction: current, Wallet: s.wallets[current.WalletID]}, nil
	}
	if in.Outcome == StatusApproved {
		if s.wallets[w.ID].Version != w.Version {
			return SettleResult{}, ErrConflict
		}
		s.wallets[w.ID] = next
	}
	s.transactions[settled.ID] = settled
	return SettleResult{Transaction: settled, Wallet: s.wallets[w.ID], Applied: true}, nil
}

func (s *inMemoryStore) ListTransactions(_ context.Context, walletID string, f Filter) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.wallets[walletID]; !ok {
		return Page{}, ErrNotFound
	}
	ids := s.byWallet[walletID]
	candidates := make([]Transaction, 0, len(ids))
	for _, id := range ids {
		tx := s.transactions[id]
		if matches(tx, f) {
			candidates = append(candidates, tx)
		}
	}
	return paginate(candidates, f), nil
}

func (s *inMemoryStore) ListPending(_ context.Context, kind Kind, f Filter) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f.Kind = kind
	f.Status = StatusPending
	var candidates []Transaction
	for _, tx := range s.transactions {
		if matches(tx, f) {
			candidates = append(candidates, tx)
		}
	}
	return paginate(candidates, f), nil
}

func matches(tx Transaction, f Filter) bool {
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.PaymentRef != "" && tx.PaymentRef != f.PaymentRef {
		return false
	}
	if f.RequestsOnly && tx.ExternalRef != "" {
		return false
	}
	if f.Cursor != "" && tx.ID >= f.Cursor {
		return false
	}
	return true
}

// paginate orders newest first (ULIDs sort by creation time) and cuts one page.
func paginate(txs []Transaction, f Filter) Page {
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID > txs[j].ID })
	size := f.PageSize()
	page := Page{}
	if len(txs) > size {
		txs = txs[:size]
		page.NextCursor = txs[size-1].ID
	}
	page.Transactions = txs
	return page
}
