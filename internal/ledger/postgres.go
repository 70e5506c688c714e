package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"

	walletColumns      = `id, user_id, balance, currency, version, created_at, updated_at`
	transactionColumns = `id, wallet_id, kind, amount, description, status, external_ref, payment_ref, reason, created_at, settled_at`
)

// PostgresStore persists wallets and transactions in PostgreSQL. Balance updates are
// guarded by the wallet version column rather than row locks.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store. The pool is owned by the caller.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetWallet returns the wallet owned by userID.
func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

// GetWalletByID returns a wallet by its identifier.
func (s *PostgresStore) GetWalletByID(ctx context.Context, walletID string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row)
}

// CreateWallet inserts an empty wallet for userID.
func (s *PostgresStore) CreateWallet(ctx context.Context, userID, currency string) (Wallet, error) {
	now := time.Now().UTC()
	w := Wallet{ID: uuid.NewString(), UserID: userID, Currency: currency, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, user_id, balance, currency, version, created_at, updated_at)
        VALUES ($1, $2, 0, $3, 0, $4, $4)`, w.ID, w.UserID, w.Currency, now)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return Wallet{}, ErrAlreadyExists
		}
		return Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	return w, nil
}

// GetTransaction fetches a transaction by id.
func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// FindByExternalRef fetches the transaction tagged with a gateway order or refund id.
func (s *PostgresStore) FindByExternalRef(ctx context.Context, ref string) (Transaction, error) {
	if ref == "" {
		return Transaction{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE external_ref = $1`, ref)
	return scanTransaction(row)
}

// FindCreditByPaymentRef fetches the top-up credit confirmed with the given gateway payment id.
func (s *PostgresStore) FindCreditByPaymentRef(ctx context.Context, paymentRef string) (Transaction, error) {
	if paymentRef == "" {
		return Transaction{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions
        WHERE payment_ref = $1 AND kind = 'CREDIT' ORDER BY id LIMIT 1`, paymentRef)
	return scanTransaction(row)
}

// AppendTransaction records a PENDING transaction. No balance is touched.
func (s *PostgresStore) AppendTransaction(ctx context.Context, in NewTransaction) (Transaction, error) {
	if err := validateNew(in); err != nil {
		return Transaction{}, err
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

	cmd, err := s.db.Exec(ctx, `INSERT INTO wallet_transactions
        (id, wallet_id, kind, amount, description, status, external_ref, payment_ref, reason, created_at)
        SELECT $1, w.id, $2, $3, $4, $5, $6, $7, '', $8 FROM wallets w WHERE w.id = $9`,
		tx.ID, string(tx.Kind), tx.Amount, tx.Description, string(tx.Status), tx.ExternalRef, tx.PaymentRef, tx.CreatedAt, tx.WalletID)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return Transaction{}, ErrDuplicateReference
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

// SettleTransaction moves a PENDING transaction to its terminal state and, for approvals,
// applies the balance change with a version-guarded update in the same database transaction.
func (s *PostgresStore) SettleTransaction(ctx context.Context, in Settlement) (SettleResult, error) {
	if !validOutcome(in.Outcome) {
		return SettleResult{}, ErrInvalidOutcome
	}

	dbTx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SettleResult{}, err
	}
	defer dbTx.Rollback(ctx) // nolint:errcheck

	current, err := scanTransaction(dbTx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, in.TransactionID))
	if err != nil {
		return SettleResult{}, err
	}
	w, err := scanWallet(dbTx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, current.WalletID))
	if err != nil {
		return SettleResult{}, err
	}
	if current.Status.Terminal() {
		return SettleResult{Transaction: current, Wallet: w}, nil
	}

	next, settled, err := plan(w, current, in, time.Now().UTC())
	if err != nil {
		return SettleResult{}, err
	}

	if in.Outcome == StatusApproved {
		cmd, err := dbTx.Exec(ctx, `UPDATE wallets SET balance = $1, version = $2, updated_at = $3
            WHERE id = $4 AND version = $5`, next.Balance, next.Version, next.UpdatedAt, w.ID, w.Version)
		if err != nil {
			if isPgCode(err, pgCheckViolation) {
				return SettleResult{}, ErrInsufficientFunds
			}
			return SettleResult{}, fmt.Errorf("update wallet balance: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return SettleResult{}, ErrConflict
		}
	}

	cmd, err := dbTx.Exec(ctx, `UPDATE wallet_transactions
        SET status = $1, payment_ref = $2, reason = $3, settled_at = $4
        WHERE id = $5 AND status = 'PENDING'`,
		string(settled.Status), settled.PaymentRef, settled.Reason, settled.SettledAt, settled.ID)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return SettleResult{}, ErrDuplicateReference
		}
		return SettleResult{}, fmt.Errorf("update transaction status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		// Another settlement of the same entry won the race; the retry observes the terminal state.
		return SettleResult{}, ErrConflict
	}

	if err := dbTx.Commit(ctx); err != nil {
		return SettleResult{}, err
	}
	return SettleResult{Transaction: settled, Wallet: next, Applied: true}, nil
}

// ListTransactions returns a newest-first page of the wallet's transactions.
func (s *PostgresStore) ListTransactions(ctx context.Context, walletID string, f Filter) (Page, error) {
	if _, err := s.GetWalletByID(ctx, walletID); err != nil {
		return Page{}, err
	}
	size := f.PageSize()
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions
        WHERE wallet_id = $1
          AND ($2::text = '' OR kind = $2::text)
          AND ($3::text = '' OR status = $3::text)
          AND ($4::text = '' OR payment_ref = $4::text)
          AND ($5::text = '' OR id < $5::text)
          AND (NOT $6::bool OR external_ref = '')
        ORDER BY id DESC
        LIMIT $7`, walletID, string(f.Kind), string(f.Status), f.PaymentRef, f.Cursor, f.RequestsOnly, size+1)
	if err != nil {
		return Page{}, err
	}
	return collectPage(rows, size)
}

// ListPending returns a newest-first page of PENDING transactions of the given kind across wallets.
func (s *PostgresStore) ListPending(ctx context.Context, kind Kind, f Filter) (Page, error) {
	size := f.PageSize()
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions
        WHERE status = 'PENDING' AND kind = $1
          AND ($2::text = '' OR id < $2::text)
          AND (NOT $3::bool OR external_ref = '')
        ORDER BY id DESC
        LIMIT $4`, string(kind), f.Cursor, f.RequestsOnly, size+1)
	if err != nil {
		return Page{}, err
	}
	return collectPage(rows, size)
}

func collectPage(rows pgx.Rows, size int) (Page, error) {
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return Page{}, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	page := Page{}
	if len(txs) > size {
		txs = txs[:size]
		page.NextCursor = txs[size-1].ID
	}
	page.Transactions = txs
	return page, nil
}

func scanWallet(row rowScanner) (Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		tx        Transaction
		kind      string
		status    string
		settledAt *time.Time
	)
	if err := row.Scan(&tx.ID, &tx.WalletID, &kind, &tx.Amount, &tx.Description, &status,
		&tx.ExternalRef, &tx.PaymentRef, &tx.Reason, &tx.CreatedAt, &settledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	tx.Kind = Kind(kind)
	tx.Status = Status(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	if settledAt != nil {
		utc := settledAt.UTC()
		tx.SettledAt = &utc
	}
	return tx, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
