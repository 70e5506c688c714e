package ledger

import (
	"context"
	"errors"
)

// SeedBalance is a test helper that credits amount to the user's wallet through a normal
// append-and-approve cycle, creating the wallet first when needed.
func SeedBalance(ctx context.Context, s Store, userID, currency string, amount int64) (Wallet, error) {
	w, err := s.GetWallet(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		w, err = s.CreateWallet(ctx, userID, currency)
	}
	if err != nil {
		return Wallet{}, err
	}
	tx, err := s.AppendTransaction(ctx, NewTransaction{
		WalletID:    w.ID,
		Kind:        KindCredit,
		Amount:      amount,
		Description: "opening balance",
	})
	if err != nil {
		return Wallet{}, err
	}
	res, err := s.SettleTransaction(ctx, Settlement{TransactionID: tx.ID, Outcome: StatusApproved})
	if err != nil {
		return Wallet{}, err
	}
	return res.Wallet, nil
}
