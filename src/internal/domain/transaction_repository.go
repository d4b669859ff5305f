package domain

import "context"

// TransactionRepository is the append-only transaction ledger. Reads are
// ordered newest first; equal timestamps fall back to reverse insertion order.
type TransactionRepository interface {
	Append(ctx context.Context, txn Transaction) (Transaction, error)
	HistoryFor(ctx context.Context, accountID string) ([]Transaction, error)
	AllOrdered(ctx context.Context) ([]Transaction, error)
}
