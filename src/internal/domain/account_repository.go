package domain

import (
	"context"
	"slices"
)

// AccountRepository is the durable keyed store of accounts.
type AccountRepository interface {
	// Create inserts account if its AccountNumber is free and fails with
	// ErrConflict otherwise. The check and the insert are one atomic step.
	Create(ctx context.Context, account Account) (Account, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Account, error)
	List(ctx context.Context) ([]Account, error)
	ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error)
	// WithLocked opens one atomic unit, takes an exclusive lock on every
	// named account in CanonicalLockOrder and runs fn. Balance changes made
	// through the handles and records appended through the unit are
	// committed together when fn returns nil and discarded otherwise.
	WithLocked(ctx context.Context, accountNumbers []string, fn func(tx LedgerTx) error) error
}

// LedgerTx is the unit of work handed to WithLocked callbacks.
type LedgerTx interface {
	// Account returns the mutable handle of a locked account.
	Account(accountNumber string) (*Account, error)
	// Append stages a transaction record in the same atomic unit as the
	// balance writes.
	Append(ctx context.Context, txn Transaction) (Transaction, error)
}

// CanonicalLockOrder returns the distinct account numbers in ascending
// order. Every multi-account lock acquisition uses this order.
func CanonicalLockOrder(accountNumbers []string) []string {
	ordered := slices.Clone(accountNumbers)
	slices.Sort(ordered)
	return slices.Compact(ordered)
}
