package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindDeposit     TransactionKind = "deposit"
	TransactionKindWithdrawal  TransactionKind = "withdrawal"
	TransactionKindTransferOut TransactionKind = "transfer_out"
	TransactionKindTransferIn  TransactionKind = "transfer_in"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindDeposit, TransactionKindWithdrawal, TransactionKindTransferOut, TransactionKindTransferIn:
		return true
	default:
		return false
	}
}

// Transaction is an immutable ledger record. Amount is always a positive
// magnitude; the direction is implied by Kind.
type Transaction struct {
	ID                        string
	AccountID                 string
	AccountNumber             string
	Kind                      TransactionKind
	Amount                    decimal.Decimal
	Description               string
	CounterpartyAccountNumber *string
	InitiatedBy               string
	CreatedAt                 time.Time
}
