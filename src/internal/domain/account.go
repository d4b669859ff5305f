package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultAccountType = "savings"

// Account is a balance-holding ledger account. AccountNumber is unique and
// never changes once assigned; Balance is never negative.
type Account struct {
	ID            string
	OwnerID       string
	AccountNumber string
	AccountType   string
	Balance       decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
