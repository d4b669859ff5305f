package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionCompleted is emitted after a ledger operation has committed.
type TransactionCompleted struct {
	TransactionIDs            []string         `json:"transaction_ids"`
	Kind                      TransactionKind  `json:"kind"`
	AccountNumber             string           `json:"account_number"`
	CounterpartyAccountNumber string           `json:"counterparty_account_number,omitempty"`
	Amount                    decimal.Decimal  `json:"amount"`
	Balance                   decimal.Decimal  `json:"balance"`
	CounterpartyBalance       *decimal.Decimal `json:"counterparty_balance,omitempty"`
	InitiatedBy               string           `json:"initiated_by,omitempty"`
	OccurredAt                time.Time        `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}
