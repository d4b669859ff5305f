package service_interfaces

import (
	"context"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/usecase/services"
	"github.com/shopspring/decimal"
)

type LedgerService interface {
	CreateAccount(ctx context.Context, actor domain.Actor, ownerID string, accountType string) (domain.Account, error)
	Deposit(ctx context.Context, actor domain.Actor, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	Withdraw(ctx context.Context, actor domain.Actor, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	Transfer(ctx context.Context, actor domain.Actor, sourceNumber string, targetNumber string, amount decimal.Decimal, description string) (services.TransferResult, error)
	BalanceOf(ctx context.Context, accountNumber string) (decimal.Decimal, error)
	HistoryOf(ctx context.Context, accountNumber string) ([]domain.Transaction, error)
	AccountsOf(ctx context.Context, ownerID string) ([]domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	AuditTransactions(ctx context.Context) ([]domain.Transaction, error)
}

var _ LedgerService = (*services.LedgerService)(nil)
