package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/logger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName            = "github.com/api-sage/bank-ledger/ledger"
	maxCreateAttempts     = 5
	defaultDepositDesc    = "Deposit"
	defaultWithdrawalDesc = "Withdrawal"
	defaultTransferDesc   = "Transfer"
)

// OwnerDirectory answers whether an owner reference points at a registered owner.
type OwnerDirectory interface {
	Exists(ctx context.Context, ownerID string) (bool, error)
}

// TransferResult carries both balances after a committed transfer.
type TransferResult struct {
	SourceBalance decimal.Decimal
	TargetBalance decimal.Decimal
}

// LedgerService moves money between accounts. Every mutation runs inside a
// single AccountRepository.WithLocked unit so balance writes and transaction
// records become visible together or not at all.
type LedgerService struct {
	accountRepo        domain.AccountRepository
	transactionRepo    domain.TransactionRepository
	owners             OwnerDirectory
	generator          *AccountNumberGenerator
	publisher          domain.EventPublisher
	eventsTopic        string
	defaultAccountType string
}

// NewLedgerService wires the ledger to its stores. A nil generator gets the default one.
func NewLedgerService(
	accountRepo domain.AccountRepository,
	transactionRepo domain.TransactionRepository,
	owners OwnerDirectory,
	generator *AccountNumberGenerator,
	publisher domain.EventPublisher,
	eventsTopic string,
	defaultAccountType string,
) *LedgerService {
	if generator == nil {
		generator = NewAccountNumberGenerator(accountRepo)
	}
	accountType := strings.TrimSpace(defaultAccountType)
	if accountType == "" {
		accountType = domain.DefaultAccountType
	}

	return &LedgerService{
		accountRepo:        accountRepo,
		transactionRepo:    transactionRepo,
		owners:             owners,
		generator:          generator,
		publisher:          publisher,
		eventsTopic:        strings.TrimSpace(eventsTopic),
		defaultAccountType: accountType,
	}
}

// CreateAccount opens a zero-balance account with a fresh ten-digit number for ownerID.
func (s *LedgerService) CreateAccount(ctx context.Context, actor domain.Actor, ownerID string, accountType string) (account domain.Account, err error) {
	ownerID = strings.TrimSpace(ownerID)
	accountType = strings.TrimSpace(accountType)
	if accountType == "" {
		accountType = s.defaultAccountType
	}

	ctx, span := startSpan(ctx, "ledger.create_account", actor,
		attribute.String("owner.id", ownerID),
		attribute.String("account.type", accountType),
	)
	defer func() { endSpan(span, err) }()

	logger.Info("ledger service create account request", logger.Fields{
		"ownerId":     ownerID,
		"accountType": accountType,
		"initiatedBy": actor.Reference(),
	})

	exists, err := s.owners.Exists(ctx, ownerID)
	if err != nil {
		return domain.Account{}, s.fail("create account", err, logger.Fields{"ownerId": ownerID})
	}
	if !exists {
		return domain.Account{}, s.fail("create account", fmt.Errorf("owner %s: %w", ownerID, domain.ErrRecordNotFound), logger.Fields{
			"ownerId": ownerID,
		})
	}

	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		number, err := s.generator.Generate(ctx)
		if err != nil {
			return domain.Account{}, s.fail("create account", err, logger.Fields{"ownerId": ownerID})
		}

		created, err := s.accountRepo.Create(ctx, domain.Account{
			OwnerID:       ownerID,
			AccountNumber: number,
			AccountType:   accountType,
			Balance:       decimal.Zero,
		})
		if err == nil {
			span.SetAttributes(attribute.String("account.number", created.AccountNumber))
			logger.Info("ledger service create account success", logger.Fields{
				"accountId":     created.ID,
				"accountNumber": created.AccountNumber,
				"ownerId":       ownerID,
			})
			return created, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.Account{}, s.fail("create account", err, logger.Fields{"ownerId": ownerID})
		}

		logger.Info("ledger service create account number collision", logger.Fields{
			"accountNumber": number,
			"attempt":       attempt + 1,
		})
		lastErr = err
	}

	return domain.Account{}, s.fail("create account", lastErr, logger.Fields{"ownerId": ownerID})
}

// Deposit credits amount to the account and returns the new balance.
func (s *LedgerService) Deposit(ctx context.Context, actor domain.Actor, accountNumber string, amount decimal.Decimal, description string) (balance decimal.Decimal, err error) {
	accountNumber = strings.TrimSpace(accountNumber)
	ctx, span := startSpan(ctx, "ledger.deposit", actor,
		attribute.String("account.number", accountNumber),
		attribute.String("amount", amount.String()),
	)
	defer func() { endSpan(span, err) }()

	fields := logger.Fields{
		"accountNumber": accountNumber,
		"amount":        amount,
		"initiatedBy":   actor.Reference(),
	}
	logger.Info("ledger service deposit request", fields)

	if err := validateAmount(amount); err != nil {
		return decimal.Zero, s.fail("deposit", err, fields)
	}
	if _, err := s.accountRepo.GetByAccountNumber(ctx, accountNumber); err != nil {
		return decimal.Zero, s.fail("deposit", err, fields)
	}

	var recorded domain.Transaction
	err = s.accountRepo.WithLocked(ctx, []string{accountNumber}, func(tx domain.LedgerTx) error {
		account, err := tx.Account(accountNumber)
		if err != nil {
			return err
		}

		account.Balance = account.Balance.Add(amount)
		recorded, err = tx.Append(ctx, domain.Transaction{
			AccountID:   account.ID,
			Kind:        domain.TransactionKindDeposit,
			Amount:      amount,
			Description: orDefault(description, defaultDepositDesc),
			InitiatedBy: actor.Reference(),
		})
		if err != nil {
			return fmt.Errorf("append deposit record: %w", err)
		}

		balance = account.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, s.fail("deposit", err, fields)
	}

	logger.Info("ledger service deposit success", logger.Fields{
		"accountNumber": accountNumber,
		"amount":        amount,
		"balance":       balance,
		"transactionId": recorded.ID,
	})

	s.publish(ctx, domain.TransactionCompleted{
		TransactionIDs: []string{recorded.ID},
		Kind:           domain.TransactionKindDeposit,
		AccountNumber:  accountNumber,
		Amount:         amount,
		Balance:        balance,
		InitiatedBy:    actor.Reference(),
		OccurredAt:     recorded.CreatedAt,
	})

	return balance, nil
}

// Withdraw debits amount from the account and returns the new balance.
func (s *LedgerService) Withdraw(ctx context.Context, actor domain.Actor, accountNumber string, amount decimal.Decimal, description string) (balance decimal.Decimal, err error) {
	accountNumber = strings.TrimSpace(accountNumber)
	ctx, span := startSpan(ctx, "ledger.withdraw", actor,
		attribute.String("account.number", accountNumber),
		attribute.String("amount", amount.String()),
	)
	defer func() { endSpan(span, err) }()

	fields := logger.Fields{
		"accountNumber": accountNumber,
		"amount":        amount,
		"initiatedBy":   actor.Reference(),
	}
	logger.Info("ledger service withdraw request", fields)

	if err := validateAmount(amount); err != nil {
		return decimal.Zero, s.fail("withdraw", err, fields)
	}
	if _, err := s.accountRepo.GetByAccountNumber(ctx, accountNumber); err != nil {
		return decimal.Zero, s.fail("withdraw", err, fields)
	}

	var recorded domain.Transaction
	err = s.accountRepo.WithLocked(ctx, []string{accountNumber}, func(tx domain.LedgerTx) error {
		account, err := tx.Account(accountNumber)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(amount) {
			return &domain.AccountError{AccountNumber: accountNumber, Err: domain.ErrInsufficientFunds}
		}

		account.Balance = account.Balance.Sub(amount)
		recorded, err = tx.Append(ctx, domain.Transaction{
			AccountID:   account.ID,
			Kind:        domain.TransactionKindWithdrawal,
			Amount:      amount,
			Description: orDefault(description, defaultWithdrawalDesc),
			InitiatedBy: actor.Reference(),
		})
		if err != nil {
			return fmt.Errorf("append withdrawal record: %w", err)
		}

		balance = account.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, s.fail("withdraw", err, fields)
	}

	logger.Info("ledger service withdraw success", logger.Fields{
		"accountNumber": accountNumber,
		"amount":        amount,
		"balance":       balance,
		"transactionId": recorded.ID,
	})

	s.publish(ctx, domain.TransactionCompleted{
		TransactionIDs: []string{recorded.ID},
		Kind:           domain.TransactionKindWithdrawal,
		AccountNumber:  accountNumber,
		Amount:         amount,
		Balance:        balance,
		InitiatedBy:    actor.Reference(),
		OccurredAt:     recorded.CreatedAt,
	})

	return balance, nil
}

// Transfer moves amount from source to target atomically, recording one entry per side.
func (s *LedgerService) Transfer(ctx context.Context, actor domain.Actor, sourceNumber string, targetNumber string, amount decimal.Decimal, description string) (result TransferResult, err error) {
	sourceNumber = strings.TrimSpace(sourceNumber)
	targetNumber = strings.TrimSpace(targetNumber)
	ctx, span := startSpan(ctx, "ledger.transfer", actor,
		attribute.String("source.account.number", sourceNumber),
		attribute.String("target.account.number", targetNumber),
		attribute.String("amount", amount.String()),
	)
	defer func() { endSpan(span, err) }()

	fields := logger.Fields{
		"sourceAccountNumber": sourceNumber,
		"targetAccountNumber": targetNumber,
		"amount":              amount,
		"initiatedBy":         actor.Reference(),
	}
	logger.Info("ledger service transfer request", fields)

	if err := validateAmount(amount); err != nil {
		return TransferResult{}, s.fail("transfer", err, fields)
	}
	if sourceNumber == targetNumber {
		return TransferResult{}, s.fail("transfer", domain.ErrSameAccount, fields)
	}
	if err := s.resolveSide(ctx, sourceNumber, domain.SideSource); err != nil {
		return TransferResult{}, s.fail("transfer", err, fields)
	}
	if err := s.resolveSide(ctx, targetNumber, domain.SideTarget); err != nil {
		return TransferResult{}, s.fail("transfer", err, fields)
	}

	note := orDefault(description, defaultTransferDesc)
	var outRecord, inRecord domain.Transaction
	err = s.accountRepo.WithLocked(ctx, []string{sourceNumber, targetNumber}, func(tx domain.LedgerTx) error {
		source, err := tx.Account(sourceNumber)
		if err != nil {
			return err
		}
		target, err := tx.Account(targetNumber)
		if err != nil {
			return err
		}
		if source.Balance.LessThan(amount) {
			return &domain.AccountError{AccountNumber: sourceNumber, Side: domain.SideSource, Err: domain.ErrInsufficientFunds}
		}

		source.Balance = source.Balance.Sub(amount)
		target.Balance = target.Balance.Add(amount)

		outRecord, err = tx.Append(ctx, domain.Transaction{
			AccountID:                 source.ID,
			Kind:                      domain.TransactionKindTransferOut,
			Amount:                    amount,
			Description:               fmt.Sprintf("Transfer to %s (%s)", targetNumber, note),
			CounterpartyAccountNumber: &targetNumber,
			InitiatedBy:               actor.Reference(),
		})
		if err != nil {
			return fmt.Errorf("append transfer_out record: %w", err)
		}

		inRecord, err = tx.Append(ctx, domain.Transaction{
			AccountID:                 target.ID,
			Kind:                      domain.TransactionKindTransferIn,
			Amount:                    amount,
			Description:               fmt.Sprintf("Transfer from %s (%s)", sourceNumber, note),
			CounterpartyAccountNumber: &sourceNumber,
			InitiatedBy:               actor.Reference(),
		})
		if err != nil {
			return fmt.Errorf("append transfer_in record: %w", err)
		}

		result = TransferResult{SourceBalance: source.Balance, TargetBalance: target.Balance}
		return nil
	})
	if err != nil {
		return TransferResult{}, s.fail("transfer", err, fields)
	}

	logger.Info("ledger service transfer success", logger.Fields{
		"sourceAccountNumber": sourceNumber,
		"targetAccountNumber": targetNumber,
		"amount":              amount,
		"sourceBalance":       result.SourceBalance,
		"targetBalance":       result.TargetBalance,
	})

	targetBalance := result.TargetBalance
	s.publish(ctx, domain.TransactionCompleted{
		TransactionIDs:            []string{outRecord.ID, inRecord.ID},
		Kind:                      domain.TransactionKindTransferOut,
		AccountNumber:             sourceNumber,
		CounterpartyAccountNumber: targetNumber,
		Amount:                    amount,
		Balance:                   result.SourceBalance,
		CounterpartyBalance:       &targetBalance,
		InitiatedBy:               actor.Reference(),
		OccurredAt:                outRecord.CreatedAt,
	})

	return result, nil
}

// BalanceOf returns the current balance of the account.
func (s *LedgerService) BalanceOf(ctx context.Context, accountNumber string) (balance decimal.Decimal, err error) {
	accountNumber = strings.TrimSpace(accountNumber)
	ctx, span := startSpan(ctx, "ledger.balance_of", domain.Actor{},
		attribute.String("account.number", accountNumber),
	)
	defer func() { endSpan(span, err) }()

	account, err := s.accountRepo.GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		return decimal.Zero, s.fail("balance of", err, logger.Fields{"accountNumber": accountNumber})
	}

	return account.Balance, nil
}

// HistoryOf lists the account's transactions, newest first.
func (s *LedgerService) HistoryOf(ctx context.Context, accountNumber string) (history []domain.Transaction, err error) {
	accountNumber = strings.TrimSpace(accountNumber)
	ctx, span := startSpan(ctx, "ledger.history_of", domain.Actor{},
		attribute.String("account.number", accountNumber),
	)
	defer func() { endSpan(span, err) }()

	account, err := s.accountRepo.GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		return nil, s.fail("history of", err, logger.Fields{"accountNumber": accountNumber})
	}

	history, err = s.transactionRepo.HistoryFor(ctx, account.ID)
	if err != nil {
		return nil, s.fail("history of", err, logger.Fields{"accountNumber": accountNumber})
	}

	span.SetAttributes(attribute.Int("transactions.count", len(history)))
	return history, nil
}

// AccountsOf lists the accounts held by ownerID.
func (s *LedgerService) AccountsOf(ctx context.Context, ownerID string) (accounts []domain.Account, err error) {
	ownerID = strings.TrimSpace(ownerID)
	ctx, span := startSpan(ctx, "ledger.accounts_of", domain.Actor{},
		attribute.String("owner.id", ownerID),
	)
	defer func() { endSpan(span, err) }()

	accounts, err = s.accountRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, s.fail("accounts of", err, logger.Fields{"ownerId": ownerID})
	}
	return accounts, nil
}

// ListAccounts returns every account in the ledger.
func (s *LedgerService) ListAccounts(ctx context.Context) (accounts []domain.Account, err error) {
	ctx, span := startSpan(ctx, "ledger.list_accounts", domain.Actor{})
	defer func() { endSpan(span, err) }()

	accounts, err = s.accountRepo.List(ctx)
	if err != nil {
		return nil, s.fail("list accounts", err, nil)
	}
	return accounts, nil
}

// AuditTransactions returns every transaction across all accounts, newest first.
func (s *LedgerService) AuditTransactions(ctx context.Context) (transactions []domain.Transaction, err error) {
	ctx, span := startSpan(ctx, "ledger.audit_transactions", domain.Actor{})
	defer func() { endSpan(span, err) }()

	transactions, err = s.transactionRepo.AllOrdered(ctx)
	if err != nil {
		return nil, s.fail("audit transactions", err, nil)
	}
	return transactions, nil
}

func (s *LedgerService) resolveSide(ctx context.Context, accountNumber string, side domain.AccountSide) error {
	if _, err := s.accountRepo.GetByAccountNumber(ctx, accountNumber); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return &domain.AccountError{AccountNumber: accountNumber, Side: side, Err: domain.ErrAccountNotFound}
		}
		return err
	}
	return nil
}

// fail logs err and maps anything outside the taxonomy to ErrStorageFailure.
func (s *LedgerService) fail(operation string, err error, fields logger.Fields) error {
	switch domain.KindOf(err) {
	case domain.KindUnknown:
		err = fmt.Errorf("%w: %s: %w", domain.ErrStorageFailure, operation, err)
	case domain.KindStorageFailure:
	default:
		logger.Info("ledger service "+operation+" rejected", mergeFields(fields, logger.Fields{
			"reason":    err.Error(),
			"errorKind": domain.KindOf(err),
		}))
		return err
	}

	logger.Error("ledger service "+operation+" failed", err, fields)
	return err
}

func (s *LedgerService) publish(ctx context.Context, event domain.TransactionCompleted) {
	if s.publisher == nil || s.eventsTopic == "" {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := s.publisher.Publish(ctx, s.eventsTopic, event.AccountNumber, event); err != nil {
		logger.Error("ledger service publish event failed", err, logger.Fields{
			"topic":          s.eventsTopic,
			"kind":           event.Kind,
			"accountNumber":  event.AccountNumber,
			"transactionIds": event.TransactionIDs,
		})
	}
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount %s: %w", amount.String(), domain.ErrInvalidAmount)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("amount %s has more than two decimal places: %w", amount.String(), domain.ErrInvalidAmount)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func mergeFields(base, extra logger.Fields) logger.Fields {
	out := make(logger.Fields, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func startSpan(ctx context.Context, name string, actor domain.Actor, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ref := actor.Reference(); ref != "" {
		attrs = append(attrs, attribute.String("actor", ref))
	}
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records the outcome: taxonomy rejections become span events,
// storage failures mark the span as errored.
func endSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}

	kind := domain.KindOf(err)
	if kind == domain.KindStorageFailure || kind == domain.KindUnknown {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.AddEvent("ledger.rejected", trace.WithAttributes(
		attribute.String("error.kind", string(kind)),
		attribute.String("error.message", err.Error()),
	))
}
