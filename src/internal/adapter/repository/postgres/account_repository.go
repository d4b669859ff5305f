package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, owner_id, account_number, account_type, balance, created_at, updated_at`

type AccountRepository struct {
	db           *sql.DB
	transactions *TransactionRepository
}

func NewAccountRepository(db *sql.DB, transactions *TransactionRepository) *AccountRepository {
	return &AccountRepository{db: db, transactions: transactions}
}

func (r *AccountRepository) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	logger.Info("account repository create", logger.Fields{
		"ownerId":       account.OwnerID,
		"accountNumber": account.AccountNumber,
		"accountType":   account.AccountType,
	})

	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	const query = `
INSERT INTO accounts (
	id,
	owner_id,
	account_number,
	account_type,
	balance
) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (account_number) DO NOTHING
RETURNING created_at, updated_at`

	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.ID,
		account.OwnerID,
		account.AccountNumber,
		account.AccountType,
		account.Balance,
	).Scan(&account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			logger.Info("account repository account number conflict", logger.Fields{
				"accountNumber": account.AccountNumber,
			})
			return domain.Account{}, &domain.AccountError{AccountNumber: account.AccountNumber, Err: domain.ErrConflict}
		}
		logger.Error("account repository create failed", err, logger.Fields{
			"ownerId":       account.OwnerID,
			"accountNumber": account.AccountNumber,
		})
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}

	logger.Info("account repository create success", logger.Fields{
		"accountId":     account.ID,
		"accountNumber": account.AccountNumber,
	})

	return account, nil
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`

	var account domain.Account
	if err := scanAccount(r.db.QueryRowContext(ctx, query, accountNumber), &account); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Info("account repository record not found", logger.Fields{
				"accountNumber": accountNumber,
			})
			return domain.Account{}, &domain.AccountError{AccountNumber: accountNumber, Err: domain.ErrAccountNotFound}
		}
		logger.Error("account repository get failed", err, logger.Fields{
			"accountNumber": accountNumber,
		})
		return domain.Account{}, fmt.Errorf("get account by account number: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	if !isUUID(id) {
		return domain.Account{}, fmt.Errorf("account id %s: %w", id, domain.ErrAccountNotFound)
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var account domain.Account
	if err := scanAccount(r.db.QueryRowContext(ctx, query, id), &account); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("account id %s: %w", id, domain.ErrAccountNotFound)
		}
		logger.Error("account repository get by id failed", err, logger.Fields{
			"accountId": id,
		})
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	if !isUUID(ownerID) {
		return nil, nil
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY created_at, account_number`
	return r.list(ctx, query, ownerID)
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, account_number`
	return r.list(ctx, query)
}

func (r *AccountRepository) list(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("account repository list failed", err, nil)
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := scanAccount(rows, &account); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, accountNumber).Scan(&exists); err != nil {
		logger.Error("account repository exists check failed", err, logger.Fields{
			"accountNumber": accountNumber,
		})
		return false, fmt.Errorf("check account number: %w", err)
	}

	return exists, nil
}

// WithLocked runs fn inside one database transaction after taking row locks
// on the named accounts in canonical order. Changed balances are written
// back and the transaction committed only if fn succeeds.
func (r *AccountRepository) WithLocked(ctx context.Context, accountNumbers []string, fn func(tx domain.LedgerTx) error) (err error) {
	ordered := domain.CanonicalLockOrder(accountNumbers)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("account repository begin tx failed", err, nil)
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	unit := &ledgerTx{
		tx:           tx,
		transactions: r.transactions,
		handles:      make(map[string]*domain.Account, len(ordered)),
		original:     make(map[string]decimal.Decimal, len(ordered)),
	}

	lockQuery := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 FOR UPDATE`
	for _, number := range ordered {
		var account domain.Account
		if err = scanAccount(tx.QueryRowContext(ctx, lockQuery, number), &account); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = &domain.AccountError{AccountNumber: number, Err: domain.ErrAccountNotFound}
				return err
			}
			err = fmt.Errorf("lock account %s: %w", number, err)
			return err
		}
		unit.handles[number] = &account
		unit.original[number] = account.Balance
	}

	if err = fn(unit); err != nil {
		return err
	}

	const updateBalance = `
UPDATE accounts
SET balance = $2::numeric,
    updated_at = NOW()
WHERE id = $1`
	for _, number := range ordered {
		handle := unit.handles[number]
		if handle.Balance.Equal(unit.original[number]) {
			continue
		}
		if handle.Balance.IsNegative() {
			err = fmt.Errorf("write balance of account %s: balance would be negative", number)
			return err
		}
		if _, err = execRequiredRows(ctx, tx, updateBalance, handle.ID, handle.Balance); err != nil {
			err = fmt.Errorf("write balance of account %s: %w", number, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		logger.Error("account repository commit tx failed", err, logger.Fields{
			"accountNumbers": ordered,
		})
		err = fmt.Errorf("commit ledger transaction: %w", err)
		return err
	}

	return nil
}

type ledgerTx struct {
	tx           *sql.Tx
	transactions *TransactionRepository
	handles      map[string]*domain.Account
	original     map[string]decimal.Decimal
}

func (u *ledgerTx) Account(accountNumber string) (*domain.Account, error) {
	handle, ok := u.handles[accountNumber]
	if !ok {
		return nil, fmt.Errorf("account %s is not locked in this unit", accountNumber)
	}
	return handle, nil
}

func (u *ledgerTx) Append(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	var owner *domain.Account
	for _, handle := range u.handles {
		if handle.ID == txn.AccountID {
			owner = handle
			break
		}
	}
	if owner == nil {
		return domain.Transaction{}, fmt.Errorf("append transaction: account id %s is not locked in this unit", txn.AccountID)
	}

	txn.AccountNumber = owner.AccountNumber
	return u.transactions.insert(ctx, u.tx, txn)
}

func execRequiredRows(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("execute ledger statement: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected: %w", err)
	}
	if rows == 0 {
		return 0, errors.New("ledger statement affected no rows")
	}
	return rows, nil
}

func scanAccount(row rowScanner, account *domain.Account) error {
	return row.Scan(
		&account.ID,
		&account.OwnerID,
		&account.AccountNumber,
		&account.AccountType,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
