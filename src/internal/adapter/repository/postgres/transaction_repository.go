package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/logger"
	"github.com/google/uuid"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Append writes one record in its own implicit transaction.
func (r *TransactionRepository) Append(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	if !isUUID(txn.AccountID) {
		return domain.Transaction{}, fmt.Errorf("append transaction: account id %s: %w", txn.AccountID, domain.ErrAccountNotFound)
	}
	if txn.AccountNumber == "" {
		const lookup = `SELECT account_number FROM accounts WHERE id = $1`
		if err := r.db.QueryRowContext(ctx, lookup, txn.AccountID).Scan(&txn.AccountNumber); err != nil {
			if err == sql.ErrNoRows {
				return domain.Transaction{}, fmt.Errorf("append transaction: account id %s: %w", txn.AccountID, domain.ErrAccountNotFound)
			}
			return domain.Transaction{}, fmt.Errorf("append transaction: resolve account: %w", err)
		}
	}
	return r.insert(ctx, r.db, txn)
}

func (r *TransactionRepository) insert(ctx context.Context, q queryRower, txn domain.Transaction) (domain.Transaction, error) {
	if !txn.Kind.Valid() {
		return domain.Transaction{}, fmt.Errorf("append transaction: unknown kind %q", txn.Kind)
	}
	if !txn.Amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("append transaction: %w", domain.ErrInvalidAmount)
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}

	logger.Info("transaction repository append", logger.Fields{
		"transactionId": txn.ID,
		"accountNumber": txn.AccountNumber,
		"kind":          txn.Kind,
		"amount":        txn.Amount,
	})

	const query = `
INSERT INTO transactions (
	id,
	account_id,
	kind,
	amount,
	description,
	counterparty_account_number,
	initiated_by
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`

	var description sql.NullString
	if txn.Description != "" {
		description = sql.NullString{String: txn.Description, Valid: true}
	}

	if err := q.QueryRowContext(
		ctx,
		query,
		txn.ID,
		txn.AccountID,
		txn.Kind,
		txn.Amount,
		description,
		txn.CounterpartyAccountNumber,
		txn.InitiatedBy,
	).Scan(&txn.CreatedAt); err != nil {
		logger.Error("transaction repository append failed", err, logger.Fields{
			"transactionId": txn.ID,
			"accountNumber": txn.AccountNumber,
		})
		return domain.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}

	return txn, nil
}

const transactionSelect = `
SELECT t.id,
       t.account_id,
       a.account_number,
       t.kind,
       t.amount,
       t.description,
       t.counterparty_account_number,
       t.initiated_by,
       t.created_at
FROM transactions t
JOIN accounts a ON a.id = t.account_id`

func (r *TransactionRepository) HistoryFor(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	if !isUUID(accountID) {
		return nil, nil
	}
	query := transactionSelect + `
WHERE t.account_id = $1
ORDER BY t.created_at DESC, t.seq DESC`
	return r.list(ctx, query, accountID)
}

func (r *TransactionRepository) AllOrdered(ctx context.Context) ([]domain.Transaction, error) {
	query := transactionSelect + `
ORDER BY t.created_at DESC, t.seq DESC`
	return r.list(ctx, query)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("transaction repository list failed", err, nil)
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return out, nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		txn          domain.Transaction
		description  sql.NullString
		counterparty sql.NullString
	)

	if err := row.Scan(
		&txn.ID,
		&txn.AccountID,
		&txn.AccountNumber,
		&txn.Kind,
		&txn.Amount,
		&description,
		&counterparty,
		&txn.InitiatedBy,
		&txn.CreatedAt,
	); err != nil {
		return domain.Transaction{}, err
	}

	if description.Valid {
		txn.Description = description.String
	}
	if counterparty.Valid {
		value := counterparty.String
		txn.CounterpartyAccountNumber = &value
	}

	return txn, nil
}

var _ domain.TransactionRepository = (*TransactionRepository)(nil)
