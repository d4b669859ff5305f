package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore keeps accounts and their transaction log in process memory.
// It implements domain.AccountRepository and domain.TransactionRepository.
//
// mu guards the maps, the log and every committed account value. Each
// account additionally carries its own lock, held for the whole of a
// WithLocked unit, so units touching disjoint accounts run in parallel.
type LedgerStore struct {
	mu           sync.RWMutex
	accounts     map[string]*accountEntry // by account number
	numbersByID  map[string]string
	transactions []storedTransaction
	seq          int64
	now          func() time.Time
}

type accountEntry struct {
	lock    sync.Mutex
	account domain.Account
}

type storedTransaction struct {
	seq int64
	txn domain.Transaction
}

func NewLedgerStore() *LedgerStore {
	return NewLedgerStoreWithClock(func() time.Time { return time.Now().UTC() })
}

func NewLedgerStoreWithClock(now func() time.Time) *LedgerStore {
	return &LedgerStore{
		accounts:    make(map[string]*accountEntry),
		numbersByID: make(map[string]string),
		now:         now,
	}
}

func (s *LedgerStore) Create(_ context.Context, account domain.Account) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.AccountNumber]; exists {
		return domain.Account{}, &domain.AccountError{AccountNumber: account.AccountNumber, Err: domain.ErrConflict}
	}
	if account.Balance.IsNegative() {
		return domain.Account{}, fmt.Errorf("create account: negative opening balance")
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := s.now()
	account.CreatedAt = now
	account.UpdatedAt = now

	s.accounts[account.AccountNumber] = &accountEntry{account: account}
	s.numbersByID[account.ID] = account.AccountNumber
	return account, nil
}

func (s *LedgerStore) GetByAccountNumber(_ context.Context, accountNumber string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.accounts[accountNumber]
	if !ok {
		return domain.Account{}, &domain.AccountError{AccountNumber: accountNumber, Err: domain.ErrAccountNotFound}
	}
	return entry.account, nil
}

func (s *LedgerStore) GetByID(_ context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	number, ok := s.numbersByID[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("account id %s: %w", id, domain.ErrAccountNotFound)
	}
	return s.accounts[number].account, nil
}

func (s *LedgerStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Account
	for _, entry := range s.accounts {
		if entry.account.OwnerID == ownerID {
			out = append(out, entry.account)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (s *LedgerStore) List(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, entry := range s.accounts {
		out = append(out, entry.account)
	}
	sortAccounts(out)
	return out, nil
}

func (s *LedgerStore) ExistsByAccountNumber(_ context.Context, accountNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.accounts[accountNumber]
	return ok, nil
}

func (s *LedgerStore) WithLocked(ctx context.Context, accountNumbers []string, fn func(tx domain.LedgerTx) error) error {
	ordered := domain.CanonicalLockOrder(accountNumbers)

	entries := make([]*accountEntry, 0, len(ordered))
	s.mu.RLock()
	for _, number := range ordered {
		entry, ok := s.accounts[number]
		if !ok {
			s.mu.RUnlock()
			return &domain.AccountError{AccountNumber: number, Err: domain.ErrAccountNotFound}
		}
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	for _, entry := range entries {
		entry.lock.Lock()
	}
	defer func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].lock.Unlock()
		}
	}()

	unit := &unitOfWork{
		startedAt: s.now(),
		handles:   make(map[string]*domain.Account, len(entries)),
		original:  make(map[string]decimal.Decimal, len(entries)),
	}
	s.mu.RLock()
	for _, entry := range entries {
		handle := entry.account
		unit.handles[handle.AccountNumber] = &handle
		unit.original[handle.AccountNumber] = handle.Balance
	}
	s.mu.RUnlock()

	if err := fn(unit); err != nil {
		return err
	}

	return s.commit(ctx, entries, unit)
}

func (s *LedgerStore) commit(_ context.Context, entries []*accountEntry, unit *unitOfWork) error {
	for number, handle := range unit.handles {
		if handle.Balance.IsNegative() {
			return fmt.Errorf("commit ledger unit: account %s balance would be negative", number)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		handle := unit.handles[entry.account.AccountNumber]
		if handle.Balance.Equal(unit.original[entry.account.AccountNumber]) {
			continue
		}
		entry.account.Balance = handle.Balance
		entry.account.UpdatedAt = unit.startedAt
	}

	for _, txn := range unit.staged {
		s.seq++
		s.transactions = append(s.transactions, storedTransaction{seq: s.seq, txn: txn})
	}
	return nil
}

// Append writes a single record outside of any WithLocked unit.
func (s *LedgerStore) Append(_ context.Context, txn domain.Transaction) (domain.Transaction, error) {
	if err := validateTransaction(txn); err != nil {
		return domain.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	number, ok := s.numbersByID[txn.AccountID]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("append transaction: account id %s: %w", txn.AccountID, domain.ErrAccountNotFound)
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	txn.AccountNumber = number
	txn.CreatedAt = s.now()

	s.seq++
	s.transactions = append(s.transactions, storedTransaction{seq: s.seq, txn: txn})
	return txn, nil
}

func (s *LedgerStore) HistoryFor(_ context.Context, accountID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var selected []storedTransaction
	for _, stored := range s.transactions {
		if stored.txn.AccountID == accountID {
			selected = append(selected, stored)
		}
	}
	return newestFirst(selected), nil
}

func (s *LedgerStore) AllOrdered(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	selected := make([]storedTransaction, len(s.transactions))
	copy(selected, s.transactions)
	s.mu.RUnlock()

	return newestFirst(selected), nil
}

type unitOfWork struct {
	startedAt time.Time
	handles   map[string]*domain.Account
	original  map[string]decimal.Decimal
	staged    []domain.Transaction
}

func (u *unitOfWork) Account(accountNumber string) (*domain.Account, error) {
	handle, ok := u.handles[accountNumber]
	if !ok {
		return nil, fmt.Errorf("account %s is not locked in this unit", accountNumber)
	}
	return handle, nil
}

func (u *unitOfWork) Append(_ context.Context, txn domain.Transaction) (domain.Transaction, error) {
	if err := validateTransaction(txn); err != nil {
		return domain.Transaction{}, err
	}

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

	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	txn.AccountNumber = owner.AccountNumber
	txn.CreatedAt = u.startedAt

	u.staged = append(u.staged, txn)
	return txn, nil
}

func validateTransaction(txn domain.Transaction) error {
	if !txn.Kind.Valid() {
		return fmt.Errorf("append transaction: unknown kind %q", txn.Kind)
	}
	if !txn.Amount.IsPositive() {
		return fmt.Errorf("append transaction: %w", domain.ErrInvalidAmount)
	}
	return nil
}

func newestFirst(stored []storedTransaction) []domain.Transaction {
	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.txn.CreatedAt.Equal(b.txn.CreatedAt) {
			return a.txn.CreatedAt.After(b.txn.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]domain.Transaction, 0, len(stored))
	for _, st := range stored {
		out = append(out, st.txn)
	}
	return out
}

func sortAccounts(accounts []domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].AccountNumber < accounts[j].AccountNumber
	})
}

var (
	_ domain.AccountRepository     = (*LedgerStore)(nil)
	_ domain.TransactionRepository = (*LedgerStore)(nil)
)
