package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/api-sage/bank-ledger/src/internal/adapter/repository/memory"
	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/usecase/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

type stubPublisher struct {
	mu        sync.Mutex
	events    []domain.TransactionCompleted
	publishFn func(topic, key string, event any) error
}

func (p *stubPublisher) Publish(_ context.Context, topic string, key string, event any) error {
	if p.publishFn != nil {
		if err := p.publishFn(topic, key, event); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(domain.TransactionCompleted))
	return nil
}

func (p *stubPublisher) published() []domain.TransactionCompleted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TransactionCompleted(nil), p.events...)
}

type ledgerFixture struct {
	svc       *services.LedgerService
	store     *memory.LedgerStore
	publisher *stubPublisher
	actor     domain.Actor
}

func newLedgerFixture(t *testing.T) ledgerFixture {
	t.Helper()
	return newLedgerFixtureWithStore(t, memory.NewLedgerStore(), nil)
}

func newLedgerFixtureWithStore(t *testing.T, store *memory.LedgerStore, accounts domain.AccountRepository) ledgerFixture {
	t.Helper()

	owners := services.NewOwnerServiceWithCost(memory.NewOwnerRepository(), bcrypt.MinCost)
	_, err := owners.Register(context.Background(), "alice", "s3cret", domain.OwnerRoleUser)
	require.NoError(t, err)
	actor, err := owners.Authenticate(context.Background(), "alice", "s3cret")
	require.NoError(t, err)

	if accounts == nil {
		accounts = store
	}
	publisher := &stubPublisher{}
	svc := services.NewLedgerService(accounts, store, owners, nil, publisher, "ledger.events", "")

	return ledgerFixture{svc: svc, store: store, publisher: publisher, actor: actor}
}

func (f ledgerFixture) openAccount(t *testing.T) domain.Account {
	t.Helper()
	acc, err := f.svc.CreateAccount(context.Background(), f.actor, f.actor.OwnerID, "")
	require.NoError(t, err)
	return acc
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLedgerServiceDepositCreatesOneRecord(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.openAccount(t)

	assert.Equal(t, domain.DefaultAccountType, a.AccountType)
	assert.Len(t, a.AccountNumber, 10)
	assert.True(t, a.Balance.IsZero())

	balance, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount("100"), "")
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("100")), balance.String())

	history, err := f.svc.HistoryOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TransactionKindDeposit, history[0].Kind)
	assert.True(t, history[0].Amount.Equal(amount("100")))
	assert.Equal(t, "Deposit", history[0].Description)
	assert.Equal(t, f.actor.OwnerID, history[0].InitiatedBy)
	assert.Nil(t, history[0].CounterpartyAccountNumber)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, a.AccountNumber, events[0].AccountNumber)
	assert.True(t, events[0].Balance.Equal(amount("100")))
}

func TestLedgerServiceWithdrawInsufficientFundsLeavesLedgerUnchanged(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.openAccount(t)
	_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount("100"), "")
	require.NoError(t, err)

	before, err := f.svc.AuditTransactions(ctx)
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, f.actor, a.AccountNumber, amount("150"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.KindInsufficientFunds, domain.KindOf(err))

	balance, err := f.svc.BalanceOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("100")))

	after, err := f.svc.AuditTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLedgerServiceWithdrawSuccess(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.openAccount(t)
	_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount("100"), "")
	require.NoError(t, err)

	balance, err := f.svc.Withdraw(ctx, f.actor, a.AccountNumber, amount("100"), "cash")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	history, err := f.svc.HistoryOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TransactionKindWithdrawal, history[0].Kind)
	assert.Equal(t, "cash", history[0].Description)
}

func TestLedgerServiceTransferWritesMirroredRecords(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.openAccount(t)
	b := f.openAccount(t)
	_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount("100"), "")
	require.NoError(t, err)

	result, err := f.svc.Transfer(ctx, f.actor, a.AccountNumber, b.AccountNumber, amount("50"), "rent")
	require.NoError(t, err)
	assert.True(t, result.SourceBalance.Equal(amount("50")))
	assert.True(t, result.TargetBalance.Equal(amount("50")))

	aHistory, err := f.svc.HistoryOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	require.Len(t, aHistory, 2)
	out := aHistory[0]
	assert.Equal(t, domain.TransactionKindTransferOut, out.Kind)
	assert.True(t, out.Amount.Equal(amount("50")))
	require.NotNil(t, out.CounterpartyAccountNumber)
	assert.Equal(t, b.AccountNumber, *out.CounterpartyAccountNumber)
	assert.Equal(t, fmt.Sprintf("Transfer to %s (rent)", b.AccountNumber), out.Description)

	bHistory, err := f.svc.HistoryOf(ctx, b.AccountNumber)
	require.NoError(t, err)
	require.Len(t, bHistory, 1)
	in := bHistory[0]
	assert.Equal(t, domain.TransactionKindTransferIn, in.Kind)
	assert.True(t, in.Amount.Equal(out.Amount))
	require.NotNil(t, in.CounterpartyAccountNumber)
	assert.Equal(t, a.AccountNumber, *in.CounterpartyAccountNumber)
	assert.Equal(t, fmt.Sprintf("Transfer from %s (rent)", a.AccountNumber), in.Description)

	events := f.publisher.published()
	require.Len(t, events, 2)
	transfer := events[1]
	assert.Equal(t, []string{out.ID, in.ID}, transfer.TransactionIDs)
	require.NotNil(t, transfer.CounterpartyBalance)
	assert.True(t, transfer.CounterpartyBalance.Equal(amount("50")))
}

func TestLedgerServiceTransferRejections(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.openAccount(t)
	b := f.openAccount(t)
	_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount("20"), "")
	require.NoError(t, err)

	_, err = f.svc.Transfer(ctx, f.actor, a.AccountNumber, a.AccountNumber, amount("10"), "")
	assert.ErrorIs(t, err, domain.ErrSameAccount)

	_, err = f.svc.Transfer(ctx, f.actor, a.AccountNumber, b.AccountNumber, amount("0"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Transfer(ctx, f.actor, "0000000000", b.AccountNumber, amount("1"), "")
	var accErr *domain.AccountError
	require.True(t, errors.As(err, &accErr))
	assert.Equal(t, domain.SideSource, accErr.Side)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = f.svc.Transfer(ctx, f.actor, a.AccountNumber, "0000000000", amount("1"), "")
	require.True(t, errors.As(err, &accErr))
	assert.Equal(t, domain.SideTarget, accErr.Side)

	_, err = f.svc.Transfer(ctx, f.actor, a.AccountNumber, b.AccountNumber, amount("20.01"), "")
	require.True(t, errors.As(err, &accErr))
	assert.Equal(t, domain.SideSource, accErr.Side)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	aBalance, err := f.svc.BalanceOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.True(t, aBalance.Equal(amount("20")))
	bBalance, err := f.svc.BalanceOf(ctx, b.AccountNumber)
	require.NoError(t, err)
	assert.True(t, bBalance.IsZero())

	all, err := f.svc.AuditTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedgerServiceInvalidAmounts(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.openAccount(t)

	for _, raw := range []string{"-5", "0", "0.001"} {
		_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount(raw), "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, raw)

		_, err = f.svc.Withdraw(ctx, f.actor, a.AccountNumber, amount(raw), "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, raw)
	}

	balance, err := f.svc.BalanceOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	history, err := f.svc.HistoryOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLedgerServiceUnknownAccount(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.svc.Deposit(ctx, f.actor, "1234567890", amount("1"), "")
	assert.Equal(t, domain.KindAccountNotFound, domain.KindOf(err))

	_, err = f.svc.BalanceOf(ctx, "1234567890")
	assert.Equal(t, domain.KindAccountNotFound, domain.KindOf(err))

	_, err = f.svc.HistoryOf(ctx, "1234567890")
	assert.Equal(t, domain.KindAccountNotFound, domain.KindOf(err))
}

func TestLedgerServiceConcurrentDepositsAreNotLost(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.openAccount(t)

	const n = 64
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount("2.50"), "")
			return err
		})
	}
	require.NoError(t, g.Wait())

	balance, err := f.svc.BalanceOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("160")), balance.String())

	history, err := f.svc.HistoryOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Len(t, history, n)
}

func TestLedgerServiceConcurrentTransfersConserveTotal(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.openAccount(t)
	b := f.openAccount(t)
	_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount("100"), "")
	require.NoError(t, err)
	_, err = f.svc.Deposit(ctx, f.actor, b.AccountNumber, amount("100"), "")
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 40; i++ {
		src, dst := a.AccountNumber, b.AccountNumber
		if i%2 == 1 {
			src, dst = dst, src
		}
		g.Go(func() error {
			_, err := f.svc.Transfer(ctx, f.actor, src, dst, amount("7"), "")
			if errors.Is(err, domain.ErrInsufficientFunds) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	aBalance, err := f.svc.BalanceOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	bBalance, err := f.svc.BalanceOf(ctx, b.AccountNumber)
	require.NoError(t, err)
	assert.True(t, aBalance.Add(bBalance).Equal(amount("200")))
	assert.False(t, aBalance.IsNegative())
	assert.False(t, bBalance.IsNegative())
}

func TestLedgerServiceConcurrentCreateAccountYieldsUniqueNumbers(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	const n = 32
	numbers := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			acc, err := f.svc.CreateAccount(ctx, f.actor, f.actor.OwnerID, "current")
			numbers[i] = acc.AccountNumber
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]struct{}, n)
	for _, number := range numbers {
		_, dup := seen[number]
		assert.False(t, dup, number)
		seen[number] = struct{}{}
	}

	accounts, err := f.svc.AccountsOf(ctx, f.actor.OwnerID)
	require.NoError(t, err)
	assert.Len(t, accounts, n)

	all, err := f.svc.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, n)
}

func TestLedgerServiceCreateAccountUnknownOwner(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.svc.CreateAccount(context.Background(), f.actor, "no-such-owner", "")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

type conflictingStore struct {
	*memory.LedgerStore
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (s *conflictingStore) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	s.mu.Lock()
	s.attempts++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return domain.Account{}, &domain.AccountError{AccountNumber: account.AccountNumber, Err: domain.ErrConflict}
	}
	s.mu.Unlock()
	return s.LedgerStore.Create(ctx, account)
}

func TestLedgerServiceCreateAccountRetriesOnConflict(t *testing.T) {
	store := memory.NewLedgerStore()
	conflicting := &conflictingStore{LedgerStore: store, conflicts: 2}
	f := newLedgerFixtureWithStore(t, store, conflicting)

	acc, err := f.svc.CreateAccount(context.Background(), f.actor, f.actor.OwnerID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, acc.AccountNumber)
	assert.Equal(t, 3, conflicting.attempts)
}

func TestLedgerServiceCreateAccountGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := memory.NewLedgerStore()
	conflicting := &conflictingStore{LedgerStore: store, conflicts: 100}
	f := newLedgerFixtureWithStore(t, store, conflicting)

	_, err := f.svc.CreateAccount(context.Background(), f.actor, f.actor.OwnerID, "")
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, 5, conflicting.attempts)
}

type failingAppendStore struct {
	*memory.LedgerStore
	failOnAppend int
}

func (s *failingAppendStore) WithLocked(ctx context.Context, accountNumbers []string, fn func(tx domain.LedgerTx) error) error {
	return s.LedgerStore.WithLocked(ctx, accountNumbers, func(tx domain.LedgerTx) error {
		return fn(&failingTx{LedgerTx: tx, failOn: s.failOnAppend})
	})
}

type failingTx struct {
	domain.LedgerTx
	calls  int
	failOn int
}

func (t *failingTx) Append(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	t.calls++
	if t.calls == t.failOn {
		return domain.Transaction{}, errors.New("disk full")
	}
	return t.LedgerTx.Append(ctx, txn)
}

func TestLedgerServiceTransferRollsBackWhenAppendFails(t *testing.T) {
	store := memory.NewLedgerStore()
	failing := &failingAppendStore{LedgerStore: store}
	f := newLedgerFixtureWithStore(t, store, failing)
	ctx := context.Background()

	a := f.openAccount(t)
	b := f.openAccount(t)
	_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, amount("100"), "")
	require.NoError(t, err)
	eventsBefore := len(f.publisher.published())

	failing.failOnAppend = 2
	_, err = f.svc.Transfer(ctx, f.actor, a.AccountNumber, b.AccountNumber, amount("40"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.Equal(t, domain.KindStorageFailure, domain.KindOf(err))

	failing.failOnAppend = 0
	aBalance, err := f.svc.BalanceOf(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.True(t, aBalance.Equal(amount("100")))
	bBalance, err := f.svc.BalanceOf(ctx, b.AccountNumber)
	require.NoError(t, err)
	assert.True(t, bBalance.IsZero())

	all, err := f.svc.AuditTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, f.publisher.published(), eventsBefore)
}

func TestLedgerServiceSingleAccountMoveRollsBackWhenAppendFails(t *testing.T) {
	cases := []struct {
		name    string
		funded  string
		move    func(f ledgerFixture, accountNumber string) (decimal.Decimal, error)
		balance string
	}{
		{
			name:   "deposit",
			funded: "0",
			move: func(f ledgerFixture, accountNumber string) (decimal.Decimal, error) {
				return f.svc.Deposit(context.Background(), f.actor, accountNumber, amount("25"), "")
			},
			balance: "0",
		},
		{
			name:   "withdraw",
			funded: "50",
			move: func(f ledgerFixture, accountNumber string) (decimal.Decimal, error) {
				return f.svc.Withdraw(context.Background(), f.actor, accountNumber, amount("20"), "")
			},
			balance: "50",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewLedgerStore()
			failing := &failingAppendStore{LedgerStore: store}
			f := newLedgerFixtureWithStore(t, store, failing)
			ctx := context.Background()

			a := f.openAccount(t)
			if funded := amount(tc.funded); funded.IsPositive() {
				_, err := f.svc.Deposit(ctx, f.actor, a.AccountNumber, funded, "")
				require.NoError(t, err)
			}
			historyBefore, err := f.svc.HistoryOf(ctx, a.AccountNumber)
			require.NoError(t, err)
			eventsBefore := len(f.publisher.published())

			failing.failOnAppend = 1
			_, err = tc.move(f, a.AccountNumber)
			require.Error(t, err)
			assert.Equal(t, domain.KindStorageFailure, domain.KindOf(err))

			failing.failOnAppend = 0
			balance, err := f.svc.BalanceOf(ctx, a.AccountNumber)
			require.NoError(t, err)
			assert.True(t, balance.Equal(amount(tc.balance)), balance.String())

			history, err := f.svc.HistoryOf(ctx, a.AccountNumber)
			require.NoError(t, err)
			assert.Len(t, history, len(historyBefore))
			if tc.name == "deposit" {
				assert.Empty(t, history)
			}
			assert.Len(t, f.publisher.published(), eventsBefore)
		})
	}
}

func TestLedgerServicePublishFailureDoesNotFailOperation(t *testing.T) {
	f := newLedgerFixture(t)
	f.publisher.publishFn = func(string, string, any) error {
		return errors.New("broker unavailable")
	}
	a := f.openAccount(t)

	balance, err := f.svc.Deposit(context.Background(), f.actor, a.AccountNumber, amount("12.34"), "")
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("12.34")))
}
