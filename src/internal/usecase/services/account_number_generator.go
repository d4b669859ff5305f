package services

import (
	"context"
	"fmt"
	"math/rand"
)

const accountNumberSpace = 10_000_000_000

type accountNumberChecker interface {
	ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error)
}

// AccountNumberGenerator draws 10-digit account numbers and resamples until
// the store reports the candidate as unused.
type AccountNumberGenerator struct {
	accounts accountNumberChecker
	draw     func() string
}

func NewAccountNumberGenerator(accounts accountNumberChecker) *AccountNumberGenerator {
	return NewAccountNumberGeneratorWithSource(accounts, randomAccountNumber)
}

func NewAccountNumberGeneratorWithSource(accounts accountNumberChecker, draw func() string) *AccountNumberGenerator {
	return &AccountNumberGenerator{accounts: accounts, draw: draw}
}

// Generate returns a number no existing account holds at the time of the
// check. Create still has the final word through its conditional insert.
func (g *AccountNumberGenerator) Generate(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate := g.draw()
		exists, err := g.accounts.ExistsByAccountNumber(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check account number availability: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
}

func randomAccountNumber() string {
	return fmt.Sprintf("%010d", rand.Int63n(accountNumberSpace))
}
