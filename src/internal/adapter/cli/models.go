package cli

import (
	"errors"
	"strings"
	"time"

	"github.com/api-sage/bank-ledger/src/internal/domain"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credentials) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Username) == "" {
		errs = append(errs, "username is required")
	}
	if c.Password == "" {
		errs = append(errs, "password is required")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

type MoveFundsRequest struct {
	AccountNumber       string `json:"accountNumber,omitempty"`
	SourceAccountNumber string `json:"sourceAccountNumber,omitempty"`
	TargetAccountNumber string `json:"targetAccountNumber,omitempty"`
	Amount              string `json:"amount"`
	Description         string `json:"description,omitempty"`
}

func (r MoveFundsRequest) Validate(transfer bool) error {
	var errs []string

	if transfer {
		if !isTenDigitAccountNumber(r.SourceAccountNumber) {
			errs = append(errs, "from must be exactly 10 digits")
		}
		if !isTenDigitAccountNumber(r.TargetAccountNumber) {
			errs = append(errs, "to must be exactly 10 digits")
		}
	} else if !isTenDigitAccountNumber(r.AccountNumber) {
		errs = append(errs, "account must be exactly 10 digits")
	}

	if strings.TrimSpace(r.Amount) == "" {
		errs = append(errs, "amount is required")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

type OwnerResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
}

type AccountResponse struct {
	ID            string `json:"id"`
	OwnerID       string `json:"ownerId"`
	AccountNumber string `json:"accountNumber"`
	AccountType   string `json:"accountType"`
	Balance       string `json:"balance"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

type BalanceResponse struct {
	AccountNumber string `json:"accountNumber"`
	Balance       string `json:"balance"`
}

type TransferResponse struct {
	SourceAccountNumber string `json:"sourceAccountNumber"`
	TargetAccountNumber string `json:"targetAccountNumber"`
	Amount              string `json:"amount"`
	SourceBalance       string `json:"sourceBalance"`
	TargetBalance       string `json:"targetBalance"`
}

type TransactionResponse struct {
	ID                        string `json:"id"`
	AccountNumber             string `json:"accountNumber"`
	Kind                      string `json:"kind"`
	Amount                    string `json:"amount"`
	Description               string `json:"description,omitempty"`
	CounterpartyAccountNumber string `json:"counterpartyAccountNumber,omitempty"`
	InitiatedBy               string `json:"initiatedBy,omitempty"`
	CreatedAt                 string `json:"createdAt"`
}

func toOwnerResponse(owner domain.Owner) OwnerResponse {
	return OwnerResponse{
		ID:        owner.ID,
		Username:  owner.Username,
		Role:      string(owner.Role),
		IsActive:  owner.IsActive,
		CreatedAt: owner.CreatedAt.Format(time.RFC3339),
	}
}

func toOwnerResponses(owners []domain.Owner) []OwnerResponse {
	out := make([]OwnerResponse, 0, len(owners))
	for _, owner := range owners {
		out = append(out, toOwnerResponse(owner))
	}
	return out
}

func toAccountResponse(account domain.Account) AccountResponse {
	return AccountResponse{
		ID:            account.ID,
		OwnerID:       account.OwnerID,
		AccountNumber: account.AccountNumber,
		AccountType:   account.AccountType,
		Balance:       account.Balance.StringFixed(2),
		CreatedAt:     account.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     account.UpdatedAt.Format(time.RFC3339),
	}
}

func toAccountResponses(accounts []domain.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, toAccountResponse(account))
	}
	return out
}

func toTransactionResponses(transactions []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(transactions))
	for _, txn := range transactions {
		item := TransactionResponse{
			ID:            txn.ID,
			AccountNumber: txn.AccountNumber,
			Kind:          string(txn.Kind),
			Amount:        txn.Amount.StringFixed(2),
			Description:   txn.Description,
			InitiatedBy:   txn.InitiatedBy,
			CreatedAt:     txn.CreatedAt.Format(time.RFC3339Nano),
		}
		if txn.CounterpartyAccountNumber != nil {
			item.CounterpartyAccountNumber = *txn.CounterpartyAccountNumber
		}
		out = append(out, item)
	}
	return out
}

func isTenDigitAccountNumber(accountNumber string) bool {
	accountNumber = strings.TrimSpace(accountNumber)
	if len(accountNumber) != 10 {
		return false
	}

	for _, ch := range accountNumber {
		if ch < '0' || ch > '9' {
			return false
		}
	}

	return true
}
