package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrInvalidAmount      = errors.New("amount must be greater than zero with at most two decimal places")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSameAccount        = errors.New("source and target account cannot be the same")
	ErrConflict           = errors.New("account number already exists")
	ErrStorageFailure     = errors.New("storage failure")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrOwnerInactive      = errors.New("owner is inactive")
	ErrInvalidOwner       = errors.New("username and password are required")
	ErrInvalidRole        = errors.New("role must be user or admin")
	ErrAdminRequired      = errors.New("admin role required")
)

type ErrorKind string

const (
	KindInvalidAmount      ErrorKind = "INVALID_AMOUNT"
	KindAccountNotFound    ErrorKind = "ACCOUNT_NOT_FOUND"
	KindInsufficientFunds  ErrorKind = "INSUFFICIENT_FUNDS"
	KindSameAccount        ErrorKind = "SAME_ACCOUNT"
	KindConflict           ErrorKind = "CONFLICT"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindStorageFailure     ErrorKind = "STORAGE_FAILURE"
	KindUsernameTaken      ErrorKind = "USERNAME_TAKEN"
	KindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	KindOwnerInactive      ErrorKind = "OWNER_INACTIVE"
	KindValidationFailed   ErrorKind = "VALIDATION_FAILED"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindUnknown            ErrorKind = "UNKNOWN"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrAccountNotFound, KindAccountNotFound},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrSameAccount, KindSameAccount},
	{ErrConflict, KindConflict},
	{ErrRecordNotFound, KindNotFound},
	{ErrUsernameTaken, KindUsernameTaken},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrOwnerInactive, KindOwnerInactive},
	{ErrInvalidOwner, KindValidationFailed},
	{ErrInvalidRole, KindValidationFailed},
	{ErrAdminRequired, KindForbidden},
	{ErrStorageFailure, KindStorageFailure},
}

// KindOf classifies err into the closed error taxonomy. Nil yields "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

type AccountSide string

const (
	SideSource AccountSide = "source"
	SideTarget AccountSide = "target"
)

// AccountError ties a taxonomy error to the account it concerns.
type AccountError struct {
	AccountNumber string
	Side          AccountSide
	Err           error
}

func (e *AccountError) Error() string {
	if e.Side != "" {
		return fmt.Sprintf("%s account %s: %v", e.Side, e.AccountNumber, e.Err)
	}
	return fmt.Sprintf("account %s: %v", e.AccountNumber, e.Err)
}

func (e *AccountError) Unwrap() error {
	return e.Err
}
