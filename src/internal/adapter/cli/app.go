package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/api-sage/bank-ledger/src/internal/commons"
	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/logger"
	"github.com/api-sage/bank-ledger/src/internal/usecase/service_interfaces"
	"github.com/shopspring/decimal"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	codeValidationFailed = string(domain.KindValidationFailed)
)

type command struct {
	summary string
	run     func(ctx context.Context, args []string) int
}

// App dispatches one command line invocation to the ledger and owner
// services and prints the outcome as a JSON response envelope.
type App struct {
	ledger   service_interfaces.LedgerService
	owners   service_interfaces.OwnerService
	migrate  func(ctx context.Context) error
	out      io.Writer
	commands map[string]command
}

func NewApp(
	ledger service_interfaces.LedgerService,
	owners service_interfaces.OwnerService,
	migrate func(ctx context.Context) error,
	out io.Writer,
) *App {
	a := &App{ledger: ledger, owners: owners, migrate: migrate, out: out}
	a.commands = map[string]command{
		"migrate":            {"apply pending schema migrations", a.runMigrate},
		"register":           {"register an owner", a.runRegister},
		"create-account":     {"open an account for an owner", a.runCreateAccount},
		"deposit":            {"deposit funds into an account", a.runDeposit},
		"withdraw":           {"withdraw funds from an account", a.runWithdraw},
		"transfer":           {"move funds between two accounts", a.runTransfer},
		"balance":            {"show an account balance", a.runBalance},
		"history":            {"list an account's transactions, newest first", a.runHistory},
		"accounts":           {"list the accounts of the authenticated owner", a.runAccounts},
		"audit-accounts":     {"list every account", a.runAuditAccounts},
		"audit-transactions": {"list every transaction, newest first", a.runAuditTransactions},
		"audit-owners":       {"list owners, optionally filtered by username", a.runAuditOwners},
		"toggle-owner":       {"activate or deactivate an owner (admin only)", a.runToggleOwner},
	}
	return a
}

func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		return a.usage("command is required")
	}

	cmd, ok := a.commands[args[0]]
	if !ok {
		return a.usage(fmt.Sprintf("unknown command %q", args[0]))
	}

	logger.Info("cli command", logger.Fields{
		"command": args[0],
	})
	return cmd.run(ctx, args[1:])
}

func (a *App) usage(problem string) int {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", name, a.commands[name].summary))
	}

	a.write(commons.CodedErrorResponse[struct{}](codeValidationFailed, problem, lines...))
	return exitUsage
}

func (a *App) runMigrate(ctx context.Context, args []string) int {
	fs := newFlagSet("migrate")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}
	if a.migrate == nil {
		return a.invalid(errors.New("migrations are not available"))
	}

	if err := a.migrate(ctx); err != nil {
		logger.Error("cli migrate failed", err, nil)
		a.write(commons.CodedErrorResponse[struct{}](string(domain.KindStorageFailure), "failed to apply migrations", err.Error()))
		return exitFailure
	}

	a.write(commons.SuccessResponse("migrations applied successfully", struct{}{}))
	return exitOK
}

func (a *App) runRegister(ctx context.Context, args []string) int {
	fs := newFlagSet("register")
	creds := credentialFlags(fs)
	role := fs.String("role", string(domain.OwnerRoleUser), "owner role: user or admin")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}
	if err := creds.Validate(); err != nil {
		return a.invalid(err)
	}

	owner, err := a.owners.Register(ctx, creds.Username, creds.Password, domain.OwnerRole(strings.ToLower(strings.TrimSpace(*role))))
	if err != nil {
		return failure[OwnerResponse](a, "failed to register owner", err)
	}

	a.write(commons.SuccessResponse("owner registered successfully", toOwnerResponse(owner)))
	return exitOK
}

func (a *App) runCreateAccount(ctx context.Context, args []string) int {
	fs := newFlagSet("create-account")
	creds := credentialFlags(fs)
	ownerID := fs.String("owner", "", "owner id; defaults to the authenticated owner")
	accountType := fs.String("type", "", "account type; defaults to savings")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}

	actor, code := a.authenticate(ctx, *creds)
	if code != exitOK {
		return code
	}

	owner := strings.TrimSpace(*ownerID)
	if owner == "" {
		owner = actor.OwnerID
	}

	account, err := a.ledger.CreateAccount(ctx, actor, owner, *accountType)
	if err != nil {
		return failure[AccountResponse](a, "failed to create account", err)
	}

	a.write(commons.SuccessResponse("account created successfully", toAccountResponse(account)))
	return exitOK
}

func (a *App) runDeposit(ctx context.Context, args []string) int {
	return a.runSingleAccountMove(ctx, "deposit", args, a.ledger.Deposit, "funds deposited successfully", "failed to deposit funds")
}

func (a *App) runWithdraw(ctx context.Context, args []string) int {
	return a.runSingleAccountMove(ctx, "withdraw", args, a.ledger.Withdraw, "funds withdrawn successfully", "failed to withdraw funds")
}

type singleAccountMove func(ctx context.Context, actor domain.Actor, accountNumber string, amount decimal.Decimal, description string) (decimal.Decimal, error)

func (a *App) runSingleAccountMove(ctx context.Context, name string, args []string, move singleAccountMove, successMessage, failureMessage string) int {
	fs := newFlagSet(name)
	creds := credentialFlags(fs)
	var req MoveFundsRequest
	fs.StringVar(&req.AccountNumber, "account", "", "10-digit account number")
	fs.StringVar(&req.Amount, "amount", "", "amount, at most two decimal places")
	fs.StringVar(&req.Description, "description", "", "optional description")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}
	if err := req.Validate(false); err != nil {
		return a.invalid(err)
	}

	amount, ok := a.parseAmount(req.Amount)
	if !ok {
		return exitFailure
	}

	actor, code := a.authenticate(ctx, *creds)
	if code != exitOK {
		return code
	}

	balance, err := move(ctx, actor, strings.TrimSpace(req.AccountNumber), amount, req.Description)
	if err != nil {
		return failure[BalanceResponse](a, failureMessage, err)
	}

	a.write(commons.SuccessResponse(successMessage, BalanceResponse{
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Balance:       balance.StringFixed(2),
	}))
	return exitOK
}

func (a *App) runTransfer(ctx context.Context, args []string) int {
	fs := newFlagSet("transfer")
	creds := credentialFlags(fs)
	var req MoveFundsRequest
	fs.StringVar(&req.SourceAccountNumber, "from", "", "source account number")
	fs.StringVar(&req.TargetAccountNumber, "to", "", "target account number")
	fs.StringVar(&req.Amount, "amount", "", "amount, at most two decimal places")
	fs.StringVar(&req.Description, "description", "", "optional description")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}
	if err := req.Validate(true); err != nil {
		return a.invalid(err)
	}

	amount, ok := a.parseAmount(req.Amount)
	if !ok {
		return exitFailure
	}

	actor, code := a.authenticate(ctx, *creds)
	if code != exitOK {
		return code
	}

	source := strings.TrimSpace(req.SourceAccountNumber)
	target := strings.TrimSpace(req.TargetAccountNumber)
	result, err := a.ledger.Transfer(ctx, actor, source, target, amount, req.Description)
	if err != nil {
		return failure[TransferResponse](a, "failed to transfer funds", err)
	}

	a.write(commons.SuccessResponse("funds transferred successfully", TransferResponse{
		SourceAccountNumber: source,
		TargetAccountNumber: target,
		Amount:              amount.StringFixed(2),
		SourceBalance:       result.SourceBalance.StringFixed(2),
		TargetBalance:       result.TargetBalance.StringFixed(2),
	}))
	return exitOK
}

func (a *App) runBalance(ctx context.Context, args []string) int {
	fs := newFlagSet("balance")
	accountNumber := fs.String("account", "", "10-digit account number")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}
	if !isTenDigitAccountNumber(*accountNumber) {
		return a.invalid(errors.New("account must be exactly 10 digits"))
	}

	number := strings.TrimSpace(*accountNumber)
	balance, err := a.ledger.BalanceOf(ctx, number)
	if err != nil {
		return failure[BalanceResponse](a, "failed to get balance", err)
	}

	a.write(commons.SuccessResponse("balance fetched successfully", BalanceResponse{
		AccountNumber: number,
		Balance:       balance.StringFixed(2),
	}))
	return exitOK
}

func (a *App) runHistory(ctx context.Context, args []string) int {
	fs := newFlagSet("history")
	accountNumber := fs.String("account", "", "10-digit account number")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}
	if !isTenDigitAccountNumber(*accountNumber) {
		return a.invalid(errors.New("account must be exactly 10 digits"))
	}

	history, err := a.ledger.HistoryOf(ctx, strings.TrimSpace(*accountNumber))
	if err != nil {
		return failure[[]TransactionResponse](a, "failed to get history", err)
	}

	a.write(commons.SuccessResponse("history fetched successfully", toTransactionResponses(history)))
	return exitOK
}

func (a *App) runAccounts(ctx context.Context, args []string) int {
	fs := newFlagSet("accounts")
	creds := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}

	actor, code := a.authenticate(ctx, *creds)
	if code != exitOK {
		return code
	}

	accounts, err := a.ledger.AccountsOf(ctx, actor.OwnerID)
	if err != nil {
		return failure[[]AccountResponse](a, "failed to list accounts", err)
	}

	a.write(commons.SuccessResponse("accounts fetched successfully", toAccountResponses(accounts)))
	return exitOK
}

func (a *App) runAuditAccounts(ctx context.Context, args []string) int {
	fs := newFlagSet("audit-accounts")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}

	accounts, err := a.ledger.ListAccounts(ctx)
	if err != nil {
		return failure[[]AccountResponse](a, "failed to list accounts", err)
	}

	a.write(commons.SuccessResponse("accounts fetched successfully", toAccountResponses(accounts)))
	return exitOK
}

func (a *App) runAuditOwners(ctx context.Context, args []string) int {
	fs := newFlagSet("audit-owners")
	search := fs.String("search", "", "keep usernames containing this text")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}

	owners, err := a.owners.ListOwners(ctx, *search)
	if err != nil {
		return failure[[]OwnerResponse](a, "failed to list owners", err)
	}

	a.write(commons.SuccessResponse("owners fetched successfully", toOwnerResponses(owners)))
	return exitOK
}

func (a *App) runToggleOwner(ctx context.Context, args []string) int {
	fs := newFlagSet("toggle-owner")
	creds := credentialFlags(fs)
	ownerID := fs.String("owner", "", "id of the owner to toggle")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}
	if strings.TrimSpace(*ownerID) == "" {
		return a.invalid(errors.New("owner is required"))
	}

	actor, code := a.authenticate(ctx, *creds)
	if code != exitOK {
		return code
	}

	owner, err := a.owners.ToggleActive(ctx, actor, strings.TrimSpace(*ownerID))
	if err != nil {
		return failure[OwnerResponse](a, "failed to toggle owner", err)
	}

	message := "owner deactivated successfully"
	if owner.IsActive {
		message = "owner activated successfully"
	}
	a.write(commons.SuccessResponse(message, toOwnerResponse(owner)))
	return exitOK
}

func (a *App) runAuditTransactions(ctx context.Context, args []string) int {
	fs := newFlagSet("audit-transactions")
	if err := fs.Parse(args); err != nil {
		return a.invalid(err)
	}

	transactions, err := a.ledger.AuditTransactions(ctx)
	if err != nil {
		return failure[[]TransactionResponse](a, "failed to list transactions", err)
	}

	a.write(commons.SuccessResponse("transactions fetched successfully", toTransactionResponses(transactions)))
	return exitOK
}

func (a *App) authenticate(ctx context.Context, creds Credentials) (domain.Actor, int) {
	if err := creds.Validate(); err != nil {
		return domain.Actor{}, a.invalid(err)
	}

	actor, err := a.owners.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		return domain.Actor{}, failure[struct{}](a, "authentication failed", err)
	}
	return actor, exitOK
}

func (a *App) parseAmount(raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		a.write(commons.CodedErrorResponse[struct{}](string(domain.KindInvalidAmount), "validation failed", "amount must be a decimal number"))
		return decimal.Zero, false
	}
	return amount, true
}

func (a *App) invalid(err error) int {
	a.write(commons.CodedErrorResponse[struct{}](codeValidationFailed, "validation failed", err.Error()))
	return exitUsage
}

func (a *App) write(payload any) {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		logger.Error("cli write response failed", err, nil)
	}
}

func failure[T any](a *App, message string, err error) int {
	kind := domain.KindOf(err)
	if kind == domain.KindUnknown {
		logger.Error("cli command failed", err, nil)
	}
	a.write(commons.CodedErrorResponse[T](string(kind), messageFor(kind, message), err.Error()))
	return exitFailure
}

func messageFor(kind domain.ErrorKind, fallback string) string {
	switch kind {
	case domain.KindInvalidAmount:
		return "Invalid amount"
	case domain.KindAccountNotFound:
		return "Account not found"
	case domain.KindInsufficientFunds:
		return "Insufficient funds"
	case domain.KindSameAccount:
		return "Source and target account cannot be the same"
	case domain.KindNotFound:
		return "Owner not found"
	case domain.KindUsernameTaken:
		return "Username already exists"
	case domain.KindInvalidCredentials:
		return "Invalid username or password"
	case domain.KindOwnerInactive:
		return "Owner is inactive"
	case domain.KindValidationFailed:
		return "validation failed"
	case domain.KindForbidden:
		return "Admin role required"
	default:
		return fallback
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func credentialFlags(fs *flag.FlagSet) *Credentials {
	creds := &Credentials{}
	fs.StringVar(&creds.Username, "username", "", "owner username")
	fs.StringVar(&creds.Password, "password", "", "owner password")
	return creds
}
