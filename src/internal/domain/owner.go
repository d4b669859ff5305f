package domain

import "time"

type OwnerRole string

const (
	OwnerRoleUser  OwnerRole = "user"
	OwnerRoleAdmin OwnerRole = "admin"
)

type Owner struct {
	ID           string
	Username     string
	PasswordHash string
	Role         OwnerRole
	IsActive     bool
	CreatedAt    time.Time
}

// Actor identifies who is invoking a ledger operation. It is passed
// explicitly into every mutating call.
type Actor struct {
	OwnerID  string
	Username string
	Role     OwnerRole
}

// SystemActor is used by bootstrap code that acts without a logged-in owner.
var SystemActor = Actor{Username: "system", Role: OwnerRoleAdmin}

// Reference is the value recorded as InitiatedBy on transactions.
func (a Actor) Reference() string {
	if a.OwnerID != "" {
		return a.OwnerID
	}
	return a.Username
}
