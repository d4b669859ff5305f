package domain

import "context"

type OwnerRepository interface {
	Create(ctx context.Context, owner Owner) (Owner, error)
	GetByID(ctx context.Context, id string) (Owner, error)
	GetByUsername(ctx context.Context, username string) (Owner, error)
	// List returns owners ordered by username. A non-empty usernameFilter
	// keeps only usernames containing it, ignoring case.
	List(ctx context.Context, usernameFilter string) ([]Owner, error)
	SetActive(ctx context.Context, id string, active bool) (Owner, error)
}
