package service_interfaces

import (
	"context"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/usecase/services"
)

type OwnerService interface {
	Register(ctx context.Context, username string, password string, role domain.OwnerRole) (domain.Owner, error)
	Authenticate(ctx context.Context, username string, password string) (domain.Actor, error)
	Exists(ctx context.Context, ownerID string) (bool, error)
	ListOwners(ctx context.Context, usernameFilter string) ([]domain.Owner, error)
	ToggleActive(ctx context.Context, actor domain.Actor, ownerID string) (domain.Owner, error)
}

var _ OwnerService = (*services.OwnerService)(nil)
