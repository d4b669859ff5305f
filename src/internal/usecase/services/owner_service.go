package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

type OwnerService struct {
	ownerRepo domain.OwnerRepository
	cost      int
}

func NewOwnerService(ownerRepo domain.OwnerRepository) *OwnerService {
	return &OwnerService{ownerRepo: ownerRepo, cost: bcrypt.DefaultCost}
}

// NewOwnerServiceWithCost is NewOwnerService with an explicit bcrypt cost.
func NewOwnerServiceWithCost(ownerRepo domain.OwnerRepository, cost int) *OwnerService {
	return &OwnerService{ownerRepo: ownerRepo, cost: cost}
}

func (s *OwnerService) Register(ctx context.Context, username string, password string, role domain.OwnerRole) (domain.Owner, error) {
	logger.Info("owner service register request", logger.Fields{
		"payload": logger.SanitizePayload(map[string]string{
			"username": username,
			"password": password,
			"role":     string(role),
		}),
	})

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.Owner{}, domain.ErrInvalidOwner
	}
	switch role {
	case "":
		role = domain.OwnerRoleUser
	case domain.OwnerRoleUser, domain.OwnerRoleAdmin:
	default:
		return domain.Owner{}, fmt.Errorf("role %q: %w", role, domain.ErrInvalidRole)
	}

	hashed, err := s.hashPassword(password)
	if err != nil {
		logger.Error("owner service register hash password failed", err, nil)
		return domain.Owner{}, err
	}

	created, err := s.ownerRepo.Create(ctx, domain.Owner{
		Username:     username,
		PasswordHash: hashed,
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		logger.Error("owner service register repository failed", err, logger.Fields{
			"username": username,
		})
		return domain.Owner{}, err
	}

	logger.Info("owner service register success", logger.Fields{
		"ownerId":  created.ID,
		"username": created.Username,
		"role":     created.Role,
	})

	return created, nil
}

// Authenticate verifies the credentials and returns the Actor to pass into
// ledger operations.
func (s *OwnerService) Authenticate(ctx context.Context, username string, password string) (domain.Actor, error) {
	username = strings.TrimSpace(username)
	logger.Info("owner service authenticate request", logger.Fields{
		"username": username,
	})

	owner, err := s.ownerRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			logger.Info("owner service authenticate unknown username", logger.Fields{
				"username": username,
			})
			return domain.Actor{}, domain.ErrInvalidCredentials
		}
		logger.Error("owner service authenticate lookup failed", err, logger.Fields{
			"username": username,
		})
		return domain.Actor{}, fmt.Errorf("authenticate owner: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logger.Info("owner service authenticate password mismatch", logger.Fields{
				"username": username,
			})
			return domain.Actor{}, domain.ErrInvalidCredentials
		}
		wrappedErr := fmt.Errorf("verify owner password: %w", err)
		logger.Error("owner service authenticate compare failed", wrappedErr, logger.Fields{
			"username": username,
		})
		return domain.Actor{}, wrappedErr
	}

	if !owner.IsActive {
		return domain.Actor{}, domain.ErrOwnerInactive
	}

	return domain.Actor{OwnerID: owner.ID, Username: owner.Username, Role: owner.Role}, nil
}

// ListOwners returns every owner ordered by username. A non-empty filter keeps
// only usernames containing it, ignoring case.
func (s *OwnerService) ListOwners(ctx context.Context, usernameFilter string) ([]domain.Owner, error) {
	owners, err := s.ownerRepo.List(ctx, strings.TrimSpace(usernameFilter))
	if err != nil {
		logger.Error("owner service list owners failed", err, logger.Fields{
			"filter": usernameFilter,
		})
		return nil, fmt.Errorf("list owners: %w", err)
	}

	return owners, nil
}

// ToggleActive flips the owner's active flag. Only admins may call it.
func (s *OwnerService) ToggleActive(ctx context.Context, actor domain.Actor, ownerID string) (domain.Owner, error) {
	logger.Info("owner service toggle active request", logger.Fields{
		"ownerId": ownerID,
		"actor":   actor.Reference(),
	})

	if actor.Role != domain.OwnerRoleAdmin {
		return domain.Owner{}, domain.ErrAdminRequired
	}

	owner, err := s.ownerRepo.GetByID(ctx, ownerID)
	if err != nil {
		return domain.Owner{}, fmt.Errorf("toggle owner %s: %w", ownerID, err)
	}

	updated, err := s.ownerRepo.SetActive(ctx, owner.ID, !owner.IsActive)
	if err != nil {
		logger.Error("owner service toggle active failed", err, logger.Fields{
			"ownerId": ownerID,
		})
		return domain.Owner{}, fmt.Errorf("toggle owner %s: %w", ownerID, err)
	}

	logger.Info("owner service toggle active success", logger.Fields{
		"ownerId":  updated.ID,
		"username": updated.Username,
		"isActive": updated.IsActive,
	})

	return updated, nil
}

func (s *OwnerService) Exists(ctx context.Context, ownerID string) (bool, error) {
	if strings.TrimSpace(ownerID) == "" {
		return false, nil
	}

	if _, err := s.ownerRepo.GetByID(ctx, ownerID); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check owner exists: %w", err)
	}

	return true, nil
}

func (s *OwnerService) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hashed), nil
}
