package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/logger"
	"github.com/google/uuid"
)

type OwnerRepository struct {
	db *sql.DB
}

func NewOwnerRepository(db *sql.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

func (r *OwnerRepository) Create(ctx context.Context, owner domain.Owner) (domain.Owner, error) {
	logger.Info("owner repository create", logger.Fields{
		"username": owner.Username,
		"role":     owner.Role,
	})

	if owner.ID == "" {
		owner.ID = uuid.NewString()
	}

	const query = `
INSERT INTO owners (
	id,
	username,
	password_hash,
	role,
	is_active
) VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`

	if err := r.db.QueryRowContext(
		ctx,
		query,
		owner.ID,
		owner.Username,
		owner.PasswordHash,
		owner.Role,
		owner.IsActive,
	).Scan(&owner.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Owner{}, domain.ErrUsernameTaken
		}
		logger.Error("owner repository create failed", err, logger.Fields{
			"username": owner.Username,
		})
		return domain.Owner{}, fmt.Errorf("create owner: %w", err)
	}

	return owner, nil
}

func (r *OwnerRepository) GetByID(ctx context.Context, id string) (domain.Owner, error) {
	if !isUUID(id) {
		return domain.Owner{}, domain.ErrRecordNotFound
	}

	const query = `
SELECT id, username, password_hash, role, is_active, created_at
FROM owners
WHERE id = $1`

	return r.get(ctx, query, id)
}

func (r *OwnerRepository) GetByUsername(ctx context.Context, username string) (domain.Owner, error) {
	const query = `
SELECT id, username, password_hash, role, is_active, created_at
FROM owners
WHERE LOWER(username) = LOWER($1)`

	return r.get(ctx, query, username)
}

func (r *OwnerRepository) get(ctx context.Context, query string, arg string) (domain.Owner, error) {
	owner, err := scanOwner(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Owner{}, domain.ErrRecordNotFound
		}
		logger.Error("owner repository get failed", err, nil)
		return domain.Owner{}, fmt.Errorf("get owner: %w", err)
	}

	return owner, nil
}

func (r *OwnerRepository) List(ctx context.Context, usernameFilter string) ([]domain.Owner, error) {
	const query = `
SELECT id, username, password_hash, role, is_active, created_at
FROM owners
WHERE $1 = '' OR POSITION(LOWER($1) IN LOWER(username)) > 0
ORDER BY LOWER(username)`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(usernameFilter))
	if err != nil {
		logger.Error("owner repository list failed", err, logger.Fields{
			"usernameFilter": usernameFilter,
		})
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []domain.Owner
	for rows.Next() {
		owner, err := scanOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}

	return owners, nil
}

func (r *OwnerRepository) SetActive(ctx context.Context, id string, active bool) (domain.Owner, error) {
	logger.Info("owner repository set active", logger.Fields{
		"ownerId":  id,
		"isActive": active,
	})

	if !isUUID(id) {
		return domain.Owner{}, domain.ErrRecordNotFound
	}

	const query = `
UPDATE owners
SET is_active = $2
WHERE id = $1
RETURNING id, username, password_hash, role, is_active, created_at`

	owner, err := scanOwner(r.db.QueryRowContext(ctx, query, id, active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Owner{}, domain.ErrRecordNotFound
		}
		logger.Error("owner repository set active failed", err, logger.Fields{
			"ownerId": id,
		})
		return domain.Owner{}, fmt.Errorf("set owner active: %w", err)
	}

	return owner, nil
}

func scanOwner(row rowScanner) (domain.Owner, error) {
	var owner domain.Owner
	err := row.Scan(
		&owner.ID,
		&owner.Username,
		&owner.PasswordHash,
		&owner.Role,
		&owner.IsActive,
		&owner.CreatedAt,
	)
	return owner, err
}

var _ domain.OwnerRepository = (*OwnerRepository)(nil)
