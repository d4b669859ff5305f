package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/google/uuid"
)

type OwnerRepository struct {
	mu         sync.RWMutex
	owners     map[string]domain.Owner
	byUsername map[string]string
}

func NewOwnerRepository() *OwnerRepository {
	return &OwnerRepository{
		owners:     make(map[string]domain.Owner),
		byUsername: make(map[string]string),
	}
}

func (r *OwnerRepository) Create(_ context.Context, owner domain.Owner) (domain.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(owner.Username)
	if _, exists := r.byUsername[key]; exists {
		return domain.Owner{}, domain.ErrUsernameTaken
	}

	if owner.ID == "" {
		owner.ID = uuid.NewString()
	}
	owner.CreatedAt = time.Now().UTC()

	r.owners[owner.ID] = owner
	r.byUsername[key] = owner.ID
	return owner, nil
}

func (r *OwnerRepository) GetByID(_ context.Context, id string) (domain.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[id]
	if !ok {
		return domain.Owner{}, domain.ErrRecordNotFound
	}
	return owner, nil
}

func (r *OwnerRepository) GetByUsername(_ context.Context, username string) (domain.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return domain.Owner{}, domain.ErrRecordNotFound
	}
	return r.owners[id], nil
}

func (r *OwnerRepository) List(_ context.Context, usernameFilter string) ([]domain.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter := strings.ToLower(strings.TrimSpace(usernameFilter))
	out := make([]domain.Owner, 0, len(r.owners))
	for _, owner := range r.owners {
		if filter != "" && !strings.Contains(strings.ToLower(owner.Username), filter) {
			continue
		}
		out = append(out, owner)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out, nil
}

func (r *OwnerRepository) SetActive(_ context.Context, id string, active bool) (domain.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[id]
	if !ok {
		return domain.Owner{}, domain.ErrRecordNotFound
	}
	owner.IsActive = active
	r.owners[id] = owner
	return owner, nil
}

var _ domain.OwnerRepository = (*OwnerRepository)(nil)
