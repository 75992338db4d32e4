package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"account-portal/internal/domain"
)

// MemoryAccountRepository implementa AccountRepository en memoria; respeta las
// mismas señales de error que la versión Postgres (pgx.ErrNoRows, ErrDuplicate).
type MemoryAccountRepository struct {
	mu     sync.RWMutex
	byID   map[string]domain.User
	byMail map[string]string
	byAuth map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:   make(map[string]domain.User),
		byMail: make(map[string]string),
		byAuth: make(map[string]string),
	}
}

func authKey(provider, subject string) string {
	return provider + "|" + subject
}

func (r *MemoryAccountRepository) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mail := strings.ToLower(user.Email)
	if _, ok := r.byMail[mail]; ok {
		return ErrDuplicate
	}
	if user.AuthSubject != "" {
		if _, ok := r.byAuth[authKey(user.AuthProvider, user.AuthSubject)]; ok {
			return ErrDuplicate
		}
		r.byAuth[authKey(user.AuthProvider, user.AuthSubject)] = user.ID
	}
	r.byID[user.ID] = user
	r.byMail[mail] = user.ID
	return nil
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (r *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	id, ok := r.byMail[strings.ToLower(email)]
	r.mu.RUnlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryAccountRepository) GetByAuth(ctx context.Context, provider, subject string) (domain.User, error) {
	r.mu.RLock()
	id, ok := r.byAuth[authKey(provider, subject)]
	r.mu.RUnlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryAccountRepository) LinkOAuth(_ context.Context, id, provider, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if owner, ok := r.byAuth[authKey(provider, subject)]; ok && owner != id {
		return ErrDuplicate
	}
	u.AuthProvider = provider
	u.AuthSubject = subject
	r.byID[id] = u
	r.byAuth[authKey(provider, subject)] = id
	return nil
}

func (r *MemoryAccountRepository) UpdateDisplayName(_ context.Context, id, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.DisplayName = displayName
	r.byID[id] = u
	return nil
}

var (
	_ AccountRepository = (*PgAccountRepository)(nil)
	_ AccountRepository = (*MemoryAccountRepository)(nil)
)
