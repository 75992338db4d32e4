package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

type mockAccountRepo struct {
	mu          sync.Mutex
	usersByID   map[string]domain.User
	usersByMail map[string]string
	usersByAuth map[string]string
	err         error
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{
		usersByID:   make(map[string]domain.User),
		usersByMail: make(map[string]string),
		usersByAuth: make(map[string]string),
	}
}

func (m *mockAccountRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.usersByMail[strings.ToLower(user.Email)]; ok && user.Email != "" {
		return repository.ErrDuplicate
	}
	m.usersByID[user.ID] = user
	if user.Email != "" {
		m.usersByMail[strings.ToLower(user.Email)] = user.ID
	}
	if user.AuthSubject != "" {
		m.usersByAuth[user.AuthProvider+"|"+user.AuthSubject] = user.ID
	}
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *mockAccountRepo) getLocked(id string) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.User{}, m.err
	}
	id, ok := m.usersByMail[strings.ToLower(email)]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.getLocked(id)
}

func (m *mockAccountRepo) GetByAuth(_ context.Context, provider, subject string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.User{}, m.err
	}
	id, ok := m.usersByAuth[provider+"|"+subject]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.getLocked(id)
}

func (m *mockAccountRepo) LinkOAuth(_ context.Context, id, provider, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.getLocked(id)
	if err != nil {
		return err
	}
	user.AuthProvider = provider
	user.AuthSubject = subject
	m.usersByID[id] = user
	m.usersByAuth[provider+"|"+subject] = id
	return nil
}

func (m *mockAccountRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.getLocked(id)
	if err != nil {
		return err
	}
	user.DisplayName = displayName
	m.usersByID[id] = user
	return nil
}

type fakeProvider struct {
	kind     string
	identity domain.FederatedIdentity
	err      error
	codes    []string
}

func (f *fakeProvider) Kind() string { return f.kind }

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/auth?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (domain.FederatedIdentity, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return domain.FederatedIdentity{}, f.err
	}
	return f.identity, nil
}

func newTestBackend(repo *mockAccountRepo, providers ...FederatedProvider) *Backend {
	tokens := NewTokenService("secret", 15*time.Minute, time.Hour, NewMemoryRefreshTokenStore())
	b := NewBackend(zap.NewNop(), repo, tokens, providers...)
	b.bcryptCost = bcrypt.MinCost
	return b
}
