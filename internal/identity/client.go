package identity

import (
	"context"
	"sync"

	"account-portal/internal/domain"
)

// Client es el contrato del proveedor de identidad que consumen las vistas.
type Client interface {
	CreateAccount(ctx context.Context, email, password string) (domain.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (domain.User, error)
	SignInWithFederated(ctx context.Context, provider, code string) (domain.User, domain.FederatedIdentity, error)
	SetDisplayName(ctx context.Context, user domain.User, name string) error
	SignOut(ctx context.Context) error
	CurrentUser() *domain.User
	// OnAuthStateChanged registra fn, la invoca de inmediato con el usuario
	// actual y luego en cada transición hasta llamar a unsubscribe.
	OnAuthStateChanged(fn func(*domain.User)) (unsubscribe func())
}

// SessionClient es el Client de un contexto de navegador: mantiene el usuario
// actual y su par de tokens, y notifica a los suscriptores en cada cambio.
type SessionClient struct {
	backend *Backend

	mu      sync.Mutex
	user    *domain.User
	tokens  TokenPair
	subs    map[uint64]func(*domain.User)
	nextSub uint64
}

func NewSessionClient(backend *Backend) *SessionClient {
	return &SessionClient{
		backend: backend,
		subs:    make(map[uint64]func(*domain.User)),
	}
}

// Restore recupera la sesión desde tokens persistidos sin notificar a nadie.
// rotated indica que Tokens() cambió y debe volver a persistirse.
func (c *SessionClient) Restore(ctx context.Context, accessToken, refreshToken string) (bool, error) {
	if accessToken == "" && refreshToken == "" {
		return false, nil
	}
	user, pair, rotated, err := c.backend.RestoreSession(ctx, accessToken, refreshToken)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.user = &user
	c.tokens = pair
	c.mu.Unlock()
	return rotated, nil
}

// Tokens devuelve el par vigente; vacío si no hay sesión.
func (c *SessionClient) Tokens() TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *SessionClient) CreateAccount(ctx context.Context, email, password string) (domain.User, error) {
	user, err := c.backend.CreateAccount(ctx, email, password)
	if err != nil {
		return domain.User{}, err
	}
	if err := c.signIn(user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *SessionClient) SignInWithPassword(ctx context.Context, email, password string) (domain.User, error) {
	user, err := c.backend.VerifyPassword(ctx, email, password)
	if err != nil {
		return domain.User{}, err
	}
	if err := c.signIn(user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *SessionClient) SignInWithFederated(ctx context.Context, provider, code string) (domain.User, domain.FederatedIdentity, error) {
	user, hint, err := c.backend.SignInFederated(ctx, provider, code)
	if err != nil {
		return domain.User{}, hint, err
	}
	if err := c.signIn(user); err != nil {
		return domain.User{}, hint, err
	}
	return user, hint, nil
}

// SetDisplayName actualiza el nombre visible; si es el usuario actual se
// reemiten los tokens para que los claims lo reflejen. No notifica.
func (c *SessionClient) SetDisplayName(ctx context.Context, user domain.User, name string) error {
	if err := c.backend.SetDisplayName(ctx, user.ID, name); err != nil {
		return err
	}

	c.mu.Lock()
	if c.user == nil || c.user.ID != user.ID {
		c.mu.Unlock()
		return nil
	}
	updated := *c.user
	updated.DisplayName = name
	oldRefresh := c.tokens.RefreshToken
	c.mu.Unlock()

	pair, err := c.backend.IssueSession(updated)
	if err != nil {
		return err
	}
	if err := c.backend.EndSession(oldRefresh); err != nil {
		return err
	}

	c.mu.Lock()
	c.user = &updated
	c.tokens = pair
	c.mu.Unlock()
	return nil
}

// SignOut limpia la sesión local siempre; el error solo refleja la revocación remota.
func (c *SessionClient) SignOut(_ context.Context) error {
	c.mu.Lock()
	refresh := c.tokens.RefreshToken
	c.user = nil
	c.tokens = TokenPair{}
	subs := c.snapshotLocked()
	c.mu.Unlock()

	err := c.backend.EndSession(refresh)
	notify(subs, nil)
	return err
}

func (c *SessionClient) CurrentUser() *domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyUser(c.user)
}

func (c *SessionClient) OnAuthStateChanged(fn func(*domain.User)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	current := copyUser(c.user)
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *SessionClient) signIn(user domain.User) error {
	user.PasswordHash = ""
	pair, err := c.backend.IssueSession(user)
	if err != nil {
		return err
	}
	c.mu.Lock()
	previous := c.tokens.RefreshToken
	c.user = &user
	c.tokens = pair
	subs := c.snapshotLocked()
	c.mu.Unlock()

	if previous != "" {
		_ = c.backend.EndSession(previous)
	}
	notify(subs, &user)
	return nil
}

func (c *SessionClient) snapshotLocked() []func(*domain.User) {
	subs := make([]func(*domain.User), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(*domain.User), user *domain.User) {
	for _, fn := range subs {
		fn(copyUser(user))
	}
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

var _ Client = (*SessionClient)(nil)
