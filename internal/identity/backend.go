package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

// Backend es el proveedor de identidad compartido por todas las sesiones:
// cuentas, verificación de credenciales, identidades federadas y tokens.
type Backend struct {
	logger     *zap.Logger
	accounts   repository.AccountRepository
	tokens     *TokenService
	providers  map[string]FederatedProvider
	bcryptCost int
}

func NewBackend(logger *zap.Logger, accounts repository.AccountRepository, tokens *TokenService, providers ...FederatedProvider) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{
		logger:     logger,
		accounts:   accounts,
		tokens:     tokens,
		providers:  make(map[string]FederatedProvider),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, p := range providers {
		if p != nil {
			b.providers[p.Kind()] = p
		}
	}
	return b
}

// Tokens expone el servicio de tokens (TTLs para cookies).
func (b *Backend) Tokens() *TokenService {
	return b.tokens
}

// Provider devuelve el proveedor federado registrado para kind.
func (b *Backend) Provider(kind string) (FederatedProvider, error) {
	p, ok := b.providers[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, newAuthError(CodeProviderUnavailable, nil)
	}
	return p, nil
}

func (b *Backend) CreateAccount(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if err := validateNewAccount(email, password); err != nil {
		return domain.User{}, err
	}

	if _, err := b.accounts.GetByEmail(ctx, email); err == nil {
		return domain.User{}, newAuthError(CodeEmailInUse, nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, b.internal("lookup account by email", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.bcryptCost)
	if err != nil {
		return domain.User{}, b.internal("hash password", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		AuthProvider: domain.AuthProviderPassword,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := b.accounts.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, newAuthError(CodeEmailInUse, err)
		}
		return domain.User{}, b.internal("create account", err)
	}
	b.logger.Info("account created", zap.String("user_id", user.ID))
	return user, nil
}

func (b *Backend) VerifyPassword(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if err := validateSignIn(email, password); err != nil {
		return domain.User{}, err
	}
	user, err := b.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, newAuthError(CodeUserNotFound, nil)
		}
		return domain.User{}, b.internal("lookup account by email", err)
	}
	if user.PasswordHash == "" {
		return domain.User{}, newAuthError(CodeInvalidCredential, nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, newAuthError(CodeInvalidCredential, nil)
	}
	return user, nil
}

// SignInFederated canjea el código con el proveedor y resuelve la cuenta:
// identidad ya vinculada, cuenta existente con el mismo email verificado (se
// vincula) o cuenta nueva.
func (b *Backend) SignInFederated(ctx context.Context, kind, code string) (domain.User, domain.FederatedIdentity, error) {
	provider, err := b.Provider(kind)
	if err != nil {
		return domain.User{}, domain.FederatedIdentity{}, err
	}
	hint, err := provider.Exchange(ctx, code)
	if err != nil {
		return domain.User{}, domain.FederatedIdentity{}, err
	}
	hint.Email = normalizeEmail(hint.Email)
	hint.DisplayName = strings.TrimSpace(hint.DisplayName)

	user, err := b.accounts.GetByAuth(ctx, hint.Provider, hint.Subject)
	if err == nil {
		return user, hint, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, hint, b.internal("lookup account by identity", err)
	}

	if hint.Email != "" {
		existing, err := b.accounts.GetByEmail(ctx, hint.Email)
		if err == nil {
			// Solo un email verificado por el proveedor prueba la propiedad de la cuenta.
			if !hint.EmailVerified {
				b.logger.Warn("federated link refused, email not verified", zap.String("user_id", existing.ID), zap.String("provider", hint.Provider))
				return domain.User{}, hint, newAuthError(CodeEmailInUse, nil)
			}
			if err := b.accounts.LinkOAuth(ctx, existing.ID, hint.Provider, hint.Subject); err != nil {
				return domain.User{}, hint, b.internal("link identity", err)
			}
			existing.AuthProvider = hint.Provider
			existing.AuthSubject = hint.Subject
			if existing.DisplayName == "" && hint.DisplayName != "" {
				if err := b.accounts.UpdateDisplayName(ctx, existing.ID, hint.DisplayName); err != nil {
					return domain.User{}, hint, b.internal("update display name", err)
				}
				existing.DisplayName = hint.DisplayName
			}
			b.logger.Info("federated identity linked", zap.String("user_id", existing.ID), zap.String("provider", hint.Provider))
			return existing, hint, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, hint, b.internal("lookup account by email", err)
		}
	}

	user = domain.User{
		ID:           uuid.NewString(),
		Email:        hint.Email,
		DisplayName:  hint.DisplayName,
		AuthProvider: hint.Provider,
		AuthSubject:  hint.Subject,
		CreatedAt:    time.Now().UTC(),
	}
	if err := b.accounts.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, hint, newAuthError(CodeEmailInUse, err)
		}
		return domain.User{}, hint, b.internal("create federated account", err)
	}
	b.logger.Info("federated account created", zap.String("user_id", user.ID), zap.String("provider", hint.Provider))
	return user, hint, nil
}

func (b *Backend) SetDisplayName(ctx context.Context, userID, name string) error {
	if err := b.accounts.UpdateDisplayName(ctx, userID, strings.TrimSpace(name)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return newAuthError(CodeUserNotFound, err)
		}
		return b.internal("update display name", err)
	}
	return nil
}

// IssueSession emite un par de tokens para el usuario.
func (b *Backend) IssueSession(user domain.User) (TokenPair, error) {
	pair, err := b.tokens.GeneratePair(user)
	if err != nil {
		return TokenPair{}, b.internal("issue session", err)
	}
	return pair, nil
}

// RefreshSession canjea el refresh token y emite un par nuevo con los datos
// actuales de la cuenta. Una cuenta borrada cierra la sesión.
func (b *Backend) RefreshSession(ctx context.Context, refreshToken string) (domain.User, TokenPair, error) {
	claims, err := b.tokens.ConsumeRefresh(refreshToken)
	if err != nil {
		return domain.User{}, TokenPair{}, newAuthError(CodeSessionExpired, err)
	}
	user, err := b.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			b.logger.Warn("refresh for missing account", zap.String("user_id", claims.UserID))
			return domain.User{}, TokenPair{}, newAuthError(CodeSessionExpired, err)
		}
		return domain.User{}, TokenPair{}, b.internal("lookup account by id", err)
	}
	user.PasswordHash = ""
	pair, err := b.IssueSession(user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// RestoreSession valida el access token; si expiró y el refresh sigue vigente,
// rota el par. rotated indica que hay tokens nuevos que persistir.
func (b *Backend) RestoreSession(ctx context.Context, accessToken, refreshToken string) (domain.User, TokenPair, bool, error) {
	if accessToken != "" {
		if claims, err := b.tokens.ParseAccessToken(accessToken); err == nil {
			return claims.User(), TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, false, nil
		}
	}
	if refreshToken == "" {
		return domain.User{}, TokenPair{}, false, newAuthError(CodeSessionExpired, nil)
	}
	user, pair, err := b.RefreshSession(ctx, refreshToken)
	if err != nil {
		return domain.User{}, TokenPair{}, false, err
	}
	return user, pair, true, nil
}

// EndSession revoca el refresh token; un token ya inválido no es error.
func (b *Backend) EndSession(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := b.tokens.RevokeRefresh(refreshToken)
	if err == nil || errors.Is(err, ErrJWTInvalid) || errors.Is(err, ErrJWTExpired) {
		return nil
	}
	return b.internal("revoke session", err)
}

// EndAllSessions revoca todos los refresh tokens del usuario. Los access
// tokens ya emitidos caducan solos.
func (b *Backend) EndAllSessions(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	if err := b.tokens.RevokeUser(userID); err != nil {
		return b.internal("revoke all sessions", err)
	}
	b.logger.Info("all sessions revoked", zap.String("user_id", userID))
	return nil
}

func (b *Backend) internal(op string, err error) error {
	b.logger.Error("identity backend failure", zap.String("op", op), zap.Error(err))
	return newAuthError(CodeInternal, err)
}
