package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"account-portal/internal/domain"
	"account-portal/internal/identity"
	"account-portal/internal/metrics"
	"account-portal/internal/profile"
)

// Flujos registrados en métricas.
const (
	FlowRegisterPassword = "register_password"
	FlowRegisterGoogle   = "register_google"
	FlowLoginPassword    = "login_password"
	FlowLoginGoogle      = "login_google"
)

const genericMessage = "Une erreur inattendue est survenue."

// AccountService coordina registro y login sobre el cliente de identidad de
// cada contexto de navegador y el almacén de perfiles.
type AccountService struct {
	logger   *zap.Logger
	profiles profile.Store
	metrics  metrics.Recorder
}

func NewAccountService(logger *zap.Logger, profiles profile.Store, recorder metrics.Recorder) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AccountService{logger: logger, profiles: profiles, metrics: recorder}
}

type RegisterInput struct {
	FirstName string
	LastName  string
	DOB       string
	Email     string
	Password  string
}

// Result es el resultado de un flujo. Next vacío significa quedarse en la vista
// actual mostrando Message.
type Result struct {
	Next    string
	User    domain.User
	Profile *domain.UserProfile
	Message string
}

// RegisterWithPassword crea la cuenta, fija el nombre visible y escribe el
// perfil completo. Cada paso corta el flujo al fallar; no hay rollback.
func (s *AccountService) RegisterWithPassword(ctx context.Context, client identity.Client, input RegisterInput) (Result, error) {
	user, err := client.CreateAccount(ctx, input.Email, input.Password)
	if err != nil {
		return s.fail(FlowRegisterPassword, err)
	}

	displayName := strings.TrimSpace(input.FirstName + " " + input.LastName)
	if err := client.SetDisplayName(ctx, user, displayName); err != nil {
		return s.fail(FlowRegisterPassword, err)
	}
	user.DisplayName = displayName

	p := domain.UserProfile{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		DOB:       input.DOB,
		Email:     input.Email,
	}
	if err := profile.SaveUserProfile(ctx, s.profiles, user.ID, p, false); err != nil {
		s.metrics.RecordProfileOp("upsert", metrics.OutcomeFailure)
		return s.fail(FlowRegisterPassword, err)
	}
	s.metrics.RecordProfileOp("upsert", metrics.OutcomeSuccess)

	s.metrics.RecordAuth(FlowRegisterPassword, metrics.OutcomeSuccess)
	s.logger.Info("account registered", zap.String("user_id", user.ID), zap.String("provider", domain.AuthProviderPassword))
	return Result{Next: domain.RouteAccount, User: user, Profile: &p}, nil
}

// RegisterWithFederated autentica con el proveedor y fusiona el perfil derivado
// del nombre visible. Si la escritura falla la sesión queda abierta pero no se
// navega; repetir el flujo reintenta la fusión.
func (s *AccountService) RegisterWithFederated(ctx context.Context, client identity.Client, provider, code string) (Result, error) {
	user, hint, err := client.SignInWithFederated(ctx, provider, code)
	if err != nil {
		return s.fail(FlowRegisterGoogle, err)
	}

	name := user.DisplayName
	if name == "" {
		name = hint.DisplayName
	}
	first, last := SplitDisplayName(name)
	email := user.Email
	if email == "" {
		email = hint.Email
	}
	p := domain.UserProfile{FirstName: first, LastName: last, DOB: "", Email: email}

	if err := profile.SaveUserProfile(ctx, s.profiles, user.ID, p, true); err != nil {
		s.metrics.RecordProfileOp("upsert", metrics.OutcomeFailure)
		s.metrics.RecordAuth(FlowRegisterGoogle, metrics.OutcomeFailure)
		s.logger.Warn("federated profile merge failed", zap.String("user_id", user.ID), zap.Error(err))
		return Result{User: user, Message: Message(err)}, err
	}
	s.metrics.RecordProfileOp("upsert", metrics.OutcomeSuccess)

	s.metrics.RecordAuth(FlowRegisterGoogle, metrics.OutcomeSuccess)
	s.logger.Info("federated account registered", zap.String("user_id", user.ID), zap.String("provider", provider))
	return Result{Next: domain.RouteAccount, User: user, Profile: &p}, nil
}

func (s *AccountService) LoginWithPassword(ctx context.Context, client identity.Client, email, password string) (Result, error) {
	user, err := client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return s.fail(FlowLoginPassword, err)
	}
	s.metrics.RecordAuth(FlowLoginPassword, metrics.OutcomeSuccess)
	return Result{Next: domain.RouteAccount, User: user}, nil
}

func (s *AccountService) LoginWithFederated(ctx context.Context, client identity.Client, provider, code string) (Result, error) {
	user, _, err := client.SignInWithFederated(ctx, provider, code)
	if err != nil {
		return s.fail(FlowLoginGoogle, err)
	}
	s.metrics.RecordAuth(FlowLoginGoogle, metrics.OutcomeSuccess)
	return Result{Next: domain.RouteAccount, User: user}, nil
}

func (s *AccountService) fail(flow string, err error) (Result, error) {
	s.metrics.RecordAuth(flow, metrics.OutcomeFailure)
	if identity.CodeOf(err) == identity.CodeInternal || !isKnown(err) {
		s.logger.Error("auth flow failed", zap.String("flow", flow), zap.Error(err))
	} else {
		s.logger.Debug("auth flow rejected", zap.String("flow", flow), zap.Error(err))
	}
	return Result{Message: Message(err)}, err
}

// SplitDisplayName separa en el primer espacio: "A B C" -> ("A", "B C"), "A" -> ("A", "").
func SplitDisplayName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

// Message convierte un error en el único texto que ve el usuario.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if isKnown(err) {
		return err.Error()
	}
	return genericMessage
}

func isKnown(err error) bool {
	var authErr *identity.AuthError
	var storeErr *profile.StoreError
	return errors.As(err, &authErr) || errors.As(err, &storeErr)
}
