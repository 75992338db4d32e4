package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"account-portal/internal/domain"
)

const defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// FederatedProvider autentica mediante una cuenta de terceros (flujo authorization code).
type FederatedProvider interface {
	Kind() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (domain.FederatedIdentity, error)
}

// GoogleConfig configura el proveedor federado de Google.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Sobrescribibles en tests.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// GoogleProvider implementa FederatedProvider con golang.org/x/oauth2.
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultGoogleUserInfoURL
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: userInfoURL,
	}
}

func (p *GoogleProvider) Kind() string {
	return domain.AuthProviderGoogle
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Exchange canjea el código por un token y obtiene la identidad del usuario.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (domain.FederatedIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return domain.FederatedIdentity{}, newAuthError(CodePopupClosed, nil)
	}
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return domain.FederatedIdentity{}, newAuthError(CodeInvalidCredential, err)
		}
		return domain.FederatedIdentity{}, newAuthError(CodeNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return domain.FederatedIdentity{}, newAuthError(CodeInternal, err)
	}
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return domain.FederatedIdentity{}, newAuthError(CodeNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.FederatedIdentity{}, newAuthError(CodeNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.FederatedIdentity{}, newAuthError(CodeInvalidCredential,
			fmt.Errorf("userinfo status %d: %s", resp.StatusCode, string(body)))
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.FederatedIdentity{}, newAuthError(CodeInternal, fmt.Errorf("parse userinfo: %w", err))
	}
	if info.Sub == "" {
		return domain.FederatedIdentity{}, newAuthError(CodeInvalidCredential, fmt.Errorf("empty sub in userinfo"))
	}

	return domain.FederatedIdentity{
		Provider:      p.Kind(),
		Subject:       info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		DisplayName:   info.Name,
	}, nil
}

var _ FederatedProvider = (*GoogleProvider)(nil)
