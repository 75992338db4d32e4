package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"account-portal/internal/identity"
)

const (
	accessCookie     = "access_token"
	refreshCookie    = "refresh_token"
	oauthStateCookie = "oauth_state"

	oauthStateTTL = 10 * time.Minute
)

// CookieConfig controla los atributos de las cookies de sesión.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (cfg CookieConfig) set(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (cfg CookieConfig) clear(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeSession persiste el par vigente del cliente o borra las cookies si no hay sesión.
func (cfg CookieConfig) writeSession(c *gin.Context, pair identity.TokenPair) {
	if pair.Empty() {
		cfg.clear(c, accessCookie)
		cfg.clear(c, refreshCookie)
		return
	}
	cfg.set(c, accessCookie, pair.AccessToken, cfg.AccessTTL)
	cfg.set(c, refreshCookie, pair.RefreshToken, cfg.RefreshTTL)
}
