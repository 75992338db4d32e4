package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"account-portal/internal/identity"
)

const sessionClientKey = "session_client"

// SessionMiddleware restaura un SessionClient por request a partir de las
// cookies. Un access token expirado se rota con el refresh token; una sesión
// inválida se descarta y sus cookies se borran.
func SessionMiddleware(logger *zap.Logger, backend *identity.Backend, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := identity.NewSessionClient(backend)

		access, _ := c.Cookie(accessCookie)
		refresh, _ := c.Cookie(refreshCookie)
		rotated, err := client.Restore(c.Request.Context(), access, refresh)
		switch {
		case err != nil:
			logger.Debug("session discarded", zap.Error(err))
			cookies.writeSession(c, identity.TokenPair{})
		case rotated:
			cookies.writeSession(c, client.Tokens())
		}

		c.Set(sessionClientKey, client)
		c.Next()
	}
}

// GetSessionClient obtiene el cliente de identidad del request.
func GetSessionClient(c *gin.Context) (*identity.SessionClient, bool) {
	val, ok := c.Get(sessionClientKey)
	if !ok {
		return nil, false
	}
	client, ok := val.(*identity.SessionClient)
	return client, ok
}
