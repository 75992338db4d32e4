package http

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"account-portal/internal/domain"
	"account-portal/internal/identity"
)

//go:embed templates/*.html
var templatesFS embed.FS

// NewRouter configura el router de Gin con middlewares, vistas y rutas base.
func NewRouter(
	logger *zap.Logger,
	backend *identity.Backend,
	cookies CookieConfig,
	accountH *AccountHandler,
	healthH *HealthHandler,
	metricsHandler http.Handler,
) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	// Middlewares basicos: logging y recovery.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", healthH.Health)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	views := r.Group("/", SessionMiddleware(logger, backend, cookies))
	views.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, domain.RouteAccount) })
	views.GET(domain.RouteRegister, accountH.ShowRegister)
	views.POST(domain.RouteRegister, accountH.Register)
	views.GET(domain.RouteLogin, accountH.ShowLogin)
	views.POST(domain.RouteLogin, accountH.Login)
	views.GET(domain.RouteAccount, accountH.Account)
	views.POST("/logout", accountH.Logout)

	auth := views.Group("/auth")
	auth.GET("/google", accountH.StartFederated)
	auth.GET("/google/callback", accountH.FederatedCallback)

	// El refresh opera sobre el token recibido, sin restaurar sesión.
	r.POST("/auth/refresh", accountH.Refresh)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
