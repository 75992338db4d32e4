package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger verifica una dependencia externa.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapta una función a Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reporta liveness y el estado de las dependencias.
type HealthHandler struct {
	logger  *zap.Logger
	pingers map[string]Pinger
}

func NewHealthHandler(logger *zap.Logger, pingers map[string]Pinger) *HealthHandler {
	return &HealthHandler{logger: logger, pingers: pingers}
}

// Health maneja GET /healthz.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(gin.H, len(h.pingers))
	status := http.StatusOK
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
