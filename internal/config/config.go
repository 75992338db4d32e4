package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort             string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL          string        `env:"DATABASE_URL,required"`
	AutoMigrate          bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	RedisAddr            string        `env:"REDIS_ADDR"`
	RedisPassword        string        `env:"REDIS_PASSWORD"`
	RedisDB              int           `env:"REDIS_DB" envDefault:"0"`
	JWTSecret            string        `env:"JWT_SECRET,required,notEmpty"`
	JWTAccessTTLMinutes  int           `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int           `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`
	GoogleClientID       string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL    string        `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/auth/google/callback"`
	CookieSecure         bool          `env:"COOKIE_SECURE" envDefault:"false"`
	ProfileLookupTimeout time.Duration `env:"PROFILE_LOOKUP_TIMEOUT" envDefault:"5s"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AccessTTL devuelve la vigencia del access token.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

// RefreshTTL devuelve la vigencia del refresh token.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLMinutes) * time.Minute
}

// GoogleEnabled indica si el login federado con Google está configurado.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
