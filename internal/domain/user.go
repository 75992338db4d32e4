package domain

import "time"

// Proveedores de autenticación soportados.
const (
	AuthProviderPassword = "password"
	AuthProviderGoogle   = "google"
)

// User es el handle del usuario autenticado que emite el proveedor de identidad.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	AuthProvider string    `json:"auth_provider,omitempty"`
	AuthSubject  string    `json:"-"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FederatedIdentity es la pista de perfil que devuelve un login federado.
// EmailVerified indica que el proveedor certifica la propiedad del email.
type FederatedIdentity struct {
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name"`
}
