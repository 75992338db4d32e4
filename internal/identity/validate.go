package identity

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const minPasswordLength = 6

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateNewAccount aplica las reglas del proveedor al crear una cuenta.
func validateNewAccount(email, password string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return newAuthError(CodeInvalidEmail, err)
	}
	if err := validation.Validate(password, validation.Required, validation.RuneLength(minPasswordLength, 0)); err != nil {
		return newAuthError(CodeWeakPassword, err)
	}
	return nil
}

func validateSignIn(email, password string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return newAuthError(CodeInvalidEmail, err)
	}
	if err := validation.Validate(password, validation.Required); err != nil {
		return newAuthError(CodeInvalidCredential, err)
	}
	return nil
}
