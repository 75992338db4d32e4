package identity

import (
	"errors"
	"fmt"
)

// Code identifica la causa de un AuthError.
type Code string

const (
	CodeInvalidEmail        Code = "invalid-email"
	CodeWeakPassword        Code = "weak-password"
	CodeEmailInUse          Code = "email-already-in-use"
	CodeInvalidCredential   Code = "invalid-credential"
	CodeUserNotFound        Code = "user-not-found"
	CodePopupClosed         Code = "popup-closed-by-user"
	CodeNetwork             Code = "network-request-failed"
	CodeProviderUnavailable Code = "operation-not-allowed"
	CodeSessionExpired      Code = "user-token-expired"
	CodeInternal            Code = "internal-error"
)

// Sentinels comparables con errors.Is contra cualquier *AuthError del mismo código.
var (
	ErrInvalidEmail        = &AuthError{Code: CodeInvalidEmail}
	ErrWeakPassword        = &AuthError{Code: CodeWeakPassword}
	ErrEmailInUse          = &AuthError{Code: CodeEmailInUse}
	ErrInvalidCredential   = &AuthError{Code: CodeInvalidCredential}
	ErrUserNotFound        = &AuthError{Code: CodeUserNotFound}
	ErrPopupClosed         = &AuthError{Code: CodePopupClosed}
	ErrNetwork             = &AuthError{Code: CodeNetwork}
	ErrProviderUnavailable = &AuthError{Code: CodeProviderUnavailable}
	ErrSessionExpired      = &AuthError{Code: CodeSessionExpired}
	ErrInternal            = &AuthError{Code: CodeInternal}
)

var codeMessages = map[Code]string{
	CodeInvalidEmail:        "invalid email address",
	CodeWeakPassword:        "password should be at least 6 characters",
	CodeEmailInUse:          "email already in use",
	CodeInvalidCredential:   "invalid credential",
	CodeUserNotFound:        "user not found",
	CodePopupClosed:         "sign-in was cancelled",
	CodeNetwork:             "network request failed",
	CodeProviderUnavailable: "sign-in provider not available",
	CodeSessionExpired:      "session expired",
	CodeInternal:            "internal error",
}

// AuthError agrupa cualquier falla del proveedor de identidad.
type AuthError struct {
	Code Code
	Err  error
}

func newAuthError(code Code, err error) *AuthError {
	return &AuthError{Code: code, Err: err}
}

func (e *AuthError) Error() string {
	msg, ok := codeMessages[e.Code]
	if !ok {
		msg = string(e.Code)
	}
	return fmt.Sprintf("auth: %s (auth/%s)", msg, e.Code)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is compara por código para que errors.Is funcione con los sentinels.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf devuelve el código de un AuthError envuelto, o "" si err no lo es.
func CodeOf(err error) Code {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
