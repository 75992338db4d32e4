package http

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-portal/internal/domain"
	"account-portal/internal/identity"
	"account-portal/internal/metrics"
	"account-portal/internal/profile"
	"account-portal/internal/service"
	"account-portal/internal/session"
)

const (
	intentLogin    = "login"
	intentRegister = "register"

	msgMissingFields = "Tous les champs sont obligatoires."
)

// AccountHandler mantiene dependencias para las vistas de registro, login y cuenta.
type AccountHandler struct {
	logger        *zap.Logger
	accounts      *service.AccountService
	profiles      profile.Store
	backend       *identity.Backend
	metrics       metrics.Recorder
	cookies       CookieConfig
	lookupTimeout time.Duration
}

// NewAccountHandler crea una instancia de AccountHandler con dependencias necesarias.
func NewAccountHandler(
	logger *zap.Logger,
	accounts *service.AccountService,
	profiles profile.Store,
	backend *identity.Backend,
	recorder metrics.Recorder,
	cookies CookieConfig,
	lookupTimeout time.Duration,
) *AccountHandler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AccountHandler{
		logger:        logger,
		accounts:      accounts,
		profiles:      profiles,
		backend:       backend,
		metrics:       recorder,
		cookies:       cookies,
		lookupTimeout: lookupTimeout,
	}
}

type formValues struct {
	FirstName string
	LastName  string
	DOB       string
	Email     string
}

type pageData struct {
	Title         string
	Message       string
	GoogleEnabled bool
	Form          formValues
	User          *domain.User
	Profile       *domain.UserProfile
}

// ShowRegister maneja GET /register.
func (h *AccountHandler) ShowRegister(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", pageData{Title: "Inscription"})
}

// Register maneja POST /register.
func (h *AccountHandler) Register(c *gin.Context) {
	var req struct {
		FirstName string `form:"firstName" binding:"required"`
		LastName  string `form:"lastName" binding:"required"`
		DOB       string `form:"dob" binding:"required"`
		Email     string `form:"email" binding:"required"`
		Password  string `form:"password" binding:"required"`
	}
	bindErr := c.ShouldBind(&req)
	form := formValues{FirstName: req.FirstName, LastName: req.LastName, DOB: req.DOB, Email: req.Email}
	if bindErr != nil {
		h.logger.Warn("invalid register request", zap.Error(bindErr))
		h.render(c, http.StatusBadRequest, "register.html", pageData{Title: "Inscription", Message: msgMissingFields, Form: form})
		return
	}

	client := h.client(c)
	res, err := h.accounts.RegisterWithPassword(c.Request.Context(), client, service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		DOB:       req.DOB,
		Email:     req.Email,
		Password:  req.Password,
	})
	h.cookies.writeSession(c, client.Tokens())
	if err != nil {
		h.render(c, statusFor(err), "register.html", pageData{Title: "Inscription", Message: res.Message, Form: form})
		return
	}
	c.Redirect(http.StatusSeeOther, res.Next)
}

// ShowLogin maneja GET /login.
func (h *AccountHandler) ShowLogin(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", pageData{Title: "Connexion"})
}

// Login maneja POST /login.
func (h *AccountHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `form:"email" binding:"required"`
		Password string `form:"password" binding:"required"`
	}
	bindErr := c.ShouldBind(&req)
	form := formValues{Email: req.Email}
	if bindErr != nil {
		h.logger.Warn("invalid login request", zap.Error(bindErr))
		h.render(c, http.StatusBadRequest, "login.html", pageData{Title: "Connexion", Message: msgMissingFields, Form: form})
		return
	}

	client := h.client(c)
	res, err := h.accounts.LoginWithPassword(c.Request.Context(), client, req.Email, req.Password)
	if err != nil {
		h.render(c, statusFor(err), "login.html", pageData{Title: "Connexion", Message: res.Message, Form: form})
		return
	}
	h.cookies.writeSession(c, client.Tokens())
	c.Redirect(http.StatusSeeOther, res.Next)
}

// StartFederated maneja GET /auth/google: redirige al consentimiento del
// proveedor con un state que lleva la intención.
func (h *AccountHandler) StartFederated(c *gin.Context) {
	intent := intentLogin
	if c.Query("intent") == intentRegister {
		intent = intentRegister
	}

	provider, err := h.backend.Provider(domain.AuthProviderGoogle)
	if err != nil {
		h.renderIntent(c, intent, statusFor(err), service.Message(err))
		return
	}

	state := intent + ":" + uuid.NewString()
	h.cookies.set(c, oauthStateCookie, state, oauthStateTTL)
	c.Redirect(http.StatusFound, provider.AuthCodeURL(state))
}

// FederatedCallback maneja GET /auth/google/callback.
func (h *AccountHandler) FederatedCallback(c *gin.Context) {
	state := c.Query("state")
	expected, cookieErr := c.Cookie(oauthStateCookie)
	h.cookies.clear(c, oauthStateCookie)

	intent, _, _ := strings.Cut(expected, ":")
	if intent != intentRegister {
		intent = intentLogin
	}
	if cookieErr != nil || state == "" || state != expected {
		h.logger.Warn("oauth state mismatch")
		h.renderIntent(c, intent, http.StatusBadRequest, service.Message(identity.ErrInvalidCredential))
		return
	}

	// Un consentimiento rechazado llega sin código.
	code := c.Query("code")
	if c.Query("error") != "" {
		code = ""
	}

	client := h.client(c)
	var (
		res service.Result
		err error
	)
	if intent == intentRegister {
		res, err = h.accounts.RegisterWithFederated(c.Request.Context(), client, domain.AuthProviderGoogle, code)
	} else {
		res, err = h.accounts.LoginWithFederated(c.Request.Context(), client, domain.AuthProviderGoogle, code)
	}
	h.cookies.writeSession(c, client.Tokens())
	if err != nil {
		h.renderIntent(c, intent, statusFor(err), res.Message)
		return
	}
	c.Redirect(http.StatusFound, res.Next)
}

// Account maneja GET /account.
func (h *AccountHandler) Account(c *gin.Context) {
	nav := &redirectNavigator{}
	obs := session.NewObserver(h.client(c), h.profiles, nav, session.Options{
		Logger:        h.logger,
		Metrics:       h.metrics,
		LookupTimeout: h.lookupTimeout,
	})
	if err := obs.Mount(c.Request.Context()); err != nil {
		h.logger.Error("mount observer failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	defer obs.Unmount()

	state, err := obs.Wait(c.Request.Context())
	if err != nil {
		h.logger.Debug("account view abandoned", zap.Error(err))
		return
	}
	if route := nav.Route(); route != "" {
		c.Redirect(http.StatusFound, route)
		return
	}

	h.render(c, http.StatusOK, "account.html", pageData{
		Title:   "Mon compte",
		User:    state.User,
		Profile: state.Profile,
		Message: state.Message,
	})
}

// Logout maneja POST /logout. Con scope=all revoca además las sesiones del
// usuario en todos sus dispositivos.
func (h *AccountHandler) Logout(c *gin.Context) {
	client := h.client(c)
	if c.PostForm("scope") == "all" {
		if user := client.CurrentUser(); user != nil {
			if err := h.backend.EndAllSessions(user.ID); err != nil {
				h.logger.Warn("logout everywhere failed", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
	}
	nav := &redirectNavigator{}
	obs := session.NewObserver(client, h.profiles, nav, session.Options{Logger: h.logger, Metrics: h.metrics})
	if err := obs.Logout(c.Request.Context()); err != nil {
		h.logger.Warn("logout incomplete", zap.Error(err))
	}
	h.cookies.writeSession(c, identity.TokenPair{})

	route := nav.Route()
	if route == "" {
		route = domain.RouteLogin
	}
	c.Redirect(http.StatusSeeOther, route)
}

// Refresh maneja POST /auth/refresh: rota el refresh token del body o de la cookie.
func (h *AccountHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid refresh request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie(refreshCookie)
	}
	if req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	_, tokens, err := h.backend.RefreshSession(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if identity.CodeOf(err) == identity.CodeInternal {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	h.cookies.writeSession(c, tokens)
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (h *AccountHandler) client(c *gin.Context) *identity.SessionClient {
	if client, ok := GetSessionClient(c); ok {
		return client
	}
	return identity.NewSessionClient(h.backend)
}

func (h *AccountHandler) googleEnabled() bool {
	_, err := h.backend.Provider(domain.AuthProviderGoogle)
	return err == nil
}

func (h *AccountHandler) renderIntent(c *gin.Context, intent string, status int, message string) {
	if intent == intentRegister {
		h.render(c, status, "register.html", pageData{Title: "Inscription", Message: message})
		return
	}
	h.render(c, status, "login.html", pageData{Title: "Connexion", Message: message})
}

func (h *AccountHandler) render(c *gin.Context, status int, name string, data pageData) {
	data.GoogleEnabled = h.googleEnabled()
	c.HTML(status, name, data)
}

// statusFor traduce un error de flujo al código HTTP de la vista re-renderizada.
func statusFor(err error) int {
	switch identity.CodeOf(err) {
	case identity.CodeInvalidEmail, identity.CodeWeakPassword, identity.CodePopupClosed:
		return http.StatusBadRequest
	case identity.CodeEmailInUse:
		return http.StatusConflict
	case identity.CodeInvalidCredential, identity.CodeUserNotFound, identity.CodeSessionExpired:
		return http.StatusUnauthorized
	case identity.CodeNetwork:
		return http.StatusBadGateway
	case identity.CodeProviderUnavailable:
		return http.StatusNotImplemented
	case identity.CodeInternal:
		return http.StatusInternalServerError
	}
	var storeErr *profile.StoreError
	if errors.As(err, &storeErr) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// redirectNavigator recuerda la última ruta pedida por el observador.
type redirectNavigator struct {
	mu    sync.Mutex
	route string
}

func (n *redirectNavigator) Navigate(route string) {
	n.mu.Lock()
	n.route = route
	n.mu.Unlock()
}

func (n *redirectNavigator) Route() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}
