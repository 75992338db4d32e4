// Package session modela el estado de autenticación que observa cada vista:
// suscripción al proveedor de identidad, carga del perfil y redirección.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"account-portal/internal/domain"
	"account-portal/internal/identity"
	"account-portal/internal/metrics"
	"account-portal/internal/profile"
)

// Phase es la etiqueta del estado observado.
type Phase int

const (
	// PhaseLoading cubre el estado inicial y la lectura de perfil en curso.
	PhaseLoading Phase = iota
	PhaseUnauthenticated
	PhaseReady
	PhaseNoProfile
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseReady:
		return "ready"
	case PhaseNoProfile:
		return "no_profile"
	default:
		return "unknown"
	}
}

// State es una instantánea del observador. Profile solo está presente en PhaseReady.
type State struct {
	Phase   Phase
	User    *domain.User
	Profile *domain.UserProfile
	// Message es el error visible de la última lectura de perfil, si falló.
	Message string
}

// Settled indica que el estado ya no cambiará sin una nueva transición de auth.
func (s State) Settled() bool {
	return s.Phase != PhaseLoading
}

var ErrAlreadyMounted = errors.New("observer already mounted")

// ProfileUnavailableMessage es lo que ve el usuario cuando falla la lectura de
// perfil. El detalle del store solo va al log.
const ProfileUnavailableMessage = "Impossible de charger le profil pour le moment."

// Navigator cambia de vista.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapta una función a Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Options configura un Observer.
type Options struct {
	Logger        *zap.Logger
	Metrics       metrics.Recorder
	LookupTimeout time.Duration
}

// Observer sigue el estado de autenticación de una vista montada.
type Observer struct {
	client        identity.Client
	profiles      profile.Store
	nav           Navigator
	logger        *zap.Logger
	metrics       metrics.Recorder
	lookupTimeout time.Duration

	mu          sync.Mutex
	state       State
	settled     chan struct{}
	mounted     bool
	torn        bool
	generation  uint64
	baseCtx     context.Context
	unsubscribe func()
	listeners   []func(State)
}

func NewObserver(client identity.Client, profiles profile.Store, nav Navigator, opts Options) *Observer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 5 * time.Second
	}
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Observer{
		client:        client,
		profiles:      profiles,
		nav:           nav,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		lookupTimeout: opts.LookupTimeout,
		state:         State{Phase: PhaseLoading},
		settled:       make(chan struct{}),
		baseCtx:       context.Background(),
	}
}

// OnChange registra fn para cada transición de estado. Registrar antes de Mount.
func (o *Observer) OnChange(fn func(State)) {
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	o.mu.Unlock()
}

// Mount suscribe el observador al proveedor de identidad, una sola vez.
// Las lecturas de perfil heredan los valores de ctx pero no su cancelación.
func (o *Observer) Mount(ctx context.Context) error {
	o.mu.Lock()
	if o.mounted || o.torn {
		o.mu.Unlock()
		return ErrAlreadyMounted
	}
	o.mounted = true
	o.baseCtx = context.WithoutCancel(ctx)
	o.mu.Unlock()

	unsubscribe := o.client.OnAuthStateChanged(o.handleAuthState)

	o.mu.Lock()
	if o.torn {
		o.mu.Unlock()
		unsubscribe()
		return nil
	}
	o.unsubscribe = unsubscribe
	o.mu.Unlock()
	return nil
}

// Unmount libera la suscripción. Idempotente; los resultados tardíos se descartan.
func (o *Observer) Unmount() {
	o.mu.Lock()
	if o.torn {
		o.mu.Unlock()
		return
	}
	o.torn = true
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.releaseWaitersLocked()
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// State devuelve el estado actual.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Wait bloquea hasta que el estado se asiente, el observador se desmonte o ctx termine.
func (o *Observer) Wait(ctx context.Context) (State, error) {
	o.mu.Lock()
	ch := o.settled
	o.mu.Unlock()

	select {
	case <-ch:
		return o.State(), nil
	case <-ctx.Done():
		return o.State(), ctx.Err()
	}
}

// Logout cierra la sesión en el proveedor y navega al login.
func (o *Observer) Logout(ctx context.Context) error {
	err := o.client.SignOut(ctx)
	if err != nil {
		o.logger.Warn("sign out failed", zap.Error(err))
	}
	o.nav.Navigate(domain.RouteLogin)
	return err
}

func (o *Observer) handleAuthState(user *domain.User) {
	o.mu.Lock()
	if o.torn {
		o.mu.Unlock()
		return
	}
	o.generation++
	gen := o.generation

	if user == nil {
		next := State{Phase: PhaseUnauthenticated}
		listeners := o.transitionLocked(next)
		o.mu.Unlock()
		o.emit(listeners, next)
		o.nav.Navigate(domain.RouteLogin)
		return
	}

	next := State{Phase: PhaseLoading, User: user}
	listeners := o.transitionLocked(next)
	base := o.baseCtx
	o.mu.Unlock()
	o.emit(listeners, next)

	go o.lookup(base, gen, *user)
}

func (o *Observer) lookup(base context.Context, gen uint64, user domain.User) {
	ctx, cancel := context.WithTimeout(base, o.lookupTimeout)
	defer cancel()

	start := time.Now()
	p, err := profile.LoadUserProfile(ctx, o.profiles, user.ID)
	o.metrics.ObserveProfileLookup(time.Since(start))

	next := State{User: &user}
	switch {
	case err == nil:
		next.Phase = PhaseReady
		next.Profile = &p
		o.metrics.RecordProfileOp("get", metrics.OutcomeSuccess)
	case errors.Is(err, profile.ErrNotFound):
		next.Phase = PhaseNoProfile
		o.metrics.RecordProfileOp("get", metrics.OutcomeMissing)
	default:
		next.Phase = PhaseNoProfile
		next.Message = ProfileUnavailableMessage
		o.metrics.RecordProfileOp("get", metrics.OutcomeFailure)
		o.logger.Warn("profile lookup failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	o.mu.Lock()
	if o.torn || gen != o.generation {
		o.mu.Unlock()
		return
	}
	listeners := o.transitionLocked(next)
	o.mu.Unlock()
	o.emit(listeners, next)
}

// transitionLocked aplica next y devuelve los listeners a notificar fuera del lock.
func (o *Observer) transitionLocked(next State) []func(State) {
	wasSettled := o.state.Settled()
	o.state = next
	switch {
	case next.Settled() && !wasSettled:
		o.releaseWaitersLocked()
	case !next.Settled() && wasSettled:
		o.settled = make(chan struct{})
	}
	o.metrics.RecordAuthState(next.Phase.String())
	return append([]func(State){}, o.listeners...)
}

func (o *Observer) releaseWaitersLocked() {
	select {
	case <-o.settled:
	default:
		close(o.settled)
	}
}

func (o *Observer) emit(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s)
	}
}
