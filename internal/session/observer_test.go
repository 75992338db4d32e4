package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"account-portal/internal/domain"
	"account-portal/internal/profile"
)

type fakeClient struct {
	mu         sync.Mutex
	user       *domain.User
	subs       map[int]func(*domain.User)
	next       int
	signOutErr error
}

func newFakeClient(user *domain.User) *fakeClient {
	return &fakeClient{user: user, subs: make(map[int]func(*domain.User))}
}

func (f *fakeClient) CreateAccount(context.Context, string, string) (domain.User, error) {
	return domain.User{}, errors.New("not implemented")
}

func (f *fakeClient) SignInWithPassword(context.Context, string, string) (domain.User, error) {
	return domain.User{}, errors.New("not implemented")
}

func (f *fakeClient) SignInWithFederated(context.Context, string, string) (domain.User, domain.FederatedIdentity, error) {
	return domain.User{}, domain.FederatedIdentity{}, errors.New("not implemented")
}

func (f *fakeClient) SetDisplayName(context.Context, domain.User, string) error { return nil }

func (f *fakeClient) SignOut(context.Context) error {
	f.set(nil)
	return f.signOutErr
}

func (f *fakeClient) CurrentUser() *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakeClient) OnAuthStateChanged(fn func(*domain.User)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	current := f.user
	f.mu.Unlock()
	fn(current)
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeClient) set(user *domain.User) {
	f.mu.Lock()
	f.user = user
	subs := make([]func(*domain.User), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(user)
	}
}

func (f *fakeClient) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// blockingStore retiene Get hasta que se cierre release.
type blockingStore struct {
	profile.Store
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) Get(ctx context.Context, collection, key string) (profile.Document, error) {
	close(b.started)
	<-b.release
	return b.Store.Get(ctx, collection, key)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string, string) (profile.Document, error) {
	return nil, &profile.StoreError{Op: "get", Err: errors.New("unavailable")}
}

func (failingStore) Upsert(context.Context, string, string, map[string]any, bool) error {
	return &profile.StoreError{Op: "upsert", Err: errors.New("unavailable")}
}

type navRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (n *navRecorder) Navigate(route string) {
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()
}

func (n *navRecorder) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.routes...)
}

func waitSettled(t *testing.T, o *Observer) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := o.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return s
}

var ana = domain.User{ID: "u1", Email: "a@x.com"}

func seededStore(t *testing.T) *profile.MemoryStore {
	t.Helper()
	store := profile.NewMemoryStore()
	p := domain.UserProfile{FirstName: "Ana", LastName: "Li", DOB: "1990-01-01", Email: "a@x.com"}
	if err := profile.SaveUserProfile(context.Background(), store, ana.ID, p, false); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return store
}

func TestObserver_UnauthenticatedRedirectsToLogin(t *testing.T) {
	nav := &navRecorder{}
	o := NewObserver(newFakeClient(nil), profile.NewMemoryStore(), nav, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer o.Unmount()

	s := waitSettled(t, o)
	if s.Phase != PhaseUnauthenticated || s.Profile != nil {
		t.Fatalf("expected unauthenticated without profile, got %+v", s)
	}
	if got := nav.all(); len(got) != 1 || got[0] != domain.RouteLogin {
		t.Fatalf("expected redirect to login, got %v", got)
	}
}

func TestObserver_LoadsProfile(t *testing.T) {
	user := ana
	nav := &navRecorder{}
	o := NewObserver(newFakeClient(&user), seededStore(t), nav, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer o.Unmount()

	s := waitSettled(t, o)
	if s.Phase != PhaseReady || s.Profile == nil {
		t.Fatalf("expected ready with profile, got %+v", s)
	}
	if s.Profile.FirstName != "Ana" || s.Profile.DOB != "1990-01-01" {
		t.Fatalf("unexpected profile %+v", s.Profile)
	}
	if len(nav.all()) != 0 {
		t.Fatalf("expected no navigation, got %v", nav.all())
	}
}

func TestObserver_MissingProfileSettlesAsNoProfile(t *testing.T) {
	user := ana
	o := NewObserver(newFakeClient(&user), profile.NewMemoryStore(), nil, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer o.Unmount()

	s := waitSettled(t, o)
	if s.Phase != PhaseNoProfile || s.Profile != nil || s.Message != "" {
		t.Fatalf("expected no_profile without message, got %+v", s)
	}
}

func TestObserver_LookupFailureSettlesWithMessage(t *testing.T) {
	user := ana
	o := NewObserver(newFakeClient(&user), failingStore{}, nil, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer o.Unmount()

	s := waitSettled(t, o)
	if s.Phase != PhaseNoProfile || s.Message != ProfileUnavailableMessage {
		t.Fatalf("expected no_profile with message, got %+v", s)
	}
	if strings.Contains(s.Message, "unavailable") || strings.Contains(s.Message, "get") {
		t.Fatalf("store error leaked into message: %q", s.Message)
	}
}

func TestObserver_MountOnce(t *testing.T) {
	client := newFakeClient(nil)
	o := NewObserver(client, profile.NewMemoryStore(), nil, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := o.Mount(context.Background()); !errors.Is(err, ErrAlreadyMounted) {
		t.Fatalf("expected ErrAlreadyMounted, got %v", err)
	}
	if client.subscribers() != 1 {
		t.Fatalf("expected exactly one subscription, got %d", client.subscribers())
	}
	o.Unmount()
	o.Unmount()
	if client.subscribers() != 0 {
		t.Fatalf("expected subscription released, got %d", client.subscribers())
	}
	if err := o.Mount(context.Background()); !errors.Is(err, ErrAlreadyMounted) {
		t.Fatalf("expected torn-down observer to refuse remount, got %v", err)
	}
}

func TestObserver_SignOutTransitionsToUnauthenticated(t *testing.T) {
	user := ana
	client := newFakeClient(&user)
	nav := &navRecorder{}
	o := NewObserver(client, seededStore(t), nav, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer o.Unmount()
	if s := waitSettled(t, o); s.Phase != PhaseReady {
		t.Fatalf("expected ready, got %v", s.Phase)
	}

	if err := o.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	s := o.State()
	if s.Phase != PhaseUnauthenticated || s.Profile != nil || s.User != nil {
		t.Fatalf("expected unauthenticated after logout, got %+v", s)
	}
	routes := nav.all()
	if len(routes) == 0 || routes[len(routes)-1] != domain.RouteLogin {
		t.Fatalf("expected navigation to login, got %v", routes)
	}

	// El siguiente montaje redirige sin pasar por Ready.
	var phases []Phase
	next := NewObserver(client, seededStore(t), nav, Options{})
	next.OnChange(func(s State) { phases = append(phases, s.Phase) })
	if err := next.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer next.Unmount()
	waitSettled(t, next)
	for _, p := range phases {
		if p == PhaseReady {
			t.Fatalf("profile flashed after sign out: %v", phases)
		}
	}
}

func TestObserver_LogoutSurfacesSignOutError(t *testing.T) {
	user := ana
	client := newFakeClient(&user)
	client.signOutErr = errors.New("revoke failed")
	nav := &navRecorder{}
	o := NewObserver(client, seededStore(t), nav, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer o.Unmount()
	waitSettled(t, o)

	if err := o.Logout(context.Background()); err == nil {
		t.Fatalf("expected sign out error")
	}
	routes := nav.all()
	if len(routes) == 0 || routes[len(routes)-1] != domain.RouteLogin {
		t.Fatalf("expected navigation to login even on error, got %v", routes)
	}
}

func TestObserver_UnmountDuringLookupIgnoresResult(t *testing.T) {
	user := ana
	store := &blockingStore{Store: seededStore(t), started: make(chan struct{}), release: make(chan struct{})}
	var mu sync.Mutex
	var changes []State
	o := NewObserver(newFakeClient(&user), store, nil, Options{})
	o.OnChange(func(s State) {
		mu.Lock()
		changes = append(changes, s)
		mu.Unlock()
	})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}

	<-store.started
	o.Unmount()
	close(store.release)

	s := waitSettled(t, o)
	if s.Phase != PhaseLoading {
		t.Fatalf("expected state frozen at loading after teardown, got %v", s.Phase)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for _, c := range changes {
		if c.Phase == PhaseReady {
			t.Fatalf("state updated after teardown: %+v", changes)
		}
	}
	if o.State().Phase != PhaseLoading {
		t.Fatalf("expected no update after teardown")
	}
}

func TestObserver_StaleLookupIsSuperseded(t *testing.T) {
	user := ana
	client := newFakeClient(&user)
	store := &blockingStore{Store: seededStore(t), started: make(chan struct{}), release: make(chan struct{})}
	nav := &navRecorder{}
	o := NewObserver(client, store, nav, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer o.Unmount()

	<-store.started
	client.set(nil)
	close(store.release)

	time.Sleep(50 * time.Millisecond)
	if s := o.State(); s.Phase != PhaseUnauthenticated {
		t.Fatalf("expected stale lookup discarded, got %v", s.Phase)
	}
}

func TestObserver_WaitHonoursContext(t *testing.T) {
	user := ana
	store := &blockingStore{Store: seededStore(t), started: make(chan struct{}), release: make(chan struct{})}
	o := NewObserver(newFakeClient(&user), store, nil, Options{})
	if err := o.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer func() {
		o.Unmount()
		close(store.release)
	}()
	<-store.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s, err := o.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if s.Phase != PhaseLoading {
		t.Fatalf("expected loading, got %v", s.Phase)
	}
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		PhaseLoading:         "loading",
		PhaseUnauthenticated: "unauthenticated",
		PhaseReady:           "ready",
		PhaseNoProfile:       "no_profile",
		Phase(99):            "unknown",
	}
	for p, want := range tests {
		if p.String() != want {
			t.Fatalf("expected %q, got %q", want, p.String())
		}
	}
}
