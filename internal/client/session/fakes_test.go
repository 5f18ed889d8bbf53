package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/client/repositories/profiles"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

type lookupResult struct {
	s   *backend.Session
	err error
}

type fakeAuth struct {
	mu        sync.Mutex
	session   *backend.Session
	listeners map[int]backend.AuthListener
	nextID    int
	last      backend.AuthListener

	// lookup, when set, makes GetSession wait for a result.
	lookup   chan lookupResult
	getCalls atomic.Int32

	signIn    func(email, password string) (*backend.Session, error)
	signUp    func(email, password string, md map[string]any) (*backend.SignUpResult, error)
	signOuts  atomic.Int32
	signOutFn func() error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{listeners: make(map[int]backend.AuthListener)}
}

func (f *fakeAuth) SignUp(_ context.Context, email, password string, md map[string]any) (*backend.SignUpResult, error) {
	if f.signUp == nil {
		return nil, errors.New("sign up not configured")
	}
	return f.signUp(email, password, md)
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (*backend.Session, error) {
	if f.signIn == nil {
		return nil, &backend.AuthError{Message: "Invalid login credentials", Status: 400}
	}
	s, err := f.signIn(email, password)
	if err == nil {
		f.mu.Lock()
		f.session = s
		f.mu.Unlock()
	}
	return s, err
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.signOuts.Add(1)
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	if f.signOutFn != nil {
		return f.signOutFn()
	}
	return nil
}

func (f *fakeAuth) GetSession(ctx context.Context) (*backend.Session, error) {
	f.getCalls.Add(1)
	if f.lookup != nil {
		select {
		case r := <-f.lookup:
			return r.s, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

type fakeSub struct{ stop func() }

func (s fakeSub) Unsubscribe() { s.stop() }

func (f *fakeAuth) OnAuthStateChange(fn backend.AuthListener) backend.Subscription {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.last = fn
	f.mu.Unlock()
	return fakeSub{stop: func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}}
}

// emit delivers an event to the registered listeners synchronously.
func (f *fakeAuth) emit(ev backend.AuthEvent, s *backend.Session) {
	f.mu.Lock()
	ls := make([]backend.AuthListener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(ev, s)
	}
}

// emitLate calls the most recent listener even after it unsubscribed, as a
// callback already in flight would.
func (f *fakeAuth) emitLate(ev backend.AuthEvent, s *backend.Session) {
	f.mu.Lock()
	l := f.last
	f.mu.Unlock()
	l(ev, s)
}

type fakeProfiles struct {
	mu       sync.Mutex
	users    map[string]*models.User
	officers map[string]*models.SecurityOfficer
	members  map[string]*models.NeighborhoodMember

	// missing is how many GetUser calls report not found before the row
	// appears.
	missing  int
	getCalls int
	block    chan struct{}

	createUserErr error
	createRoleErr error
	created       []profiles.NewUser
	officerRows   []string
	memberRows    []string
	deleted       []string
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		users:    make(map[string]*models.User),
		officers: make(map[string]*models.SecurityOfficer),
		members:  make(map[string]*models.NeighborhoodMember),
	}
}

func notFound() error {
	return &backend.APIError{Code: backend.CodeNoRows, Message: "no rows", Status: 406}
}

func (p *fakeProfiles) GetUser(ctx context.Context, id string) (*models.User, error) {
	p.mu.Lock()
	p.getCalls++
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.missing > 0 {
		p.missing--
		return nil, notFound()
	}
	u, ok := p.users[id]
	if !ok {
		return nil, notFound()
	}
	return u, nil
}

func (p *fakeProfiles) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls
}

func (p *fakeProfiles) GetSecurityOfficer(_ context.Context, id string) (*models.SecurityOfficer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o, ok := p.officers[id]; ok {
		return o, nil
	}
	return nil, notFound()
}

func (p *fakeProfiles) GetNeighborhoodMember(_ context.Context, id string) (*models.NeighborhoodMember, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.members[id]; ok {
		return m, nil
	}
	return nil, notFound()
}

func (p *fakeProfiles) CreateUser(_ context.Context, u profiles.NewUser) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createUserErr != nil {
		return p.createUserErr
	}
	p.created = append(p.created, u)
	p.users[u.ID] = &models.User{UserID: u.ID, Email: u.Email, UserType: u.UserType, Status: models.UserStatusPendingApproval}
	return nil
}

func (p *fakeProfiles) CreateSecurityOfficer(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createRoleErr != nil {
		return p.createRoleErr
	}
	p.officerRows = append(p.officerRows, id)
	return nil
}

func (p *fakeProfiles) CreateNeighborhoodMember(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createRoleErr != nil {
		return p.createRoleErr
	}
	p.memberRows = append(p.memberRows, id)
	return nil
}

func (p *fakeProfiles) DeleteIdentity(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

func sessionFor(id string) *backend.Session {
	return &backend.Session{
		AccessToken: "token-" + id,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        backend.Identity{ID: id, Email: id + "@example.com"},
	}
}

func newTestManager(auth *fakeAuth, repo *fakeProfiles) *Manager {
	return NewManager(auth, repo, Options{
		AuthTimeout:       time.Second,
		ProfileRetryDelay: time.Millisecond,
	}, logging.Nop())
}

func nopLogger() logging.Logger { return logging.Nop() }
