// Package session owns the client's authentication state: the current
// session, the user profile and the role-specific row. It reconciles the
// two ways the auth client reports the current session (a one-shot lookup
// and a change stream) and keeps the state either fully signed in or fully
// signed out.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/client/repositories/profiles"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

// Auth is the auth client surface the manager depends on.
// *backend.AuthClient satisfies it.
type Auth interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*backend.Session, error)
	OnAuthStateChange(fn backend.AuthListener) backend.Subscription
}

// Options tunes the manager. Zero fields take the defaults.
type Options struct {
	// AuthTimeout bounds how long a mount waits for the initial session.
	AuthTimeout time.Duration
	// ProfileFetchAttempts is the total number of profile lookups made
	// while the row is not found.
	ProfileFetchAttempts int
	// ProfileRetryDelay separates those lookups.
	ProfileRetryDelay time.Duration
	// RoleFetchTimeout bounds the background role-row lookup.
	RoleFetchTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 8 * time.Second
	}
	if o.ProfileFetchAttempts <= 0 {
		o.ProfileFetchAttempts = 3
	}
	if o.ProfileRetryDelay <= 0 {
		o.ProfileRetryDelay = 100 * time.Millisecond
	}
	if o.RoleFetchTimeout <= 0 {
		o.RoleFetchTimeout = 10 * time.Second
	}
	return o
}

// State is a snapshot of the auth state. Values are shared; treat them as
// read-only.
type State struct {
	Session            *backend.Session
	User               *models.User
	SecurityOfficer    *models.SecurityOfficer
	NeighborhoodMember *models.NeighborhoodMember
	Loading            bool
}

// SignedIn reports whether a profile is loaded.
func (s State) SignedIn() bool {
	return s.User != nil
}

// Listener observes state changes. It is called without the state lock
// held and must not block or change the manager's state.
type Listener func(State)

// Manager is the owned auth state container.
type Manager struct {
	auth     Auth
	profiles profiles.Repository
	opts     Options
	logger   logging.Logger

	mu        sync.Mutex
	state     State
	epoch     uint64
	checked   bool
	role      *RoleTask
	listeners map[int]Listener
	nextID    int
	// version counts writes; delivered is the newest version handed to
	// listeners. Both order notifications.
	version   uint64
	deliverMu sync.Mutex
	delivered uint64
}

// NewManager builds a Manager in the loading state.
func NewManager(auth Auth, repo profiles.Repository, opts Options, logger logging.Logger) *Manager {
	return &Manager{
		auth:      auth,
		profiles:  repo,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "session"),
		state:     State{Loading: true},
		listeners: make(map[int]Listener),
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// RoleTask returns the most recent role-row fetch, or nil.
func (m *Manager) RoleTask() *RoleTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// update runs fn under the lock and notifies listeners when it reports a
// change. Deliveries are serialized and a snapshot older than one already
// delivered is dropped, so the last notification always matches State().
func (m *Manager) update(fn func(s *State) bool) {
	m.mu.Lock()
	if !fn(&m.state) {
		m.mu.Unlock()
		return
	}
	m.version++
	v, snap := m.version, m.state
	ls := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.mu.Unlock()

	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	if v <= m.delivered {
		return
	}
	m.delivered = v
	for _, l := range ls {
		l(snap)
	}
}

func (m *Manager) setLoading(v bool) {
	m.update(func(s *State) bool {
		if s.Loading == v {
			return false
		}
		s.Loading = v
		return true
	})
}

func (m *Manager) markChecked() {
	m.mu.Lock()
	m.checked = true
	m.mu.Unlock()
}

func identityOf(s *backend.Session) string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// applySession stores s and returns the epoch the caller's follow-up work
// belongs to. A change of identity starts a new epoch and drops the
// profile of the previous one.
func (m *Manager) applySession(s *backend.Session) uint64 {
	var epoch uint64
	m.update(func(st *State) bool {
		if identityOf(st.Session) != identityOf(s) {
			m.epoch++
			st.User = nil
			st.SecurityOfficer = nil
			st.NeighborhoodMember = nil
		}
		st.Session = s
		epoch = m.epoch
		return true
	})
	return epoch
}

// clear drops everything and ends the current epoch. It is a no-op for a
// caller whose epoch has already passed, unless force is set.
func (m *Manager) clear(epoch uint64, force bool) {
	m.update(func(st *State) bool {
		if !force && epoch != m.epoch {
			return false
		}
		m.epoch++
		*st = State{}
		return true
	})
}
