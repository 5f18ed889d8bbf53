package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

// AuthEvent names a session transition delivered to auth listeners.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// refreshMargin is how long before expiry a session counts as expired.
const refreshMargin = 30 * time.Second

// AuthListener receives auth transitions. session is nil when signed out.
type AuthListener func(event AuthEvent, session *Session)

// Subscription detaches a listener.
type Subscription interface {
	Unsubscribe()
}

// SignUpResult is the outcome of a sign-up. Session is set only when the
// deployment confirms accounts without an email round trip.
type SignUpResult struct {
	User    *Identity
	Session *Session
}

// AuthClient talks to the auth API and owns the current session.
type AuthClient struct {
	c      *Client
	store  SessionStore
	logger logging.Logger

	mu        sync.Mutex
	session   *Session
	loaded    bool
	listeners map[int]*mailbox
	nextID    int

	refreshMu sync.Mutex
}

func newAuthClient(c *Client, store SessionStore, logger logging.Logger) *AuthClient {
	return &AuthClient{
		c:         c,
		store:     store,
		logger:    logger,
		listeners: make(map[int]*mailbox),
	}
}

// AccessToken returns the in-memory access token, or "".
func (a *AuthClient) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// SignUp creates an identity. metadata is stored as the identity's user data.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	raw, err := a.post(ctx, "/auth/v1/signup", nil, body, a.c.key)
	if err != nil {
		return nil, err
	}

	var resp struct {
		tokenResponse
		Identity
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	out := &SignUpResult{}
	if resp.tokenResponse.User != nil {
		out.User = resp.tokenResponse.User
	} else if resp.Identity.ID != "" {
		id := resp.Identity
		out.User = &id
	}
	if resp.AccessToken != "" {
		s, err := resp.tokenResponse.session(a.c.now())
		if err != nil {
			return nil, err
		}
		out.Session = s
		if out.User == nil {
			out.User = &s.User
		}
		a.setSession(ctx, s, EventSignedIn)
	}
	return out, nil
}

// SignInWithPassword exchanges credentials for a session.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{"grant_type": {"password"}}
	raw, err := a.post(ctx, "/auth/v1/token", q, map[string]string{"email": email, "password": password}, a.c.key)
	if err != nil {
		return nil, err
	}

	s, err := a.decodeSession(raw)
	if err != nil {
		return nil, err
	}
	a.setSession(ctx, s, EventSignedIn)
	return s, nil
}

// SignOut revokes the session remotely and drops it locally. The local
// session is dropped even when revocation fails; that error is returned.
func (a *AuthClient) SignOut(ctx context.Context) error {
	a.mu.Lock()
	current := a.session
	a.mu.Unlock()

	var revokeErr error
	if current != nil {
		_, revokeErr = a.post(ctx, "/auth/v1/logout", nil, nil, current.AccessToken)
		if revokeErr != nil {
			a.logger.Warn(ctx, "session revocation failed", "error", revokeErr)
		}
	}

	a.clearSession(ctx, current != nil)
	return revokeErr
}

// GetSession returns the current session, loading it from the store on
// first use and refreshing it when it is about to expire. (nil, nil) means
// there is no session.
func (a *AuthClient) GetSession(ctx context.Context) (*Session, error) {
	s, err := a.current(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if !s.ExpiresWithin(a.c.now(), refreshMargin) {
		return s, nil
	}
	return a.RefreshSession(ctx)
}

// RefreshSession swaps the refresh token for a new session. On a rejected
// refresh token the session is dropped and listeners see SIGNED_OUT.
func (a *AuthClient) RefreshSession(ctx context.Context) (*Session, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	s, err := a.current(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if !s.ExpiresWithin(a.c.now(), refreshMargin) {
		return s, nil
	}

	q := url.Values{"grant_type": {"refresh_token"}}
	raw, err := a.post(ctx, "/auth/v1/token", q, map[string]string{"refresh_token": s.RefreshToken}, a.c.key)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) && authErr.Status < http.StatusInternalServerError {
			a.clearSession(ctx, true)
		}
		return nil, err
	}

	next, err := a.decodeSession(raw)
	if err != nil {
		return nil, err
	}
	a.setSession(ctx, next, EventTokenRefreshed)
	return next, nil
}

// OnAuthStateChange registers fn. fn first receives INITIAL_SESSION with
// the stored session (or nil), then every later transition, in order and
// never concurrently with itself.
func (a *AuthClient) OnAuthStateChange(fn AuthListener) Subscription {
	mb := newMailbox(fn)

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = mb
	a.mu.Unlock()

	go func() {
		s, err := a.GetSession(context.Background())
		if err != nil {
			a.logger.Warn(context.Background(), "initial session unavailable", "error", err)
		}
		mb.post(EventInitialSession, s)
	}()

	return &subscription{stop: func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
		mb.close()
	}}
}

// StartAutoRefresh refreshes the session shortly before it expires until
// ctx is done.
func (a *AuthClient) StartAutoRefresh(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = 10 * time.Second
	}
	go func() {
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := a.GetSession(ctx); err != nil && ctx.Err() == nil {
					a.logger.Warn(ctx, "session auto-refresh failed", "error", err)
				}
			}
		}
	}()
}

func (a *AuthClient) current(ctx context.Context) (*Session, error) {
	a.mu.Lock()
	if a.session != nil || a.loaded || a.store == nil {
		s := a.session
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	s, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		a.loaded = true
		if a.session == nil {
			a.session = s
		}
	}
	return a.session, nil
}

func (a *AuthClient) setSession(ctx context.Context, s *Session, ev AuthEvent) {
	a.mu.Lock()
	a.session = s
	a.loaded = true
	targets := a.snapshot()
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Save(ctx, s); err != nil {
			a.logger.Warn(ctx, "session not persisted", "error", err)
		}
	}
	for _, mb := range targets {
		mb.post(ev, s)
	}
}

func (a *AuthClient) clearSession(ctx context.Context, notify bool) {
	a.mu.Lock()
	a.session = nil
	a.loaded = true
	targets := a.snapshot()
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Clear(ctx); err != nil {
			a.logger.Warn(ctx, "stored session not cleared", "error", err)
		}
	}
	if !notify {
		return
	}
	for _, mb := range targets {
		mb.post(EventSignedOut, nil)
	}
}

func (a *AuthClient) snapshot() []*mailbox {
	out := make([]*mailbox, 0, len(a.listeners))
	for _, mb := range a.listeners {
		out = append(out, mb)
	}
	return out
}

func (a *AuthClient) decodeSession(raw []byte) (*Session, error) {
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, err
	}
	return tr.session(a.c.now())
}

func (a *AuthClient) post(ctx context.Context, path string, q url.Values, body any, bearer string) ([]byte, error) {
	status, raw, _, err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   path,
		query:  q,
		body:   body,
		bearer: bearer,
	})
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, decodeAuthError(status, raw)
	}
	return raw, nil
}

type subscription struct {
	once sync.Once
	stop func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.stop)
}

type notice struct {
	event   AuthEvent
	session *Session
}

// mailbox delivers notices to one listener in order on its own goroutine.
type mailbox struct {
	fn AuthListener

	mu     sync.Mutex
	queue  []notice
	closed bool
	wake   chan struct{}
}

func newMailbox(fn AuthListener) *mailbox {
	mb := &mailbox{fn: fn, wake: make(chan struct{}, 1)}
	go mb.run()
	return mb
}

func (m *mailbox) post(ev AuthEvent, s *Session) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, notice{ev, s})
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	for range m.wake {
		for {
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				return
			}
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			n := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			m.fn(n.event, n.session)
		}
	}
}
