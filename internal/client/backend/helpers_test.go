package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

const testKey = "anon-test-key"

func newTestClient(t *testing.T, h http.Handler, store SessionStore) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{URL: srv.URL, Key: testKey}, store, logging.Nop())
	require.NoError(t, err)
	return c, srv
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.test",
		"exp":   exp.Unix(),
		"role":  "authenticated",
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

type memStore struct {
	mu      sync.Mutex
	s       *Session
	LoadErr error
	Saves   int
	Clears  int
}

func (m *memStore) Load(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.s, nil
}

func (m *memStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	m.Saves++
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	m.Clears++
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []AuthEvent
	ch     chan AuthEvent
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan AuthEvent, 16)}
}

func (r *recorder) listen(ev AuthEvent, _ *Session) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) next(t *testing.T) AuthEvent {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no auth event delivered")
		return ""
	}
}
