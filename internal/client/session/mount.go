package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/firstwins"
)

// Mount is one attachment of the manager to the auth client, the
// equivalent of a UI provider being mounted. Close detaches it.
type Mount struct {
	m      *Manager
	ctx    context.Context
	cancel context.CancelFunc

	latch  firstwins.Latch
	timer  *time.Timer
	sub    backend.Subscription
	closed atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once
	wg        sync.WaitGroup
}

// Mount starts session discovery.
//
// When the manager already holds a session or user, or an earlier mount
// finished the initial check, loading ends immediately. Otherwise a timeout
// is armed and the change stream and a one-shot lookup race; the first
// definitive answer (a session or its explicit absence) wins. When the
// timeout fires first, loading ends with no user, and a late answer may
// still update state.
func (m *Manager) Mount(ctx context.Context) *Mount {
	mctx, cancel := context.WithCancel(ctx)
	mt := &Mount{
		m:      m,
		ctx:    mctx,
		cancel: cancel,
		ready:  make(chan struct{}),
	}

	m.mu.Lock()
	fast := m.state.Session != nil || m.state.User != nil || m.checked
	m.mu.Unlock()

	if fast {
		mt.latch.Resolve()
		m.setLoading(false)
		mt.markReady()
		mt.sub = m.auth.OnAuthStateChange(mt.onAuthChange)
		return mt
	}

	m.setLoading(true)
	mt.timer = time.AfterFunc(m.opts.AuthTimeout, mt.onTimeout)
	mt.sub = m.auth.OnAuthStateChange(mt.onAuthChange)

	mt.wg.Add(1)
	go mt.lookup()
	return mt
}

// Ready is closed once this mount has ended loading, by an answer or by
// the timeout.
func (mt *Mount) Ready() <-chan struct{} { return mt.ready }

// Close unmounts: it stops the timer, detaches from the change stream and
// suppresses every callback that arrives afterwards. It is idempotent.
func (mt *Mount) Close() {
	if !mt.closed.CompareAndSwap(false, true) {
		return
	}
	mt.cancel()
	if mt.timer != nil {
		mt.timer.Stop()
	}
	if mt.sub != nil {
		mt.sub.Unsubscribe()
	}
	mt.wg.Wait()
}

func (mt *Mount) alive() bool { return !mt.closed.Load() }

func (mt *Mount) markReady() {
	mt.readyOnce.Do(func() { close(mt.ready) })
}

// win runs for the winner of the initial race.
func (mt *Mount) win() {
	if mt.timer != nil {
		mt.timer.Stop()
	}
	mt.m.markChecked()
}

func (mt *Mount) onTimeout() {
	if !mt.alive() || mt.latch.Resolved() {
		return
	}
	mt.m.logger.Warn(mt.ctx, "auth check timed out, assuming no session", "timeout", mt.m.opts.AuthTimeout)
	mt.m.setLoading(false)
	mt.markReady()
}

// lookup is the one-shot path. Its answer is discarded when the change
// stream already won.
func (mt *Mount) lookup() {
	defer mt.wg.Done()

	s, err := mt.m.auth.GetSession(mt.ctx)
	if !mt.latch.Resolve() {
		mt.m.logger.Debug(mt.ctx, "session already resolved by change stream, ignoring lookup")
		return
	}
	mt.win()
	if !mt.alive() {
		return
	}
	defer mt.markReady()

	if err != nil {
		mt.m.logger.Error(mt.ctx, "session lookup failed", "error", err)
		mt.m.setLoading(false)
		return
	}
	epoch := mt.m.applySession(s)
	if s == nil {
		mt.m.setLoading(false)
		return
	}
	_ = mt.m.loadProfile(mt.ctx, s.User.ID, epoch, mt.alive)
}

// onAuthChange is the change-stream path. It always applies the event;
// the initial event and any event carrying a session also settle the race.
func (mt *Mount) onAuthChange(ev backend.AuthEvent, s *backend.Session) {
	if !mt.alive() {
		return
	}
	mt.m.logger.Debug(mt.ctx, "auth state changed", "event", string(ev), "session", s != nil)

	if (s != nil || ev == backend.EventInitialSession) && mt.latch.Resolve() {
		mt.win()
	}

	if s == nil {
		mt.m.clear(0, true)
		mt.markReady()
		return
	}

	epoch := mt.m.applySession(s)
	_ = mt.m.loadProfile(mt.ctx, s.User.ID, epoch, mt.alive)
	mt.markReady()
}
