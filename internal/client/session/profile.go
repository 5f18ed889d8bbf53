package session

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
)

// RoleTask is a background fetch of the role-specific row. The profile is
// published before it completes.
type RoleTask struct {
	done chan struct{}
	err  error
}

// Done is closed when the fetch finished or was abandoned.
func (t *RoleTask) Done() <-chan struct{} { return t.done }

// Err is the fetch error, valid after Done.
func (t *RoleTask) Err() error { return t.err }

// Wait blocks until the task completes or ctx ends.
func (t *RoleTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func always() bool { return true }

// loadProfile fetches the users row for id, retrying while it is not yet
// visible, and publishes it unless epoch has passed or live reports the
// caller gone. On failure the whole state is cleared: a session without a
// profile is never exposed.
func (m *Manager) loadProfile(ctx context.Context, id string, epoch uint64, live func() bool) error {
	backoff := retry.WithMaxRetries(uint64(m.opts.ProfileFetchAttempts-1), retry.NewConstant(m.opts.ProfileRetryDelay))

	var user *models.User
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		u, err := m.profiles.GetUser(ctx, id)
		if err != nil {
			if backend.IsNotFound(err) {
				m.logger.Debug(ctx, "profile not visible yet", "user_id", id)
				return retry.RetryableError(err)
			}
			return err
		}
		user = u
		return nil
	})

	if !live() {
		return err
	}
	if err != nil {
		m.logger.Error(ctx, "profile fetch failed, clearing session", "user_id", id, "error", err)
		m.clear(epoch, false)
		return fmt.Errorf("load profile %s: %w", id, err)
	}

	published := false
	m.update(func(st *State) bool {
		if epoch != m.epoch {
			return false
		}
		st.User = user
		st.Loading = false
		published = true
		return true
	})
	if !published {
		m.logger.Debug(ctx, "discarding profile of a previous session", "user_id", id)
		return nil
	}

	m.startRoleTask(ctx, user, epoch, live)
	return nil
}

// startRoleTask launches the role-row fetch for user. Admins have no role row.
func (m *Manager) startRoleTask(ctx context.Context, user *models.User, epoch uint64, live func() bool) {
	task := &RoleTask{done: make(chan struct{})}

	var fetch func(ctx context.Context) (func(*State), error)
	switch user.UserType {
	case models.UserTypeSecurityOfficer:
		fetch = func(ctx context.Context) (func(*State), error) {
			o, err := m.profiles.GetSecurityOfficer(ctx, user.UserID)
			return func(st *State) { st.SecurityOfficer = o }, err
		}
	case models.UserTypeNeighborhoodMember:
		fetch = func(ctx context.Context) (func(*State), error) {
			nm, err := m.profiles.GetNeighborhoodMember(ctx, user.UserID)
			return func(st *State) { st.NeighborhoodMember = nm }, err
		}
	default:
		close(task.done)
		m.mu.Lock()
		m.role = task
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.role = task
	m.mu.Unlock()

	// The fetch outlives the caller's context; only its own timeout ends it.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RoleFetchTimeout)
	go func() {
		defer close(task.done)
		defer cancel()

		set, err := fetch(rctx)
		if err != nil {
			task.err = err
			m.logger.Warn(rctx, "role row fetch failed", "user_id", user.UserID, "user_type", string(user.UserType), "error", err)
			return
		}
		if !live() {
			return
		}
		m.update(func(st *State) bool {
			if epoch != m.epoch {
				return false
			}
			set(st)
			return true
		})
	}()
}
