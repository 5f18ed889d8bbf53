package session

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/client/repositories/profiles"
)

// SignUpRequest is the registration form.
type SignUpRequest struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	UserType    models.UserType
}

func (r SignUpRequest) metadata() map[string]any {
	return map[string]any{
		"first_name":   r.FirstName,
		"last_name":    r.LastName,
		"phone_number": r.PhoneNumber,
		"user_type":    string(r.UserType),
	}
}

func (r SignUpRequest) newUser(id string) profiles.NewUser {
	return profiles.NewUser{
		ID:          id,
		Email:       r.Email,
		PhoneNumber: r.PhoneNumber,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		UserType:    r.UserType,
	}
}

// toAuthError converts a transport error into the user-facing shape.
func toAuthError(err error) *AuthError {
	var ae *backend.AuthError
	if errors.As(err, &ae) {
		return &AuthError{Message: ae.Message, Code: strconv.Itoa(ae.Status)}
	}
	return &AuthError{Message: err.Error()}
}

// SignIn checks credentials and loads the profile before returning. On
// failure nothing stays signed in.
func (m *Manager) SignIn(ctx context.Context, email, password string) *AuthError {
	s, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.logger.Warn(ctx, "sign in failed", "error", err)
		return toAuthError(err)
	}

	epoch := m.applySession(s)
	m.markChecked()
	if err := m.loadProfile(ctx, s.User.ID, epoch, always); err != nil {
		m.signOut(context.WithoutCancel(ctx))
		if ctx.Err() != nil {
			return toAuthError(ctx.Err())
		}
		return &AuthError{Message: msgProfileNotFound, Code: CodeProfileNotFound}
	}
	return nil
}

// SignOut revokes the session remotely and clears local state whatever
// the outcome. Calling it while signed out is a no-op.
func (m *Manager) SignOut(ctx context.Context) {
	m.signOut(ctx)
}

func (m *Manager) signOut(ctx context.Context) {
	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.Warn(ctx, "remote sign out failed", "error", err)
	}
	m.clear(0, true)
}

func alreadyRegistered(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"already registered", "user already exists", "already been registered", "email already registered"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// SignUp registers an identity, its profile row and its role row, then
// signs out: new accounts wait for approval before use. An identity left
// behind by an earlier failed sign-up is completed instead of rejected.
func (m *Manager) SignUp(ctx context.Context, req SignUpRequest) *AuthError {
	if !req.UserType.Valid() {
		return &AuthError{Message: "Invalid user type", Code: CodeInvalidUserType}
	}

	res, err := m.auth.SignUp(ctx, req.Email, req.Password, req.metadata())
	if err != nil {
		var ae *backend.AuthError
		if !errors.As(err, &ae) {
			m.logger.Error(ctx, "sign up failed", "error", err)
			return toAuthError(err)
		}
		if alreadyRegistered(ae.Message) {
			return m.recoverSignUp(ctx, req)
		}
		m.logger.Warn(ctx, "sign up rejected", "status", ae.Status, "error", ae.Message)
		if ae.Status == 422 {
			return &AuthError{Message: validationMessage(ae.Message), Code: "422"}
		}
		return &AuthError{Message: ae.Message, Code: strconv.Itoa(ae.Status)}
	}
	if res == nil || res.User == nil {
		return &AuthError{Message: "Failed to create user account", Code: CodeUserCreationFailed}
	}

	id := res.User.ID
	if err := m.profiles.CreateUser(ctx, req.newUser(id)); err != nil {
		m.logger.Error(ctx, "profile row insert failed", "user_id", id, "error", err)
		m.cleanupIdentity(ctx, id)
		m.signOut(ctx)
		return &AuthError{Message: "Failed to create user profile: " + err.Error(), Code: CodeProfileCreationFailed}
	}

	if msg, err := m.createRoleRow(ctx, req.UserType, id); err != nil {
		m.logger.Error(ctx, "role row insert failed", "user_id", id, "user_type", string(req.UserType), "error", err)
		m.cleanupIdentity(ctx, id)
		m.signOut(ctx)
		return &AuthError{Message: msg, Code: CodeRegistrationFailed}
	}

	m.signOut(ctx)
	return nil
}

// recoverSignUp handles an identity that already exists. When its profile
// is missing the registration is completed.
func (m *Manager) recoverSignUp(ctx context.Context, req SignUpRequest) *AuthError {
	existing := &AuthError{Message: msgUserExists, Code: CodeUserExistsSignIn}

	s, err := m.auth.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil || s == nil || s.User.ID == "" {
		return existing
	}
	id := s.User.ID

	if _, err := m.profiles.GetUser(ctx, id); err == nil {
		m.signOut(ctx)
		return existing
	} else if !backend.IsNotFound(err) {
		m.logger.Warn(ctx, "profile check during sign up recovery failed", "user_id", id, "error", err)
	}

	m.logger.Info(ctx, "completing registration of identity without profile", "user_id", id)
	if err := m.profiles.CreateUser(ctx, req.newUser(id)); err != nil {
		m.logger.Error(ctx, "profile row insert failed", "user_id", id, "error", err)
		m.signOut(ctx)
		return &AuthError{Message: msgDatabaseError, Code: CodeDatabaseError}
	}
	if _, err := m.createRoleRow(ctx, req.UserType, id); err != nil {
		m.logger.Error(ctx, "role row insert failed", "user_id", id, "error", err)
		m.signOut(ctx)
		return &AuthError{Message: msgDatabaseError, Code: CodeDatabaseError}
	}

	m.signOut(ctx)
	return nil
}

// createRoleRow inserts the row for t and returns the message to show on
// failure. Admins have none.
func (m *Manager) createRoleRow(ctx context.Context, t models.UserType, id string) (string, error) {
	switch t {
	case models.UserTypeSecurityOfficer:
		return "Failed to create security officer profile", m.profiles.CreateSecurityOfficer(ctx, id)
	case models.UserTypeNeighborhoodMember:
		return "Failed to create neighborhood member profile", m.profiles.CreateNeighborhoodMember(ctx, id)
	}
	return "", nil
}

func (m *Manager) cleanupIdentity(ctx context.Context, id string) {
	if err := m.profiles.DeleteIdentity(ctx, id); err != nil {
		m.logger.Warn(ctx, "orphaned identity cleanup failed", "user_id", id, "error", err)
	}
}

func validationMessage(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "password"):
		return msgWeakPassword
	case strings.Contains(lower, "email"):
		return msgInvalidEmail
	case msg != "":
		return msg
	}
	return msgInvalidInput
}
