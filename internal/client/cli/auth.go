package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/client/session"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for credentials and signs in. On success it waits briefly
// for the role profile so the prompt reflects the role right away.
func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		return fmt.Errorf("already logged in as %s, log out first", a.session.State().User.Email)
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}

	if aerr := a.session.SignIn(ctx, email, password); aerr != nil {
		return aerr
	}
	a.waitRole(ctx)

	if u := a.session.State().User; u != nil {
		a.printf("Welcome, %s\n", u.FullName())
	}
	return nil
}

// parseUserType maps a menu answer to a self-service role. Admin accounts
// are not offered here.
func parseUserType(s string) (models.UserType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "member", "neighborhood_member":
		return models.UserTypeNeighborhoodMember, true
	case "2", "officer", "security_officer":
		return models.UserTypeSecurityOfficer, true
	}
	return "", false
}

// Signup collects the registration form and creates the account. The
// user has to log in afterwards.
func (a *App) Signup(ctx context.Context) error {
	if a.isLoggedIn() {
		return fmt.Errorf("log out before creating a new account")
	}

	var req session.SignUpRequest
	fields := []struct {
		prompt string
		dst    *string
	}{
		{"Enter first name", &req.FirstName},
		{"Enter last name", &req.LastName},
		{"Enter email", &req.Email},
		{"Enter phone number", &req.PhoneNumber},
	}
	for _, f := range fields {
		v, err := getSimpleText(a.reader, f.prompt, a.out)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	kind, err := getSimpleText(a.reader, "Account type: 1) neighborhood member 2) security officer", a.out)
	if err != nil {
		return err
	}
	t, ok := parseUserType(kind)
	if !ok {
		return fmt.Errorf("unknown account type %q", kind)
	}
	req.UserType = t

	if req.Password, err = getPassword(a.out); err != nil {
		return err
	}
	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Password == "" {
		return fmt.Errorf("please fill in all required fields")
	}

	if aerr := a.session.SignUp(ctx, req); aerr != nil {
		if aerr.Code == session.CodeUserExistsSignIn {
			a.printf("%s\n", aerr.Message)
			return nil
		}
		return aerr
	}
	a.printf("Account created. Please log in.\n")
	return nil
}

// Logout ends the session. Local state is cleared even if the server
// call fails.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		return fmt.Errorf("not logged in")
	}
	a.session.SignOut(ctx)
	a.printf("Logged out\n")
	return nil
}

// Whoami prints the signed-in profile.
func (a *App) Whoami(ctx context.Context) error {
	u, err := a.user()
	if err != nil {
		return err
	}
	a.printf("%s <%s>\nRole: %s\nStatus: %s\n", u.FullName(), u.Email, u.UserType, u.Status)
	if !u.IsApproved {
		a.printf("Account is awaiting approval\n")
	}
	if m := a.session.State().NeighborhoodMember; m != nil {
		if addr := m.Address(); addr != "" {
			a.printf("House: %s\n", addr)
		}
		a.printf("Subscription: %s\n", m.SubscriptionStatus)
	}
	return nil
}
