// Package profiles reads and writes the per-account rows kept next to the
// auth identity: the users profile and the role-specific row.
package profiles

import (
	"context"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
)

// Tables is the part of *backend.Client the repository uses.
type Tables interface {
	From(table string) *backend.Query
	RPC(ctx context.Context, fn string, args any, dest any) error
}

// NewUser is the data captured at sign-up.
type NewUser struct {
	ID          string
	Email       string
	PhoneNumber string
	FirstName   string
	LastName    string
	UserType    models.UserType
}

// Repository is the profile access used by the session manager.
//
// Get* return an error satisfying backend.IsNotFound when the row is missing.
type Repository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetSecurityOfficer(ctx context.Context, id string) (*models.SecurityOfficer, error)
	GetNeighborhoodMember(ctx context.Context, id string) (*models.NeighborhoodMember, error)

	CreateUser(ctx context.Context, u NewUser) error
	CreateSecurityOfficer(ctx context.Context, id string) error
	CreateNeighborhoodMember(ctx context.Context, id string) error

	// DeleteIdentity asks the backend to remove an auth identity whose
	// profile could not be created.
	DeleteIdentity(ctx context.Context, id string) error
}
