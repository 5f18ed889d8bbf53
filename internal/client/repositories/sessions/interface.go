// Package sessions persists the auth session on the device so a restart
// resumes the signed-in account.
package sessions

import (
	"context"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
)

// Repository is the session store consumed by backend.AuthClient.
type Repository interface {
	backend.SessionStore

	// Get returns the raw value stored under key, or (nil, nil).
	Get(ctx context.Context, key string) ([]byte, error)
}

var _ Repository = (*SQLiteRepository)(nil)
