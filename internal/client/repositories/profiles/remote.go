package profiles

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
)

// CleanupFunction is the database function that deletes an orphaned identity.
const CleanupFunction = "cleanup_orphaned_user"

type RemoteRepository struct {
	t   Tables
	now func() time.Time
}

var _ Repository = (*RemoteRepository)(nil)

func NewRemoteRepository(t Tables) *RemoteRepository {
	return &RemoteRepository{t: t, now: time.Now}
}

func (r *RemoteRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.t.From("users").Select("*").Eq("user_id", id).Single(ctx, &u); err != nil {
		return nil, fmt.Errorf("failed to get users[%s]: %w", id, err)
	}
	return &u, nil
}

func (r *RemoteRepository) GetSecurityOfficer(ctx context.Context, id string) (*models.SecurityOfficer, error) {
	var o models.SecurityOfficer
	if err := r.t.From("security_officers").Select("*").Eq("officer_id", id).Single(ctx, &o); err != nil {
		return nil, fmt.Errorf("failed to get security_officers[%s]: %w", id, err)
	}
	return &o, nil
}

func (r *RemoteRepository) GetNeighborhoodMember(ctx context.Context, id string) (*models.NeighborhoodMember, error) {
	var m models.NeighborhoodMember
	if err := r.t.From("neighborhood_members").Select("*").Eq("member_id", id).Single(ctx, &m); err != nil {
		return nil, fmt.Errorf("failed to get neighborhood_members[%s]: %w", id, err)
	}
	return &m, nil
}

// CreateUser inserts the profile in pending_approval state. The password
// hash column stays empty; the auth service owns credentials.
func (r *RemoteRepository) CreateUser(ctx context.Context, u NewUser) error {
	ts := r.now().UTC().Format(time.RFC3339Nano)
	row := map[string]any{
		"user_id":       u.ID,
		"email":         u.Email,
		"password_hash": "",
		"phone_number":  u.PhoneNumber,
		"first_name":    u.FirstName,
		"last_name":     u.LastName,
		"user_type":     u.UserType,
		"status":        models.UserStatusPendingApproval,
		"is_approved":   false,
		"created_at":    ts,
		"updated_at":    ts,
	}
	if err := r.t.From("users").Insert(ctx, row, nil); err != nil {
		return fmt.Errorf("failed to create users[%s]: %w", u.ID, err)
	}
	return nil
}

func (r *RemoteRepository) CreateSecurityOfficer(ctx context.Context, id string) error {
	ts := r.now().UTC().Format(time.RFC3339Nano)
	row := map[string]any{
		"officer_id":             id,
		"is_permanently_deleted": false,
		"created_at":             ts,
		"updated_at":             ts,
	}
	if err := r.t.From("security_officers").Insert(ctx, row, nil); err != nil {
		return fmt.Errorf("failed to create security_officers[%s]: %w", id, err)
	}
	return nil
}

func (r *RemoteRepository) CreateNeighborhoodMember(ctx context.Context, id string) error {
	ts := r.now().UTC().Format(time.RFC3339Nano)
	row := map[string]any{
		"member_id":           id,
		"subscription_status": models.SubscriptionActive,
		"created_at":          ts,
		"updated_at":          ts,
	}
	if err := r.t.From("neighborhood_members").Insert(ctx, row, nil); err != nil {
		return fmt.Errorf("failed to create neighborhood_members[%s]: %w", id, err)
	}
	return nil
}

func (r *RemoteRepository) DeleteIdentity(ctx context.Context, id string) error {
	if err := r.t.RPC(ctx, CleanupFunction, map[string]string{"target_user_id": id}, nil); err != nil {
		return fmt.Errorf("failed to clean up identity %s: %w", id, err)
	}
	return nil
}
