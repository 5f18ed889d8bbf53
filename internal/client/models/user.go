// Package models defines the rows exchanged with the backend tables.
package models

import (
	"strings"
	"time"
)

// UserType is the account role stored on the users row.
type UserType string

const (
	UserTypeAdmin              UserType = "admin"
	UserTypeSecurityOfficer    UserType = "security_officer"
	UserTypeNeighborhoodMember UserType = "neighborhood_member"
)

// Valid reports whether t is one of the known roles.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeAdmin, UserTypeSecurityOfficer, UserTypeNeighborhoodMember:
		return true
	}
	return false
}

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	UserStatusActive          UserStatus = "active"
	UserStatusSuspended       UserStatus = "suspended"
	UserStatusDeleted         UserStatus = "deleted"
	UserStatusPendingApproval UserStatus = "pending_approval"
)

// User is the application profile row in "users", keyed by the auth
// identity id. PasswordHash is always empty: the auth service owns hashing.
type User struct {
	UserID       string     `json:"user_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash"`
	PhoneNumber  string     `json:"phone_number"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	UserType     UserType   `json:"user_type"`
	Status       UserStatus `json:"status"`
	IsApproved   bool       `json:"is_approved"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// FullName joins first and last name, skipping empty parts.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SecurityOfficer is the role row for officers, keyed by user id.
type SecurityOfficer struct {
	OfficerID            string     `json:"officer_id"`
	EmployeeID           *string    `json:"employee_id,omitempty"`
	ApprovedByAdminID    *string    `json:"approved_by_admin_id,omitempty"`
	SuspensionStartDate  *time.Time `json:"suspension_start_date,omitempty"`
	SuspensionEndDate    *time.Time `json:"suspension_end_date,omitempty"`
	SuspensionReason     *string    `json:"suspension_reason,omitempty"`
	IsPermanentlyDeleted bool       `json:"is_permanently_deleted"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// SubscriptionStatus is the billing state of a member.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// NeighborhoodMember is the role row for residents, keyed by user id.
type NeighborhoodMember struct {
	MemberID              string             `json:"member_id"`
	HouseNumber           *string            `json:"house_number,omitempty"`
	StreetAddress         *string            `json:"street_address,omitempty"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	SubscriptionStartDate *time.Time         `json:"subscription_start_date,omitempty"`
	LastPaymentDate       *time.Time         `json:"last_payment_date,omitempty"`
	ApprovedByAdminID     *string            `json:"approved_by_admin_id,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Address returns "<house number> <street>", or "" when either part is unset.
func (m NeighborhoodMember) Address() string {
	if m.HouseNumber == nil || m.StreetAddress == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(*m.HouseNumber) + " " + strings.TrimSpace(*m.StreetAddress))
}
