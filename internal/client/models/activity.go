package models

import (
	"strings"
	"time"
)

// AlertStatus is the state of an emergency alert.
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// Author is the relational embed neighborhood_members(users(first_name,last_name)).
type Author struct {
	Users *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"users,omitempty"`
}

// Name returns the embedded author's name, or "Unknown".
func (a *Author) Name() string {
	if a == nil || a.Users == nil {
		return "Unknown"
	}
	n := strings.TrimSpace(a.Users.FirstName + " " + a.Users.LastName)
	if n == "" {
		return "Unknown"
	}
	return n
}

// EmergencyAlert is a row in "emergency_alerts".
type EmergencyAlert struct {
	AlertID             string      `json:"alert_id"`
	RaisedByMemberID    string      `json:"raised_by_member_id"`
	AlertType           string      `json:"alert_type"`
	Description         *string     `json:"description,omitempty"`
	Latitude            *float64    `json:"latitude,omitempty"`
	Longitude           *float64    `json:"longitude,omitempty"`
	Status              AlertStatus `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
	ResolvedAt          *time.Time  `json:"resolved_at,omitempty"`
	ResolvedByOfficerID *string     `json:"resolved_by_officer_id,omitempty"`

	RaisedBy *Author `json:"neighborhood_members,omitempty"`
}

// DescriptionOr returns the description or def when it is unset.
func (a EmergencyAlert) DescriptionOr(def string) string {
	if a.Description == nil || *a.Description == "" {
		return def
	}
	return *a.Description
}

// QRCode is a patrol checkpoint in "qr_codes".
type QRCode struct {
	QRCodeID            string    `json:"qr_code_id"`
	QRCodeValue         string    `json:"qr_code_value"`
	LocationDescription *string   `json:"location_description,omitempty"`
	GateName            *string   `json:"gate_name,omitempty"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Location returns the location description, or "".
func (q QRCode) Location() string {
	if q.LocationDescription == nil {
		return ""
	}
	return *q.LocationDescription
}

// Label names the checkpoint for display: the gate name when set, else the
// location.
func (q QRCode) Label() string {
	if q.GateName != nil && *q.GateName != "" {
		return *q.GateName
	}
	return q.Location()
}

// PatrolScan is an immutable row in "patrol_scans".
type PatrolScan struct {
	ScanID          string     `json:"scan_id"`
	OfficerID       string     `json:"officer_id"`
	QRCodeID        string     `json:"qr_code_id"`
	ScanTimestamp   time.Time  `json:"scan_timestamp"`
	Comments        *string    `json:"comments,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	SyncedAt        *time.Time `json:"synced_at,omitempty"`
	CreatedAtDevice *time.Time `json:"created_at_device,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`

	Checkpoint *QRCode `json:"qr_codes,omitempty"`
}

// CommunityPost is a row in "community_posts".
type CommunityPost struct {
	PostID    string    `json:"post_id"`
	MemberID  string    `json:"member_id"`
	Content   string    `json:"content"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Author *Author `json:"neighborhood_members,omitempty"`
}

// Comment is a row in "community_comments".
type Comment struct {
	CommentID string    `json:"comment_id"`
	PostID    string    `json:"post_id"`
	MemberID  string    `json:"member_id"`
	Content   string    `json:"content"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`

	Author *Author `json:"neighborhood_members,omitempty"`
}
