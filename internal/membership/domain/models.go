// Package domain contains users, their company binding and invitations.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleTech    Role = "tech"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTech:
		return true
	}
	return false
}

type PlatformRole string

const (
	PlatformAdmin PlatformRole = "platform_admin"
	CustomerUser  PlatformRole = "customer_user"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// User is a login identity. CompanyID is nil for unaffiliated users and for
// platform admins that are not bound to a tenant.
type User struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	CompanyID    *snowflake.ID `gorm:"column:company_id;index" json:"company_id,omitempty"`
	Email        string        `gorm:"column:email;type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	DisplayName  string        `gorm:"column:display_name;type:text;not null;default:''" json:"display_name"`
	PasswordHash *string       `gorm:"column:password_hash;type:text" json:"-"`
	Role         Role          `gorm:"column:role;type:text;not null;default:''" json:"role"`
	PlatformRole PlatformRole  `gorm:"column:platform_role;type:text;not null;default:'customer_user'" json:"platform_role"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

func (u User) IsPlatformAdmin() bool { return u.PlatformRole == PlatformAdmin }

// Invitation reserves a seat for an email address until it is accepted,
// cancelled or expires.
type Invitation struct {
	ID         snowflake.ID     `gorm:"primaryKey" json:"id"`
	CompanyID  snowflake.ID     `gorm:"column:company_id;not null;index" json:"company_id"`
	Email      string           `gorm:"column:email;type:text;not null;index" json:"email"`
	Role       Role             `gorm:"column:role;type:text;not null" json:"role"`
	Status     InvitationStatus `gorm:"column:status;type:text;not null;index" json:"status"`
	ExpiresAt  time.Time        `gorm:"column:expires_at;not null" json:"expires_at"`
	TokenHash  string           `gorm:"column:token_hash;type:text;not null;uniqueIndex:ux_invitations_token_hash" json:"-"`
	InvitedBy  *snowflake.ID    `gorm:"column:invited_by" json:"invited_by,omitempty"`
	AcceptedAt *time.Time       `gorm:"column:accepted_at" json:"accepted_at,omitempty"`
	CreatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "invitations" }

// Live reports whether the invitation still holds a seat at now.
func (i Invitation) Live(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
