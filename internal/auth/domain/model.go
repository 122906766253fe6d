// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Session represents a persisted login session. The simulated columns hold
// the platform-admin preview state and never leak into other sessions.
type Session struct {
	ID                   snowflake.ID `gorm:"primaryKey"`
	UserID               snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash     string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent            string       `gorm:"column:user_agent;type:text"`
	IPAddress            string       `gorm:"column:ip_address;type:text"`
	SimulatedRole        *string      `gorm:"column:simulated_role;type:text"`
	SimulatedPackageType *string      `gorm:"column:simulated_package_type;type:text"`
	ExpiresAt            time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt            *time.Time   `gorm:"column:revoked_at"`
	CreatedAt            time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt           time.Time    `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }
