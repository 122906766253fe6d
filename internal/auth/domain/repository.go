package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID snowflake.ID) (*Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error
	// UpdateSimulation overwrites both simulation columns in one statement;
	// nil clears a column.
	UpdateSimulation(ctx context.Context, sessionID snowflake.ID, role *string, packageType *string) error
	RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error
}
