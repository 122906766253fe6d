package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Entry describes a single auditable action. Actor and client details are
// resolved from the request context when not set.
type Entry struct {
	CompanyID  *snowflake.ID
	ActorType  string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	Metadata   map[string]any

	// PlatformScoped entries never inherit a company from the context.
	PlatformScoped bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, limit int) ([]AuditLog, error)
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	// RecordTx writes the entry through tx so it commits or rolls back with
	// the surrounding mutation.
	RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, companyID snowflake.ID, limit int) ([]AuditLog, error)
}

var (
	ErrInvalidAction  = errors.New("invalid_action")
	ErrInvalidCompany = errors.New("invalid_company")
)
