// Package domain defines the append-only audit trail written alongside
// every scoring decision and case action.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions recorded by the scoring pipeline.
const (
	ActionScore       = "score"
	ActionDisposition = "disposition"
)

const ActorTypeSystem = "system"

var ErrInvalidAction = errors.New("invalid_action")

// AuditLog is one immutable trail entry. Rows are never updated or deleted.
type AuditLog struct {
	ID         snowflake.ID       `gorm:"primaryKey"`
	TenantID   string             `gorm:"type:text;not null;index:ix_audit_tenant"`
	ActorType  string             `gorm:"type:text;not null"`
	ActorID    *string            `gorm:"type:text"`
	Action     string             `gorm:"type:text;not null"`
	TargetType string             `gorm:"type:text;not null"`
	TargetID   *string            `gorm:"type:text"`
	Metadata   datatypes.JSONMap  `gorm:"type:jsonb"`
	TraceID    *string            `gorm:"type:text"`
	CreatedAt  time.Time          `gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_log" }

// Entry is the caller-facing shape of one trail write.
type Entry struct {
	TenantID   string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// ListFilter narrows a trail read. Zero fields are ignored.
type ListFilter struct {
	TenantID   string
	Action     string
	TargetType string
	TargetID   string
	Limit      int
}

type Service interface {
	// Append writes one entry inside the caller's transaction.
	Append(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}
