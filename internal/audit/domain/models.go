// Package domain contains the audit trail models.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
)

// AuditLog records one mutating action against an org-owned resource.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      *snowflake.ID     `gorm:"index:ix_audit_logs_org_created" json:"org_id"`
	ActorType  string            `gorm:"type:varchar(20);not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:varchar(255)" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:varchar(100);not null" json:"action"`
	TargetType string            `gorm:"type:varchar(50);not null" json:"target_type"`
	TargetID   *string           `gorm:"type:varchar(255)" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:ix_audit_logs_org_created" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// AuditCursor is the keyset position for paging the audit trail.
type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
