// Package domain contains persistence models for provider connections.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// Status tracks the lifecycle of a provider connection.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusError, StatusDisabled:
		return true
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Connection binds an org to one provider account in one environment.
type Connection struct {
	ID                snowflake.ID            `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID            `gorm:"not null;uniqueIndex:uq_connections_scope" json:"org_id"`
	Provider          usagedomain.Provider    `gorm:"type:varchar(20);not null;uniqueIndex:uq_connections_scope" json:"provider"`
	Environment       usagedomain.Environment `gorm:"type:varchar(20);not null;uniqueIndex:uq_connections_scope" json:"environment"`
	Status            Status                  `gorm:"type:varchar(20);not null;default:pending" json:"status"`
	DisplayName       string                  `gorm:"type:varchar(255)" json:"display_name"`
	LocalAgent        bool                    `gorm:"not null;default:false" json:"local_agent"`
	EncryptedAuthBlob []byte                  `gorm:"type:bytea" json:"-"`
	Metadata          datatypes.JSONMap       `gorm:"type:jsonb" json:"metadata"`
	LastSyncedAt      *time.Time              `json:"last_synced_at"`
	CreatedAt         time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Connection) TableName() string { return "connections" }
