package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type Type string

const (
	TypeOverCap Type = "over_cap"
	TypeNearCap Type = "near_cap"
	TypeSpike   Type = "spike"
	TypeDigest  Type = "daily_digest"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Channel string

const ChannelEmail Channel = "email"

// AlertEvent records a delivered notification. Debounce queries match
// on the nullable scope columns exactly, NULL against NULL.
type AlertEvent struct {
	ID          snowflake.ID             `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID             `gorm:"index:ix_alert_events_org_triggered" json:"org_id"`
	BudgetID    *snowflake.ID            `gorm:"index" json:"budget_id,omitempty"`
	Provider    *usagedomain.Provider    `gorm:"type:varchar(32)" json:"provider,omitempty"`
	Environment *usagedomain.Environment `gorm:"type:varchar(16)" json:"environment,omitempty"`
	AlertType   Type                     `gorm:"type:varchar(32);not null" json:"alert_type"`
	Channel     Channel                  `gorm:"type:varchar(16);not null;default:email" json:"channel"`
	Severity    Severity                 `gorm:"type:varchar(16);not null" json:"severity"`
	Message     string                   `gorm:"type:text;not null" json:"message"`
	Metadata    datatypes.JSONMap        `json:"metadata,omitempty"`
	TriggeredAt time.Time                `gorm:"index:ix_alert_events_org_triggered;autoCreateTime" json:"triggered_at"`
}

func (AlertEvent) TableName() string {
	return "alert_events"
}

// Candidate is an alert that passed its threshold check and is waiting
// on debounce and quiet hours before delivery.
type Candidate struct {
	Type        Type
	Severity    Severity
	Provider    *usagedomain.Provider
	Environment usagedomain.Environment
	BudgetID    *snowflake.ID
	Message     string
	Metadata    map[string]any
}

type Service interface {
	// EvaluateAllOrgs runs budget alert evaluation for every org,
	// isolating per-org failures.
	EvaluateAllOrgs(ctx context.Context) error
	// EvaluateOrg checks all of one org's budgets against its current
	// projections and emits any triggered alerts.
	EvaluateOrg(ctx context.Context, orgID snowflake.ID) error
	// DigestAllOrgs sends yesterday's spend digest to every org.
	DigestAllOrgs(ctx context.Context) error
	// DigestOrg sends the spend digest for one org and day.
	DigestOrg(ctx context.Context, orgID snowflake.ID, day time.Time) error
	// ListEvents returns recent alert events for an org, newest first.
	ListEvents(ctx context.Context, orgID snowflake.ID, limit int) ([]AlertEvent, error)
}
