// Package domain contains the usage metering models and service contracts.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Provider enumerates the upstream vendors usage can be metered from.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderTwilio   Provider = "twilio"
	ProviderSendgrid Provider = "sendgrid"
	ProviderStripe   Provider = "stripe"
	ProviderGeneric  Provider = "generic"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderTwilio, ProviderSendgrid, ProviderStripe, ProviderGeneric:
		return true
	}
	return false
}

func ParseProvider(raw string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", ErrInvalidProvider
	}
	return p, nil
}

// Environment scopes a connection and the usage it produces.
type Environment string

const (
	EnvProd    Environment = "prod"
	EnvStaging Environment = "staging"
	EnvDev     Environment = "dev"
)

func (e Environment) Valid() bool {
	switch e {
	case EnvProd, EnvStaging, EnvDev:
		return true
	}
	return false
}

func ParseEnvironment(raw string) (Environment, error) {
	e := Environment(strings.ToLower(strings.TrimSpace(raw)))
	if !e.Valid() {
		return "", ErrInvalidEnvironment
	}
	return e, nil
}

// EventNamespace is the UUIDv5 namespace for stable raw event identities.
var EventNamespace = uuid.MustParse("f4e8b4a0-9bd3-4f16-9930-49f9f1469ef8")

// UsageSample is one unit of metered activity before persistence.
type UsageSample struct {
	OrgID        snowflake.ID
	ConnectionID *snowflake.ID
	Provider     Provider
	Environment  Environment
	Metric       string
	Unit         string
	Quantity     decimal.Decimal
	UnitCost     *decimal.Decimal
	Currency     string
	TS           time.Time
	Source       string
	Metadata     map[string]any
}

// Cost returns quantity times unit cost at six decimal places, or nil
// when the sample carries no unit cost.
func (s UsageSample) Cost() *decimal.Decimal {
	if s.UnitCost == nil {
		return nil
	}
	cost := s.Quantity.Mul(*s.UnitCost).Round(6)
	return &cost
}

// EventID derives the deterministic identity used for deduplication.
// Replayed samples with the same provider, scope, metric and timestamp
// always map to the same UUID. The timestamp is keyed at second
// precision so reports differing only in sub-second digits collide.
func (s UsageSample) EventID() uuid.UUID {
	scope := s.OrgID.String()
	if s.ConnectionID != nil {
		scope = s.ConnectionID.String()
	}
	token := fmt.Sprintf("%s:%s:%s:%s", s.Provider, scope, s.Metric, s.TS.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(EventNamespace, []byte(token))
}

// RawUsageEvent is the append-only record of a deduped usage sample.
type RawUsageEvent struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	OrgID        snowflake.ID      `gorm:"not null;index:ix_raw_usage_events_org_ts"`
	ConnectionID *snowflake.ID     `gorm:"index"`
	Provider     Provider          `gorm:"type:varchar(20);not null;index:ix_raw_usage_events_provider_ts"`
	Environment  Environment       `gorm:"type:varchar(20);not null"`
	Metric       string            `gorm:"type:varchar(255);not null"`
	Unit         string            `gorm:"type:varchar(64);not null"`
	Quantity     decimal.Decimal   `gorm:"type:numeric(20,6);not null"`
	UnitCost     *decimal.Decimal  `gorm:"type:numeric(20,6)"`
	Cost         *decimal.Decimal  `gorm:"type:numeric(20,6)"`
	Currency     string            `gorm:"type:varchar(3);not null;default:usd"`
	TS           time.Time         `gorm:"not null;index:ix_raw_usage_events_org_ts;index:ix_raw_usage_events_provider_ts"`
	Source       string            `gorm:"type:varchar(50)"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	IngestedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RawUsageEvent) TableName() string { return "raw_usage_events" }

// DailyUsageCost is the per-day additive rollup of raw events.
// Day is the UTC calendar day as YYYY-MM-DD text so that SQL-side and
// Go-side writers agree on the uniqueness key across dialects.
type DailyUsageCost struct {
	OrgID         snowflake.ID     `gorm:"primaryKey"`
	Provider      Provider         `gorm:"type:varchar(20);primaryKey"`
	Environment   Environment      `gorm:"type:varchar(20);primaryKey"`
	Day           string           `gorm:"type:varchar(10);primaryKey"`
	QuantitySum   decimal.Decimal  `gorm:"type:numeric(20,6);not null"`
	CostSum       decimal.Decimal  `gorm:"type:numeric(20,6);not null"`
	Currency      string           `gorm:"type:varchar(3);not null;default:usd"`
	ConfidenceMin *decimal.Decimal `gorm:"type:numeric(20,6)"`
	ConfidenceMax *decimal.Decimal `gorm:"type:numeric(20,6)"`
}

// TableName sets the database table name.
func (DailyUsageCost) TableName() string { return "daily_usage_costs" }

// DayOf formats a timestamp as its UTC calendar day key.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
