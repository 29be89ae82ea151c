// Package domain contains plan entitlement models and the cadence rules
// derived from them.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	orgdomain "github.com/saurav5380/apicompass/internal/organization/domain"
)

// OrgEntitlement stores resolved plan limits per org.
type OrgEntitlement struct {
	ID                  snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID               snowflake.ID   `gorm:"not null;uniqueIndex:uq_org_entitlements_org_id" json:"org_id"`
	Plan                orgdomain.Plan `gorm:"type:varchar(20);not null;default:free" json:"plan"`
	MaxProviders        int            `gorm:"not null;default:1" json:"max_providers"`
	SyncIntervalMinutes int            `gorm:"not null;default:1440" json:"sync_interval_minutes"`
	DigestFrequency     string         `gorm:"type:varchar(20);not null;default:weekly" json:"digest_frequency"`
	AlertsEnabled       bool           `gorm:"not null;default:false" json:"alerts_enabled"`
	TipsEnabled         bool           `gorm:"not null;default:false" json:"tips_enabled"`
	TrialEndsAt         *time.Time     `json:"trial_ends_at"`
	BillingStatus       string         `gorm:"type:varchar(50);not null;default:inactive" json:"billing_status"`
	CreatedAt           time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (OrgEntitlement) TableName() string { return "org_entitlements" }

// PlanDefinition is the static shape of a plan tier.
type PlanDefinition struct {
	Plan                orgdomain.Plan
	Label               string
	MaxProviders        int
	SyncIntervalMinutes int
	DigestFrequency     string
	AlertsEnabled       bool
	TipsEnabled         bool
	TrialDays           int
}

var planDefinitions = map[orgdomain.Plan]PlanDefinition{
	orgdomain.PlanFree: {
		Plan:                orgdomain.PlanFree,
		Label:               "Free",
		MaxProviders:        1,
		SyncIntervalMinutes: 24 * 60,
		DigestFrequency:     "weekly",
	},
	orgdomain.PlanPro: {
		Plan:                orgdomain.PlanPro,
		Label:               "Pro",
		MaxProviders:        3,
		SyncIntervalMinutes: 60,
		DigestFrequency:     "daily",
		AlertsEnabled:       true,
		TipsEnabled:         true,
		TrialDays:           14,
	},
	orgdomain.PlanEnterprise: {
		Plan:                orgdomain.PlanEnterprise,
		Label:               "Enterprise",
		MaxProviders:        10,
		SyncIntervalMinutes: 15,
		DigestFrequency:     "daily",
		AlertsEnabled:       true,
		TipsEnabled:         true,
	},
}

// Definition returns the static plan shape, falling back to free.
func Definition(plan orgdomain.Plan) PlanDefinition {
	if def, ok := planDefinitions[plan]; ok {
		return def
	}
	return planDefinitions[orgdomain.PlanFree]
}

var trialStatuses = map[string]struct{}{
	"trialing":   {},
	"incomplete": {},
}

// Snapshot is the resolved entitlement view handed to callers.
type Snapshot struct {
	Plan                orgdomain.Plan `json:"plan"`
	MaxProviders        int            `json:"max_providers"`
	SyncIntervalMinutes int            `json:"sync_interval_minutes"`
	DigestFrequency     string         `json:"digest_frequency"`
	AlertsEnabled       bool           `json:"alerts_enabled"`
	TipsEnabled         bool           `json:"tips_enabled"`
	TrialEndsAt         *time.Time     `json:"trial_ends_at"`
	BillingStatus       string         `json:"billing_status"`
}

// TrialActive reports whether the snapshot is inside an active trial.
func (s Snapshot) TrialActive(now time.Time) bool {
	if s.TrialEndsAt == nil {
		return false
	}
	if _, ok := trialStatuses[s.BillingStatus]; !ok {
		return false
	}
	return s.TrialEndsAt.After(now)
}

// AllowSync reports whether a connection is due for polling given the
// plan cadence. A never-synced connection is always due.
func AllowSync(s Snapshot, lastSyncedAt *time.Time, now time.Time) bool {
	if lastSyncedAt == nil {
		return true
	}
	target := lastSyncedAt.Add(time.Duration(s.SyncIntervalMinutes) * time.Minute)
	return !now.Before(target)
}

// PlanLimitError is returned when the org has exhausted its provider slots.
type PlanLimitError struct {
	Limit int
}

func (e *PlanLimitError) Error() string {
	return fmt.Sprintf("plan limit reached, max providers %d", e.Limit)
}

// FeatureDisabledError is returned when the plan does not include a feature.
type FeatureDisabledError struct {
	Feature string
}

func (e *FeatureDisabledError) Error() string {
	return fmt.Sprintf("feature %q unavailable on the current plan", e.Feature)
}

// EnsureFeature rejects features the snapshot does not include.
func EnsureFeature(s Snapshot, feature string) error {
	if feature == "alerts" && !s.AlertsEnabled {
		return &FeatureDisabledError{Feature: feature}
	}
	if feature == "tips" && !s.TipsEnabled {
		return &FeatureDisabledError{Feature: feature}
	}
	return nil
}
