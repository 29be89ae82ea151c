// Package domain contains persistence models for the org service.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plan names the subscription tier an org is on.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

func ParsePlan(raw string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", ErrInvalidPlan
	}
	return p, nil
}

// Organization represents a tenant.
type Organization struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Plan      Plan         `gorm:"type:varchar(20);not null;default:free" json:"plan"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "orgs" }
