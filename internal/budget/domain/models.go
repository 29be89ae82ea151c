// Package domain contains spending budget models and scope matching.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// Budget caps monthly spend for an org, optionally narrowed to one
// provider and environment. A nil provider means the cap covers the
// whole org.
type Budget struct {
	ID               snowflake.ID             `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID             `gorm:"not null;index" json:"org_id"`
	Provider         *usagedomain.Provider    `gorm:"type:varchar(20)" json:"provider"`
	Environment      *usagedomain.Environment `gorm:"type:varchar(20)" json:"environment"`
	MonthlyCap       decimal.Decimal          `gorm:"type:numeric(20,2);not null" json:"monthly_cap"`
	Currency         string                   `gorm:"type:varchar(3);not null;default:usd" json:"currency"`
	ThresholdPercent int                      `gorm:"not null;default:80" json:"threshold_percent"`
	Notes            string                   `gorm:"type:varchar(512)" json:"notes"`
	CreatedAt        time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Budget) TableName() string { return "budgets" }

// UpsertRequest creates or replaces the budget for one scope.
type UpsertRequest struct {
	Provider         *usagedomain.Provider
	Environment      *usagedomain.Environment
	MonthlyCap       decimal.Decimal
	Currency         string
	ThresholdPercent int
	Notes            string
}

type Service interface {
	List(ctx context.Context, orgID snowflake.ID) ([]Budget, error)
	Upsert(ctx context.Context, orgID snowflake.ID, req UpsertRequest) (*Budget, error)
	Delete(ctx context.Context, orgID, budgetID snowflake.ID) error
}

// FindForScope picks the budget covering a provider and environment.
// A provider-specific budget beats the org-wide fallback.
func FindForScope(budgets []Budget, provider usagedomain.Provider, environment usagedomain.Environment) *Budget {
	var fallback *Budget
	for i := range budgets {
		b := &budgets[i]
		if b.Environment != nil && *b.Environment != environment {
			continue
		}
		if b.Provider == nil {
			if fallback == nil {
				fallback = b
			}
			continue
		}
		if *b.Provider == provider {
			return b
		}
	}
	return fallback
}

var (
	ErrBudgetNotFound = errors.New("budget_not_found")
	ErrInvalidCap     = errors.New("invalid_monthly_cap")
	ErrInvalidPercent = errors.New("invalid_threshold_percent")
)
