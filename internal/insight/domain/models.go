package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// Tip is a cost-saving suggestion derived from recent usage patterns.
type Tip struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Reason string `json:"reason"`
	Link   string `json:"link"`
}

// Overview aggregates call, error and spend totals over a date range.
type Overview struct {
	StartDate   string                `json:"start_date"`
	EndDate     string                `json:"end_date"`
	Provider    *usagedomain.Provider `json:"provider,omitempty"`
	TotalCalls  int64                 `json:"total_calls"`
	TotalErrors int64                 `json:"total_errors"`
	TotalSpend  decimal.Decimal       `json:"total_spend"`
}

// TrendPoint is one day of the calls/errors/spend trend series.
type TrendPoint struct {
	Day    string          `json:"day"`
	Calls  int64           `json:"calls"`
	Errors int64           `json:"errors"`
	Spend  decimal.Decimal `json:"spend"`
}

// RangeQuery scopes overview and trend requests. Nil dates default to
// the trailing week ending today.
type RangeQuery struct {
	OrgID     snowflake.ID
	StartDate *time.Time
	EndDate   *time.Time
	Provider  *usagedomain.Provider
}

type Service interface {
	// Tips inspects the trailing week of usage and returns any
	// cost-saving suggestions that apply.
	Tips(ctx context.Context, orgID snowflake.ID, environment usagedomain.Environment) ([]Tip, error)
	// Overview totals calls, errors and spend over the range.
	Overview(ctx context.Context, q RangeQuery) (*Overview, error)
	// Trends returns a per-day series over the range with empty days
	// zero-filled.
	Trends(ctx context.Context, q RangeQuery) ([]TrendPoint, error)
}
