package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	budgetdomain "github.com/saurav5380/apicompass/internal/budget/domain"
	"github.com/saurav5380/apicompass/internal/clock"
	"github.com/saurav5380/apicompass/internal/projection/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	BudgetSvc budgetdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	budgetSvc budgetdomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("projection.service"),
		clock:     p.Clock,
		budgetSvc: p.BudgetSvc,
	}
}

type costRow struct {
	Provider usagedomain.Provider `gorm:"column:provider"`
	Day      string               `gorm:"column:day"`
	CostSum  decimal.Decimal      `gorm:"column:cost_sum"`
	Currency string               `gorm:"column:currency"`
}

// Projections builds one month-end forecast per provider from the
// daily rollup, zero-filling days without spend.
func (s *Service) Projections(ctx context.Context, q domain.Query) ([]domain.Summary, error) {
	today := s.clock.Now()
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	daysElapsed := today.Day()
	daysInMonth := time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()

	query := s.db.WithContext(ctx).
		Table("daily_usage_costs").
		Select("provider, day, cost_sum, currency").
		Where("org_id = ? AND environment = ?", q.OrgID, q.Environment).
		Where("day >= ? AND day <= ?", usagedomain.DayOf(monthStart), usagedomain.DayOf(today))
	if q.Provider != nil {
		query = query.Where("provider = ?", *q.Provider)
	}

	var rows []costRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 && q.Provider == nil {
		return nil, nil
	}

	type bucket struct {
		currency string
		days     map[string]decimal.Decimal
	}
	grouped := map[usagedomain.Provider]*bucket{}
	for _, row := range rows {
		b, ok := grouped[row.Provider]
		if !ok {
			b = &bucket{currency: row.Currency, days: map[string]decimal.Decimal{}}
			grouped[row.Provider] = b
		}
		b.days[row.Day] = row.CostSum
	}

	// A requested provider shows up even before its first event.
	if q.Provider != nil {
		if _, ok := grouped[*q.Provider]; !ok {
			grouped[*q.Provider] = &bucket{currency: "usd", days: map[string]decimal.Decimal{}}
		}
	}

	budgets, err := s.budgetSvc.List(ctx, q.OrgID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.Summary, 0, len(grouped))
	for provider, b := range grouped {
		series := buildDailySeries(b.days, monthStart, daysElapsed)
		summary := domain.BuildSummary(provider, q.Environment, b.currency, series, daysInMonth)
		domain.AttachBudget(&summary, budgets)
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Provider < summaries[j].Provider
	})
	return summaries, nil
}

func buildDailySeries(days map[string]decimal.Decimal, monthStart time.Time, daysElapsed int) []decimal.Decimal {
	series := make([]decimal.Decimal, daysElapsed)
	for day, cost := range days {
		parsed, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		index := int(parsed.Sub(monthStart).Hours() / 24)
		if index >= 0 && index < daysElapsed {
			series[index] = cost
		}
	}
	return series
}
