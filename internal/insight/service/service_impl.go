package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	budgetdomain "github.com/saurav5380/apicompass/internal/budget/domain"
	"github.com/saurav5380/apicompass/internal/clock"
	"github.com/saurav5380/apicompass/internal/insight/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
	"github.com/saurav5380/apicompass/pkg/db"
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
		log:       p.Log.Named("insight.service"),
		clock:     p.Clock,
		budgetSvc: p.BudgetSvc,
	}
}

func (s *Service) Tips(ctx context.Context, orgID snowflake.ID, environment usagedomain.Environment) ([]domain.Tip, error) {
	windowEnd := s.clock.Now()
	windowStart := windowEnd.AddDate(0, 0, -7)

	tips := []domain.Tip{}

	openaiTips, err := s.openaiTips(ctx, orgID, environment, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	tips = append(tips, openaiTips...)

	sendgridTip, err := s.sendgridNearCapTip(ctx, orgID, environment)
	if err != nil {
		return nil, err
	}
	if sendgridTip != nil {
		tips = append(tips, *sendgridTip)
	}

	return tips, nil
}

// openaiTips aggregates the week's OpenAI events client-side so the
// metadata checks behave identically on every dialect.
func (s *Service) openaiTips(
	ctx context.Context,
	orgID snowflake.ID,
	environment usagedomain.Environment,
	windowStart, windowEnd time.Time,
) ([]domain.Tip, error) {
	var events []usagedomain.RawUsageEvent
	err := s.db.WithContext(ctx).
		Select("quantity, metadata").
		Where("org_id = ? AND provider = ? AND environment = ?", orgID, usagedomain.ProviderOpenAI, environment).
		Where("ts >= ? AND ts <= ?", windowStart, windowEnd).
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	gpt4Tokens := decimal.Zero
	totalTokens := decimal.Zero
	requests := decimal.Zero
	for _, event := range events {
		totalTokens = totalTokens.Add(event.Quantity)
		if model, ok := event.Metadata["model"].(string); ok && strings.HasPrefix(strings.ToLower(model), "gpt-4") {
			gpt4Tokens = gpt4Tokens.Add(event.Quantity)
		}
		if raw, ok := event.Metadata["requests"]; ok {
			switch v := raw.(type) {
			case float64:
				requests = requests.Add(decimal.NewFromFloat(v))
			case int64:
				requests = requests.Add(decimal.NewFromInt(v))
			}
		}
	}

	var tips []domain.Tip
	if totalTokens.IsPositive() && gpt4Tokens.IsPositive() {
		ratio := gpt4Tokens.Div(totalTokens)
		if ratio.GreaterThanOrEqual(decimal.NewFromFloat(0.6)) {
			percent := ratio.Mul(decimal.NewFromInt(100)).Round(1)
			tips = append(tips, domain.Tip{
				Title:  "High GPT-4 spend",
				Body:   "Route non-critical prompts to GPT-4o mini or GPT-4.1 mini to trim per-request cost.",
				Reason: fmt.Sprintf("%s%% of OpenAI tokens over the past week hit GPT-4 models.", percent),
				Link:   "https://platform.openai.com/docs/guides/billing#optimize-model-choice",
			})
		}
	}

	if totalTokens.IsPositive() && requests.IsPositive() {
		expectedRequests := totalTokens.Div(decimal.NewFromInt(1000))
		if expectedRequests.IsPositive() {
			duplicateRatio := expectedRequests.Sub(requests).Div(expectedRequests)
			if duplicateRatio.IsNegative() {
				duplicateRatio = decimal.Zero
			}
			if duplicateRatio.GreaterThanOrEqual(decimal.NewFromFloat(0.3)) {
				percent := duplicateRatio.Mul(decimal.NewFromInt(100)).Round(1)
				tips = append(tips, domain.Tip{
					Title:  "Cache duplicated prompts",
					Body:   "Cache embeddings/responses for repeated prompts to shave off repeated completions.",
					Reason: fmt.Sprintf("Estimated duplicate prompts at %s%% based on tokens vs. unique requests.", percent),
					Link:   "https://openai.com/blog/new-embedding-techniques#cache",
				})
			}
		}
	}

	return tips, nil
}

func (s *Service) sendgridNearCapTip(
	ctx context.Context,
	orgID snowflake.ID,
	environment usagedomain.Environment,
) (*domain.Tip, error) {
	budgets, err := s.budgetSvc.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var budget *budgetdomain.Budget
	for i := range budgets {
		b := &budgets[i]
		if b.Provider == nil || *b.Provider != usagedomain.ProviderSendgrid {
			continue
		}
		if b.Environment != nil && *b.Environment != environment {
			continue
		}
		budget = b
		break
	}
	if budget == nil {
		return nil, nil
	}

	var count int64
	err = s.db.WithContext(ctx).
		Table("daily_usage_costs").
		Where("org_id = ? AND provider = ? AND environment = ?", orgID, usagedomain.ProviderSendgrid, environment).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	var latest usagedomain.RawUsageEvent
	err = s.db.WithContext(ctx).
		Select("metadata").
		Where("org_id = ? AND provider = ? AND environment = ?", orgID, usagedomain.ProviderSendgrid, environment).
		Order("ts DESC").
		First(&latest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	raw, ok := latest.Metadata["plan_consumed_percent"].(float64)
	if !ok {
		return nil, nil
	}
	percent := decimal.NewFromFloat(raw)
	if percent.LessThan(decimal.NewFromInt(75)) {
		return nil, nil
	}

	return &domain.Tip{
		Title: "SendGrid nearing plan limit",
		Body:  "Review email plan tiers or pause lower-value campaigns before overages kick in.",
		Reason: fmt.Sprintf("SendGrid plan at %s%% of quota while cap is %s %s.",
			percent, budget.MonthlyCap, strings.ToUpper(budget.Currency)),
		Link: "https://docs.sendgrid.com/ui/account-and-settings/usage-limits",
	}, nil
}

// normalizeRange defaults to the trailing week and swaps an inverted
// range instead of erroring.
func (s *Service) normalizeRange(q domain.RangeQuery) (time.Time, time.Time) {
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -6)
	end := today
	if q.StartDate != nil {
		start = q.StartDate.UTC().Truncate(24 * time.Hour)
	}
	if q.EndDate != nil {
		end = q.EndDate.UTC().Truncate(24 * time.Hour)
	}
	if start.After(end) {
		start, end = end, start
	}
	return start, end
}

func (s *Service) Overview(ctx context.Context, q domain.RangeQuery) (*domain.Overview, error) {
	start, end := s.normalizeRange(q)
	endExclusive := end.AddDate(0, 0, 1)

	events := s.db.WithContext(ctx).
		Table("raw_usage_events").
		Where("org_id = ? AND ts >= ? AND ts < ?", q.OrgID, start, endExclusive)
	if q.Provider != nil {
		events = events.Where("provider = ?", *q.Provider)
	}

	var totalCalls int64
	if err := events.Count(&totalCalls).Error; err != nil {
		return nil, err
	}

	errorsQuery := s.db.WithContext(ctx).
		Table("raw_usage_events").
		Where("org_id = ? AND ts >= ? AND ts < ?", q.OrgID, start, endExclusive).
		Where("LOWER(metric) LIKE ?", "%error%")
	if q.Provider != nil {
		errorsQuery = errorsQuery.Where("provider = ?", *q.Provider)
	}
	var totalErrors int64
	if err := errorsQuery.Count(&totalErrors).Error; err != nil {
		return nil, err
	}

	spendQuery := s.db.WithContext(ctx).
		Table("daily_usage_costs").
		Where("org_id = ? AND day >= ? AND day <= ?", q.OrgID, usagedomain.DayOf(start), usagedomain.DayOf(end))
	if q.Provider != nil {
		spendQuery = spendQuery.Where("provider = ?", *q.Provider)
	}
	var spend decimal.NullDecimal
	if err := spendQuery.Select("SUM(cost_sum)").Scan(&spend).Error; err != nil {
		return nil, err
	}
	totalSpend := decimal.Zero
	if spend.Valid {
		totalSpend = spend.Decimal
	}

	return &domain.Overview{
		StartDate:   usagedomain.DayOf(start),
		EndDate:     usagedomain.DayOf(end),
		Provider:    q.Provider,
		TotalCalls:  totalCalls,
		TotalErrors: totalErrors,
		TotalSpend:  totalSpend,
	}, nil
}

func (s *Service) Trends(ctx context.Context, q domain.RangeQuery) ([]domain.TrendPoint, error) {
	start, end := s.normalizeRange(q)
	endExclusive := end.AddDate(0, 0, 1)
	dayExpr := db.DayExpr(s.db, "ts")

	var eventRows []struct {
		Day    string `gorm:"column:day"`
		Calls  int64  `gorm:"column:calls"`
		Errors int64  `gorm:"column:errors"`
	}
	events := s.db.WithContext(ctx).
		Table("raw_usage_events").
		Select(fmt.Sprintf(
			"%s AS day, COUNT(id) AS calls, COALESCE(SUM(CASE WHEN LOWER(metric) LIKE '%%error%%' THEN 1 ELSE 0 END), 0) AS errors",
			dayExpr,
		)).
		Where("org_id = ? AND ts >= ? AND ts < ?", q.OrgID, start, endExclusive).
		Group(dayExpr)
	if q.Provider != nil {
		events = events.Where("provider = ?", *q.Provider)
	}
	if err := events.Scan(&eventRows).Error; err != nil {
		return nil, err
	}

	var costRows []struct {
		Day     string          `gorm:"column:day"`
		CostSum decimal.Decimal `gorm:"column:cost_sum"`
	}
	costs := s.db.WithContext(ctx).
		Table("daily_usage_costs").
		Select("day, SUM(cost_sum) AS cost_sum").
		Where("org_id = ? AND day >= ? AND day <= ?", q.OrgID, usagedomain.DayOf(start), usagedomain.DayOf(end)).
		Group("day")
	if q.Provider != nil {
		costs = costs.Where("provider = ?", *q.Provider)
	}
	if err := costs.Scan(&costRows).Error; err != nil {
		return nil, err
	}

	byDay := map[string]*domain.TrendPoint{}
	for _, row := range eventRows {
		byDay[row.Day] = &domain.TrendPoint{Day: row.Day, Calls: row.Calls, Errors: row.Errors, Spend: decimal.Zero}
	}
	for _, row := range costRows {
		point, ok := byDay[row.Day]
		if !ok {
			point = &domain.TrendPoint{Day: row.Day, Spend: decimal.Zero}
			byDay[row.Day] = point
		}
		point.Spend = row.CostSum
	}

	var points []domain.TrendPoint
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		key := usagedomain.DayOf(current)
		if point, ok := byDay[key]; ok {
			points = append(points, *point)
		} else {
			points = append(points, domain.TrendPoint{Day: key, Spend: decimal.Zero})
		}
	}
	return points, nil
}
