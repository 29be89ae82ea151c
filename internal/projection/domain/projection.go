// Package domain contains month-end cost projection math. All
// functions here are pure so the forecast is reproducible from a daily
// cost series alone.
package domain

import (
	"context"
	"math"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	budgetdomain "github.com/saurav5380/apicompass/internal/budget/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// Tooltip explains the forecast method to API consumers.
const Tooltip = "Projection blends the 7-day and 14-day rolling averages with a short-term linear trend. " +
	"The confidence range comes from the variance of the recent 14-day window."

// BudgetSourceProvider and BudgetSourceOrg say which budget scope a
// summary was annotated from.
const (
	BudgetSourceProvider = "provider"
	BudgetSourceOrg      = "org"
)

// Summary is the month-end forecast for one provider in one environment.
type Summary struct {
	Provider       usagedomain.Provider    `json:"provider"`
	Environment    usagedomain.Environment `json:"environment"`
	Currency       string                  `json:"currency"`
	MonthToDate    decimal.Decimal         `json:"month_to_date_spend"`
	ProjectedTotal decimal.Decimal         `json:"projected_total"`
	ProjectedMin   decimal.Decimal         `json:"projected_min"`
	ProjectedMax   decimal.Decimal         `json:"projected_max"`
	RollingAvg7d   *decimal.Decimal        `json:"rolling_avg_7d"`
	RollingAvg14d  *decimal.Decimal        `json:"rolling_avg_14d"`
	SampleDays     int                     `json:"sample_days"`
	Tooltip        string                  `json:"tooltip"`

	BudgetID              *snowflake.ID    `json:"budget_id,omitempty"`
	BudgetLimit           *decimal.Decimal `json:"budget_limit,omitempty"`
	BudgetRemaining       *decimal.Decimal `json:"budget_remaining,omitempty"`
	BudgetGap             *decimal.Decimal `json:"budget_gap,omitempty"`
	BudgetConsumedPercent *decimal.Decimal `json:"budget_consumed_percent,omitempty"`
	BudgetSource          string           `json:"budget_source,omitempty"`
	OverBudget            bool             `json:"over_budget"`
}

// Query scopes a projection request.
type Query struct {
	OrgID       snowflake.ID
	Environment usagedomain.Environment
	Provider    *usagedomain.Provider
}

type Service interface {
	// Projections forecasts month-end spend per provider for one org
	// and environment, with budget annotations attached.
	Projections(ctx context.Context, q Query) ([]Summary, error)
}

// BuildSummary forecasts month-end spend from a zero-filled daily cost
// series covering the elapsed days of the month.
func BuildSummary(
	provider usagedomain.Provider,
	environment usagedomain.Environment,
	currency string,
	series []decimal.Decimal,
	daysInMonth int,
) Summary {
	monthToDate := decimal.Zero
	for _, v := range series {
		monthToDate = monthToDate.Add(v)
	}

	avg7 := RollingAverage(series, 7)
	avg14 := RollingAverage(series, 14)

	remainingDays := daysInMonth - len(series)
	if remainingDays < 0 {
		remainingDays = 0
	}

	avgProjection := decimal.Zero
	if remainingDays > 0 {
		var candidates []decimal.Decimal
		if avg7 != nil {
			candidates = append(candidates, *avg7)
		}
		if avg14 != nil {
			candidates = append(candidates, *avg14)
		}
		if len(candidates) > 0 {
			sum := decimal.Zero
			for _, c := range candidates {
				sum = sum.Add(c)
			}
			avgRecent := sum.Div(decimal.NewFromInt(int64(len(candidates))))
			avgProjection = avgRecent.Mul(decimal.NewFromInt(int64(remainingDays)))
		}
	}

	linearProjection := LinearProjection(series, daysInMonth)

	projectedRemaining := decimal.Zero
	switch {
	case avgProjection.IsPositive() && linearProjection.IsPositive():
		projectedRemaining = avgProjection.Add(linearProjection).Div(decimal.NewFromInt(2))
	case avgProjection.IsPositive():
		projectedRemaining = avgProjection
	case linearProjection.IsPositive():
		projectedRemaining = linearProjection
	}

	projectedTotal := monthToDate.Add(projectedRemaining)
	band := ConfidenceBand(series, remainingDays)
	projectedMin := projectedTotal.Sub(band)
	if projectedMin.IsNegative() {
		projectedMin = decimal.Zero
	}
	projectedMax := projectedTotal.Add(band)

	if currency == "" {
		currency = "usd"
	}

	return Summary{
		Provider:       provider,
		Environment:    environment,
		Currency:       currency,
		MonthToDate:    QuantizeMoney(monthToDate),
		ProjectedTotal: QuantizeMoney(projectedTotal),
		ProjectedMin:   QuantizeMoney(projectedMin),
		ProjectedMax:   QuantizeMoney(projectedMax),
		RollingAvg7d:   quantizePtr(avg7),
		RollingAvg14d:  quantizePtr(avg14),
		SampleDays:     len(series),
		Tooltip:        Tooltip,
	}
}

// RollingAverage averages the trailing window of the series, using the
// whole series when it is shorter than the window.
func RollingAverage(series []decimal.Decimal, window int) *decimal.Decimal {
	if len(series) == 0 {
		return nil
	}
	values := series
	if len(series) >= window {
		values = series[len(series)-window:]
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(values))))
	return &avg
}

// LinearProjection extrapolates the remaining days of the month with a
// least-squares fit over the elapsed series. Negative fitted days are
// clamped to zero so a falling trend cannot produce negative spend.
func LinearProjection(series []decimal.Decimal, daysInMonth int) decimal.Decimal {
	n := len(series)
	if n == 0 {
		return decimal.Zero
	}

	xMean := decimal.NewFromInt(int64(n + 1)).Div(decimal.NewFromInt(2))
	yMean := decimal.Zero
	for _, v := range series {
		yMean = yMean.Add(v)
	}
	yMean = yMean.Div(decimal.NewFromInt(int64(n)))

	numerator := decimal.Zero
	denominator := decimal.Zero
	for i, v := range series {
		x := decimal.NewFromInt(int64(i + 1))
		dx := x.Sub(xMean)
		numerator = numerator.Add(dx.Mul(v.Sub(yMean)))
		denominator = denominator.Add(dx.Mul(dx))
	}

	slope := decimal.Zero
	if !denominator.IsZero() {
		slope = numerator.Div(denominator)
	}
	intercept := yMean.Sub(slope.Mul(xMean))

	projected := decimal.Zero
	for idx := n + 1; idx <= daysInMonth; idx++ {
		dayValue := slope.Mul(decimal.NewFromInt(int64(idx))).Add(intercept)
		if dayValue.IsPositive() {
			projected = projected.Add(dayValue)
		}
	}
	return projected
}

// ConfidenceBand is the sample stddev of the trailing 14-day window
// scaled by the square root of the remaining days.
func ConfidenceBand(series []decimal.Decimal, remainingDays int) decimal.Decimal {
	if remainingDays <= 0 || len(series) == 0 {
		return decimal.Zero
	}
	windowSize := len(series)
	if windowSize > 14 {
		windowSize = 14
	}
	window := series[len(series)-windowSize:]
	if len(window) < 2 {
		return decimal.Zero
	}

	mean := decimal.Zero
	for _, v := range window {
		mean = mean.Add(v)
	}
	mean = mean.Div(decimal.NewFromInt(int64(len(window))))

	variance := decimal.Zero
	for _, v := range window {
		d := v.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(window) - 1)))
	if variance.IsZero() {
		return decimal.Zero
	}

	varFloat, _ := variance.Float64()
	band := math.Sqrt(varFloat) * math.Sqrt(float64(remainingDays))
	return decimal.NewFromFloat(band)
}

// QuantizeMoney rounds to cents, half away from zero.
func QuantizeMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

func quantizePtr(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	q := QuantizeMoney(*v)
	return &q
}

// Aggregate folds per-provider summaries into one org-wide view for
// budget checks that span providers.
func Aggregate(environment usagedomain.Environment, summaries []Summary) Summary {
	totalMTD := decimal.Zero
	totalProjected := decimal.Zero
	totalMin := decimal.Zero
	totalMax := decimal.Zero
	sum7 := decimal.Zero
	sum14 := decimal.Zero
	sampleDays := 0
	for _, s := range summaries {
		totalMTD = totalMTD.Add(s.MonthToDate)
		totalProjected = totalProjected.Add(s.ProjectedTotal)
		totalMin = totalMin.Add(s.ProjectedMin)
		totalMax = totalMax.Add(s.ProjectedMax)
		if s.RollingAvg7d != nil {
			sum7 = sum7.Add(*s.RollingAvg7d)
		}
		if s.RollingAvg14d != nil {
			sum14 = sum14.Add(*s.RollingAvg14d)
		}
		if s.SampleDays > sampleDays {
			sampleDays = s.SampleDays
		}
	}

	currency := "usd"
	if len(summaries) > 0 {
		currency = summaries[0].Currency
	}

	count := decimal.NewFromInt(int64(len(summaries)))
	avg7 := decimal.Zero
	avg14 := decimal.Zero
	if len(summaries) > 0 {
		avg7 = sum7.Div(count)
		avg14 = sum14.Div(count)
	}

	return Summary{
		Provider:       usagedomain.ProviderGeneric,
		Environment:    environment,
		Currency:       currency,
		MonthToDate:    totalMTD,
		ProjectedTotal: totalProjected,
		ProjectedMin:   totalMin,
		ProjectedMax:   totalMax,
		RollingAvg7d:   &avg7,
		RollingAvg14d:  &avg14,
		SampleDays:     sampleDays,
		Tooltip:        Tooltip,
	}
}

// AttachBudget annotates a summary with the budget covering its scope,
// preferring a provider-specific budget over the org-wide fallback.
func AttachBudget(summary *Summary, budgets []budgetdomain.Budget) {
	match := budgetdomain.FindForScope(budgets, summary.Provider, summary.Environment)
	if match == nil {
		return
	}

	limit := match.MonthlyCap
	remaining := QuantizeMoney(limit.Sub(summary.MonthToDate))
	gap := QuantizeMoney(limit.Sub(summary.ProjectedTotal))

	summary.BudgetID = &match.ID
	summary.BudgetLimit = &limit
	summary.BudgetRemaining = &remaining
	summary.BudgetGap = &gap
	if limit.IsPositive() {
		percent := QuantizeMoney(summary.MonthToDate.Div(limit).Mul(decimal.NewFromInt(100)))
		summary.BudgetConsumedPercent = &percent
	}
	summary.BudgetSource = BudgetSourceOrg
	if match.Provider != nil {
		summary.BudgetSource = BudgetSourceProvider
	}
	summary.OverBudget = summary.ProjectedTotal.GreaterThan(limit)
}
