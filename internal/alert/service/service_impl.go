package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saurav5380/apicompass/internal/alert/domain"
	budgetdomain "github.com/saurav5380/apicompass/internal/budget/domain"
	"github.com/saurav5380/apicompass/internal/clock"
	"github.com/saurav5380/apicompass/internal/config"
	"github.com/saurav5380/apicompass/internal/notify"
	"github.com/saurav5380/apicompass/internal/observability/metrics"
	orgdomain "github.com/saurav5380/apicompass/internal/organization/domain"
	projectiondomain "github.com/saurav5380/apicompass/internal/projection/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

const spikeWindowDays = 15

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Cfg           config.Config
	GenID         *snowflake.Node
	OrgRepo       orgdomain.Repository
	BudgetSvc     budgetdomain.Service
	ProjectionSvc projectiondomain.Service
	Notifier      notify.Notifier
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	cfg           config.AlertConfig
	genID         *snowflake.Node
	orgRepo       orgdomain.Repository
	budgetSvc     budgetdomain.Service
	projectionSvc projectiondomain.Service
	notifier      notify.Notifier
	metrics       *metrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("alert.service"),
		clock:         p.Clock,
		cfg:           p.Cfg.Alerts,
		genID:         p.GenID,
		orgRepo:       p.OrgRepo,
		budgetSvc:     p.BudgetSvc,
		projectionSvc: p.ProjectionSvc,
		notifier:      p.Notifier,
		metrics:       p.Metrics,
	}
}

func (s *Service) EvaluateAllOrgs(ctx context.Context) error {
	orgIDs, err := s.orgRepo.ListIDs(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, orgID := range orgIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.EvaluateOrg(ctx, orgID); err != nil {
			s.log.Error("alert evaluation failed",
				zap.Int64("org_id", int64(orgID)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) EvaluateOrg(ctx context.Context, orgID snowflake.ID) error {
	budgets, err := s.budgetSvc.List(ctx, orgID)
	if err != nil {
		return err
	}
	if len(budgets) == 0 {
		return nil
	}

	envs := map[usagedomain.Environment]struct{}{}
	for _, budget := range budgets {
		env := usagedomain.EnvProd
		if budget.Environment != nil {
			env = *budget.Environment
		}
		envs[env] = struct{}{}
	}

	perProvider := map[string]projectiondomain.Summary{}
	aggregated := map[usagedomain.Environment]projectiondomain.Summary{}
	for env := range envs {
		summaries, err := s.projectionSvc.Projections(ctx, projectiondomain.Query{
			OrgID:       orgID,
			Environment: env,
		})
		if err != nil {
			return err
		}
		for _, summary := range summaries {
			perProvider[scopeKey(env, summary.Provider)] = summary
		}
		if len(summaries) > 0 {
			aggregated[env] = projectiondomain.Aggregate(env, summaries)
		}
	}

	for _, budget := range budgets {
		env := usagedomain.EnvProd
		if budget.Environment != nil {
			env = *budget.Environment
		}
		var summary projectiondomain.Summary
		var ok bool
		if budget.Provider != nil {
			summary, ok = perProvider[scopeKey(env, *budget.Provider)]
		} else {
			summary, ok = aggregated[env]
		}
		if !ok {
			continue
		}
		candidates, err := s.buildCandidates(ctx, budget, summary)
		if err != nil {
			return err
		}
		for _, candidate := range candidates {
			if err := s.emit(ctx, orgID, candidate, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) buildCandidates(
	ctx context.Context,
	budget budgetdomain.Budget,
	summary projectiondomain.Summary,
) ([]domain.Candidate, error) {
	var candidates []domain.Candidate
	limit := budget.MonthlyCap
	var provider *usagedomain.Provider
	if budget.Provider != nil {
		p := summary.Provider
		provider = &p
	}
	environment := summary.Environment
	budgetID := budget.ID

	if summary.ProjectedTotal.GreaterThan(limit) {
		candidates = append(candidates, domain.Candidate{
			Type:        domain.TypeOverCap,
			Severity:    domain.SeverityCritical,
			Provider:    provider,
			Environment: environment,
			BudgetID:    &budgetID,
			Message: fmt.Sprintf("%s (%s) projected to reach %s against cap %s.",
				providerLabel(provider), environment, summary.ProjectedTotal, limit),
			Metadata: map[string]any{
				"projected_total": summary.ProjectedTotal.String(),
				"cap":             limit.String(),
			},
		})
	}

	threshold := limit.
		Mul(decimal.NewFromInt(int64(budget.ThresholdPercent))).
		Div(decimal.NewFromInt(100)).
		Round(2)
	if summary.ProjectedTotal.GreaterThanOrEqual(threshold) && summary.ProjectedTotal.LessThanOrEqual(limit) {
		candidates = append(candidates, domain.Candidate{
			Type:        domain.TypeNearCap,
			Severity:    domain.SeverityWarning,
			Provider:    provider,
			Environment: environment,
			BudgetID:    &budgetID,
			Message: fmt.Sprintf("%s (%s) forecast %s which is above the %d%% tier (%s).",
				providerLabel(provider), environment, summary.ProjectedTotal, budget.ThresholdPercent, threshold),
			Metadata: map[string]any{
				"projected_total": summary.ProjectedTotal.String(),
				"tier_threshold":  threshold.String(),
			},
		})
	}

	spiked, err := s.detectSpike(ctx, budget.OrgID, provider, environment)
	if err != nil {
		return nil, err
	}
	if spiked {
		candidates = append(candidates, domain.Candidate{
			Type:        domain.TypeSpike,
			Severity:    domain.SeverityWarning,
			Provider:    provider,
			Environment: environment,
			BudgetID:    &budgetID,
			Message: fmt.Sprintf("%s (%s) reported an unusual spike compared to the 14-day baseline.",
				providerLabel(provider), environment),
			Metadata: map[string]any{},
		})
	}

	return candidates, nil
}

type dailyCostRow struct {
	Day     string          `gorm:"column:day"`
	CostSum decimal.Decimal `gorm:"column:cost_sum"`
}

// detectSpike compares the latest rollup day against the mean of the
// prior days in a 15-day window.
func (s *Service) detectSpike(
	ctx context.Context,
	orgID snowflake.ID,
	provider *usagedomain.Provider,
	environment usagedomain.Environment,
) (bool, error) {
	var rows []dailyCostRow
	query := s.db.WithContext(ctx).
		Table("daily_usage_costs").
		Where("org_id = ? AND environment = ?", orgID, environment).
		Order("day DESC").
		Limit(spikeWindowDays)
	if provider != nil {
		query = query.Select("day, cost_sum").Where("provider = ?", *provider)
	} else {
		query = query.Select("day, SUM(cost_sum) AS cost_sum").Group("day")
	}
	if err := query.Scan(&rows).Error; err != nil {
		return false, err
	}
	if len(rows) < 2 {
		return false, nil
	}

	// Rows arrive newest first.
	latest := rows[0].CostSum
	baseline := decimal.Zero
	for _, row := range rows[1:] {
		baseline = baseline.Add(row.CostSum)
	}
	baseline = baseline.Div(decimal.NewFromInt(int64(len(rows) - 1)))
	if baseline.IsZero() {
		return false, nil
	}
	if latest.LessThan(decimal.NewFromFloat(s.cfg.SpikeMinimum)) {
		return false, nil
	}
	multiplier := decimal.NewFromFloat(s.cfg.SpikeMultiplier)
	return latest.GreaterThanOrEqual(baseline.Mul(multiplier)), nil
}

func (s *Service) DigestAllOrgs(ctx context.Context) error {
	orgIDs, err := s.orgRepo.ListIDs(ctx)
	if err != nil {
		return err
	}
	yesterday := s.clock.Now().UTC().AddDate(0, 0, -1)
	var errs []error
	for _, orgID := range orgIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.DigestOrg(ctx, orgID, yesterday); err != nil {
			s.log.Error("daily digest failed",
				zap.Int64("org_id", int64(orgID)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) DigestOrg(ctx context.Context, orgID snowflake.ID, day time.Time) error {
	recent, err := s.recentEvent(ctx, orgID, domain.TypeDigest, nil, nil, nil, s.cfg.DigestDebounce)
	if err != nil {
		return err
	}
	if recent != nil {
		return nil
	}

	dayKey := usagedomain.DayOf(day)
	var rows []struct {
		Provider    usagedomain.Provider    `gorm:"column:provider"`
		Environment usagedomain.Environment `gorm:"column:environment"`
		CostSum     decimal.Decimal         `gorm:"column:cost_sum"`
	}
	err = s.db.WithContext(ctx).
		Table("daily_usage_costs").
		Select("provider, environment, cost_sum").
		Where("org_id = ? AND day = ?", orgID, dayKey).
		Scan(&rows).Error
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	lines := []string{fmt.Sprintf("Daily usage summary for %s:", dayKey)}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.CostSum)
		lines = append(lines, fmt.Sprintf("- %s (%s): $%s", row.Provider, row.Environment, row.CostSum.StringFixed(2)))
	}
	lines = append(lines, fmt.Sprintf("Total: $%s", total.StringFixed(2)))

	candidate := domain.Candidate{
		Type:        domain.TypeDigest,
		Severity:    domain.SeverityInfo,
		Provider:    nil,
		Environment: usagedomain.EnvProd,
		BudgetID:    nil,
		Message:     strings.Join(lines, "\n"),
		Metadata:    map[string]any{"day": dayKey},
	}
	return s.emit(ctx, orgID, candidate, false)
}

func (s *Service) ListEvents(ctx context.Context, orgID snowflake.ID, limit int) ([]domain.AlertEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []domain.AlertEvent
	err := s.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("triggered_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// emit persists and delivers a candidate unless quiet hours or the
// debounce window suppress it. Digests skip the quiet hours check.
func (s *Service) emit(ctx context.Context, orgID snowflake.ID, candidate domain.Candidate, enforceQuietHours bool) error {
	now := s.clock.Now()
	if enforceQuietHours {
		quiet, err := domain.WithinQuietHours(now, s.cfg.QuietHoursStart, s.cfg.QuietHoursEnd)
		if err != nil {
			return err
		}
		if quiet {
			s.log.Info("quiet hours active, skipping alert",
				zap.String("alert_type", string(candidate.Type)),
				zap.Int64("org_id", int64(orgID)),
			)
			return nil
		}
	}

	debounce := s.cfg.Debounce
	if candidate.Type == domain.TypeDigest {
		debounce = s.cfg.DigestDebounce
	}
	var envPtr *usagedomain.Environment
	if candidate.Type != domain.TypeDigest {
		env := candidate.Environment
		envPtr = &env
	}
	recent, err := s.recentEvent(ctx, orgID, candidate.Type, candidate.Provider, envPtr, candidate.BudgetID, debounce)
	if err != nil {
		return err
	}
	if recent != nil {
		return nil
	}

	event := domain.AlertEvent{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		BudgetID:    candidate.BudgetID,
		Provider:    candidate.Provider,
		Environment: envPtr,
		AlertType:   candidate.Type,
		Channel:     domain.ChannelEmail,
		Severity:    candidate.Severity,
		Message:     candidate.Message,
		Metadata:    candidate.Metadata,
		TriggeredAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}

	subject := fmt.Sprintf("[API Compass] %s %s", providerLabel(candidate.Provider), titleCase(string(candidate.Type)))
	if err := s.notifier.Send(ctx, subject, candidate.Message); err != nil {
		s.log.Error("notification delivery failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
	s.metrics.RecordAlert(ctx, string(candidate.Type), string(candidate.Severity))
	s.log.Info("alert emitted",
		zap.Int64("org_id", int64(orgID)),
		zap.String("alert_type", string(candidate.Type)),
		zap.String("severity", string(candidate.Severity)),
	)
	return nil
}

func (s *Service) recentEvent(
	ctx context.Context,
	orgID snowflake.ID,
	alertType domain.Type,
	provider *usagedomain.Provider,
	environment *usagedomain.Environment,
	budgetID *snowflake.ID,
	within time.Duration,
) (*domain.AlertEvent, error) {
	windowStart := s.clock.Now().Add(-within)
	query := s.db.WithContext(ctx).
		Where("org_id = ? AND alert_type = ? AND channel = ?", orgID, alertType, domain.ChannelEmail).
		Where("triggered_at >= ?", windowStart)
	if provider != nil {
		query = query.Where("provider = ?", *provider)
	} else {
		query = query.Where("provider IS NULL")
	}
	if environment != nil {
		query = query.Where("environment = ?", *environment)
	} else {
		query = query.Where("environment IS NULL")
	}
	if budgetID != nil {
		query = query.Where("budget_id = ?", *budgetID)
	} else {
		query = query.Where("budget_id IS NULL")
	}

	var event domain.AlertEvent
	err := query.Order("triggered_at DESC").First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func scopeKey(env usagedomain.Environment, provider usagedomain.Provider) string {
	return string(env) + ":" + string(provider)
}

func providerLabel(provider *usagedomain.Provider) string {
	if provider == nil {
		return "All providers"
	}
	return string(*provider)
}

func titleCase(alertType string) string {
	parts := strings.Split(alertType, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}
