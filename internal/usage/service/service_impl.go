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
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saurav5380/apicompass/internal/clock"
	obsmetrics "github.com/saurav5380/apicompass/internal/observability/metrics"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
	"github.com/saurav5380/apicompass/pkg/db"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Ingest persists each sample under its deterministic event ID and
// folds newly created events into the daily rollup. Replays of samples
// already stored leave both tables untouched. An invalid sample is
// dropped and counted; the rest of the batch still lands.
func (s *Service) Ingest(ctx context.Context, samples []usagedomain.UsageSample) (usagedomain.IngestResult, error) {
	var result usagedomain.IngestResult
	if len(samples) == 0 {
		return result, nil
	}

	valid := make([]usagedomain.UsageSample, 0, len(samples))
	for _, sample := range samples {
		if err := validateSample(sample); err != nil {
			result.Invalid++
			s.log.Warn("dropped invalid usage sample",
				zap.Error(err),
				zap.String("provider", string(sample.Provider)),
				zap.String("metric", sample.Metric),
			)
			continue
		}
		valid = append(valid, sample)
	}
	if len(valid) == 0 {
		return result, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sample := range valid {
			created, err := s.insertEvent(ctx, tx, sample)
			if err != nil {
				return err
			}
			if !created {
				result.Duplicates++
				continue
			}
			if err := s.upsertDailyCost(ctx, tx, sample); err != nil {
				return err
			}
			result.Created++
		}
		return nil
	})
	if err != nil {
		return usagedomain.IngestResult{}, err
	}

	s.metrics.RecordIngest(ctx, string(valid[0].Provider), int64(result.Created), int64(result.Duplicates))
	s.log.Debug("ingested usage samples",
		zap.Int("created", result.Created),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("invalid", result.Invalid),
	)
	return result, nil
}

func (s *Service) insertEvent(ctx context.Context, tx *gorm.DB, sample usagedomain.UsageSample) (bool, error) {
	event := usagedomain.RawUsageEvent{
		ID:           sample.EventID(),
		OrgID:        sample.OrgID,
		ConnectionID: sample.ConnectionID,
		Provider:     sample.Provider,
		Environment:  sample.Environment,
		Metric:       sample.Metric,
		Unit:         sample.Unit,
		Quantity:     sample.Quantity,
		UnitCost:     sample.UnitCost,
		Cost:         sample.Cost(),
		Currency:     normalizeCurrency(sample.Currency),
		TS:           sample.TS.UTC(),
		Source:       sample.Source,
		Metadata:     datatypes.JSONMap(sample.Metadata),
		IngestedAt:   s.clock.Now(),
	}

	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&event)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Service) upsertDailyCost(ctx context.Context, tx *gorm.DB, sample usagedomain.UsageSample) error {
	cost := decimal.Zero
	if c := sample.Cost(); c != nil {
		cost = *c
	}

	return tx.WithContext(ctx).Exec(
		`INSERT INTO daily_usage_costs (org_id, provider, environment, day, quantity_sum, cost_sum, currency)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, provider, environment, day)
		 DO UPDATE SET quantity_sum = daily_usage_costs.quantity_sum + EXCLUDED.quantity_sum,
		               cost_sum = daily_usage_costs.cost_sum + EXCLUDED.cost_sum,
		               currency = EXCLUDED.currency`,
		sample.OrgID,
		sample.Provider,
		sample.Environment,
		usagedomain.DayOf(sample.TS),
		sample.Quantity,
		cost,
		normalizeCurrency(sample.Currency),
	).Error
}

// MonthToDateSpend sums rollup cost for the current UTC month.
func (s *Service) MonthToDateSpend(
	ctx context.Context,
	orgID snowflake.ID,
	provider usagedomain.Provider,
	environment usagedomain.Environment,
) (decimal.Decimal, error) {
	today := s.clock.Now()
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	var total decimal.NullDecimal
	err := s.db.WithContext(ctx).Raw(
		`SELECT SUM(cost_sum)
		 FROM daily_usage_costs
		 WHERE org_id = ? AND provider = ? AND environment = ? AND day >= ?`,
		orgID,
		provider,
		environment,
		usagedomain.DayOf(monthStart),
	).Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// Backfill rebuilds the daily rollup from raw events over the trailing
// day window, one bounded chunk at a time. Chunks already rebuilt stay
// committed when the time budget runs out.
func (s *Service) Backfill(ctx context.Context, days, chunkDays int, budget time.Duration) (usagedomain.BackfillResult, error) {
	if days <= 0 {
		return usagedomain.BackfillResult{}, usagedomain.ErrInvalidDays
	}
	if chunkDays < 1 {
		chunkDays = 1
	}
	if chunkDays > days {
		chunkDays = days
	}

	start := time.Now()
	endTS := s.clock.Now()
	// Windows snap to UTC midnight so a chunk boundary never splits a
	// calendar day between two replace-style upserts.
	first := endTS.AddDate(0, 0, -days)
	startTS := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
	chunk := time.Duration(chunkDays) * 24 * time.Hour

	dayExpr := db.DayExpr(s.db, "ts")
	upsertSQL := fmt.Sprintf(
		`INSERT INTO daily_usage_costs (org_id, provider, environment, day, quantity_sum, cost_sum, currency)
		 SELECT org_id, provider, environment, %s AS day,
		        COALESCE(SUM(quantity), 0) AS quantity_sum,
		        COALESCE(SUM(cost), 0) AS cost_sum,
		        MAX(currency) AS currency
		 FROM raw_usage_events
		 WHERE ts >= ? AND ts < ?
		 GROUP BY org_id, provider, environment, %s
		 ON CONFLICT (org_id, provider, environment, day)
		 DO UPDATE SET quantity_sum = EXCLUDED.quantity_sum,
		               cost_sum = EXCLUDED.cost_sum,
		               currency = EXCLUDED.currency`,
		dayExpr,
		dayExpr,
	)

	windows := 0
	windowStart := startTS
	for windowStart.Before(endTS) {
		if ctx.Err() != nil {
			return usagedomain.BackfillResult{}, ctx.Err()
		}

		windowEnd := windowStart.Add(chunk)
		if windowEnd.After(endTS) {
			windowEnd = endTS
		}

		if err := s.db.WithContext(ctx).Exec(upsertSQL, windowStart, windowEnd).Error; err != nil {
			return usagedomain.BackfillResult{}, err
		}
		windows++
		windowStart = windowEnd

		if elapsed := time.Since(start); elapsed > budget {
			return usagedomain.BackfillResult{}, &usagedomain.BackfillTimeoutError{
				WindowsDone: windows,
				Elapsed:     elapsed,
			}
		}
	}

	return usagedomain.BackfillResult{
		Windows:    windows,
		Duration:   time.Since(start),
		RangeStart: startTS,
		RangeEnd:   endTS,
	}, nil
}

// PurgeExpired deletes raw events past the retention window. Rollups
// derived from them are kept.
func (s *Service) PurgeExpired(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, usagedomain.ErrInvalidDays
	}

	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)
	res := s.db.WithContext(ctx).
		Where("ts < ?", cutoff).
		Delete(&usagedomain.RawUsageEvent{})
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		s.log.Info("purged expired raw usage events",
			zap.Int64("deleted", res.RowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}
	return res.RowsAffected, nil
}

func validateSample(sample usagedomain.UsageSample) error {
	if !sample.Provider.Valid() {
		return usagedomain.ErrInvalidProvider
	}
	if !sample.Environment.Valid() {
		return usagedomain.ErrInvalidEnvironment
	}
	if strings.TrimSpace(sample.Metric) == "" {
		return usagedomain.ErrInvalidMetric
	}
	if sample.Quantity.IsNegative() {
		return usagedomain.ErrInvalidQuantity
	}
	if sample.TS.IsZero() {
		return usagedomain.ErrInvalidTimestamp
	}
	return nil
}

func normalizeCurrency(currency string) string {
	value := strings.ToLower(strings.TrimSpace(currency))
	if value == "" {
		return "usd"
	}
	return value
}
