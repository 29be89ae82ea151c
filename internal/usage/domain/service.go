package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// IngestResult reports how a batch of samples was persisted. Invalid
// counts samples dropped by validation; they never fail the batch.
type IngestResult struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// BackfillResult reports a completed rollup rebuild.
type BackfillResult struct {
	Windows    int           `json:"windows"`
	Duration   time.Duration `json:"duration"`
	RangeStart time.Time     `json:"range_start"`
	RangeEnd   time.Time     `json:"range_end"`
}

// BackfillTimeoutError is returned when a rollup rebuild exceeds its
// time budget. Windows already rebuilt stay committed.
type BackfillTimeoutError struct {
	WindowsDone int
	Elapsed     time.Duration
}

func (e *BackfillTimeoutError) Error() string {
	return fmt.Sprintf("daily usage backfill timed out after %s with %d windows done", e.Elapsed, e.WindowsDone)
}

// SampleDigest summarizes a batch of samples for logs and previews.
type SampleDigest struct {
	Metrics   map[string]string `json:"metrics"`
	TotalCost decimal.Decimal   `json:"total_cost"`
}

// DescribeSamples folds a sample batch into a per-metric digest.
func DescribeSamples(samples []UsageSample) SampleDigest {
	digest := SampleDigest{
		Metrics:   make(map[string]string, len(samples)),
		TotalCost: decimal.Zero,
	}
	for _, sample := range samples {
		digest.Metrics[sample.Metric] = fmt.Sprintf("%s %s", sample.Quantity, sample.Unit)
		if cost := sample.Cost(); cost != nil {
			digest.TotalCost = digest.TotalCost.Add(*cost)
		}
	}
	return digest
}

type Service interface {
	// Ingest persists samples exactly once and folds new events into
	// the daily rollup.
	Ingest(ctx context.Context, samples []UsageSample) (IngestResult, error)

	// MonthToDateSpend sums the rollup for the current UTC month.
	MonthToDateSpend(ctx context.Context, orgID snowflake.ID, provider Provider, environment Environment) (decimal.Decimal, error)

	// Backfill rebuilds the rollup for the trailing day window in
	// bounded chunks.
	Backfill(ctx context.Context, days, chunkDays int, budget time.Duration) (BackfillResult, error)

	// PurgeExpired removes raw events older than the retention window.
	PurgeExpired(ctx context.Context, retentionDays int) (int64, error)
}

var (
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrInvalidEnvironment = errors.New("invalid_environment")
	ErrInvalidMetric      = errors.New("invalid_metric")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidTimestamp   = errors.New("invalid_timestamp")
	ErrInvalidDays        = errors.New("invalid_days")
)
