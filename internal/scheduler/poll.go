package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	entitlementdomain "github.com/saurav5380/apicompass/internal/entitlement/domain"
	"github.com/saurav5380/apicompass/internal/provider"
	providerdomain "github.com/saurav5380/apicompass/internal/provider/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// pollBucket buckets time into poll windows so every worker derives the
// same claim key within one window.
func (s *Scheduler) pollBucket(now time.Time) int64 {
	interval := int64(s.cfg.PollInterval.Seconds())
	return now.Unix() / interval
}

func claimKey(p usagedomain.Provider, connID snowflake.ID, bucket int64) string {
	return fmt.Sprintf("connections:poll:%s:%d:%d", p, connID, bucket)
}

// tryClaim fails open: a broken claim store must not stall polling.
func (s *Scheduler) tryClaim(ctx context.Context, key string) bool {
	if s.claims == nil {
		return true
	}
	ok, err := s.claims.TryClaim(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("claim store unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

// cancelRequested is a best-effort check; a broken claim store never
// blocks polling.
func (s *Scheduler) cancelRequested(ctx context.Context, connID snowflake.ID) bool {
	if s.claims == nil {
		return false
	}
	cancelled, err := s.claims.Cancelled(ctx, int64(connID))
	if err != nil {
		return false
	}
	return cancelled
}

// jitterSleep spreads a batch across a slice of the poll interval so
// simultaneous workers do not thundering-herd the providers.
func (s *Scheduler) jitterSleep(ctx context.Context, batchSize int) {
	if batchSize <= 1 {
		return
	}
	window := s.cfg.PollInterval.Seconds() * s.cfg.JitterRatio / float64(batchSize)
	if window <= 0 {
		return
	}
	offset := time.Duration(rand.Float64() * window * float64(time.Second))
	if offset <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(offset):
	}
}

func (s *Scheduler) PollProviderJob(ctx context.Context, p usagedomain.Provider) error {
	now := s.clock.Now()
	bucket := s.pollBucket(now)

	connections, err := s.connRepo.ListActiveByProvider(ctx, p)
	if err != nil {
		return err
	}
	if len(connections) == 0 {
		s.log.Debug("no connections to poll", zap.String("provider", string(p)))
		return nil
	}

	rand.Shuffle(len(connections), func(i, j int) {
		connections[i], connections[j] = connections[j], connections[i]
	})

	snapshots := map[snowflake.ID]entitlementdomain.Snapshot{}
	processed := 0
	for i := range connections {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn := &connections[i]
		if !s.tryClaim(ctx, claimKey(p, conn.ID, bucket)) {
			continue
		}

		snapshot, ok := snapshots[conn.OrgID]
		if !ok {
			snapshot, err = s.entitlementSvc.Get(ctx, conn.OrgID)
			if err != nil {
				s.log.Error("entitlement lookup failed",
					zap.Int64("org_id", int64(conn.OrgID)),
					zap.Error(err),
				)
				continue
			}
			snapshots[conn.OrgID] = snapshot
		}
		ts := s.clock.Now()
		if !entitlementdomain.AllowSync(snapshot, conn.LastSyncedAt, ts) {
			continue
		}

		s.jitterSleep(ctx, len(connections))
		if s.cancelRequested(ctx, conn.ID) {
			continue
		}
		if err := s.pollConnection(ctx, conn, ts); err != nil {
			s.metrics.RecordPollError(ctx, string(p), pollErrorReason(err))
			s.log.Error("polling failed",
				zap.Int64("connection_id", int64(conn.ID)),
				zap.Int64("org_id", int64(conn.OrgID)),
				zap.String("provider", string(p)),
				zap.Error(err),
			)
			continue
		}
		processed++
	}

	s.log.Info("provider poll finished",
		zap.String("provider", string(p)),
		zap.Int("connections", len(connections)),
		zap.Int("synced", processed),
	)
	return nil
}

// pollConnection ingests one connection's usage with retries for
// transient provider failures.
func (s *Scheduler) pollConnection(ctx context.Context, conn *connectiondomain.Connection, ts time.Time) error {
	var polled []usagedomain.UsageSample
	operation := func() (usagedomain.IngestResult, error) {
		if err := provider.CheckSimulatedStatus(conn); err != nil {
			var retryable *providerdomain.RetryableError
			if errors.As(err, &retryable) {
				return usagedomain.IngestResult{}, err
			}
			return usagedomain.IngestResult{}, backoff.Permanent(err)
		}

		samples := provider.BuildSamples(conn, ts)
		if len(samples) == 0 {
			return usagedomain.IngestResult{}, nil
		}
		result, err := s.usageSvc.Ingest(ctx, samples)
		if err != nil {
			return usagedomain.IngestResult{}, backoff.Permanent(err)
		}
		polled = samples
		return result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(s.cfg.MaxRetries)),
	)
	if err != nil {
		return err
	}
	if result.Created == 0 {
		s.log.Debug("usage already ingested",
			zap.Int64("connection_id", int64(conn.ID)),
			zap.String("provider", string(conn.Provider)),
		)
		return nil
	}

	if err := s.connRepo.MarkSynced(ctx, conn.ID, ts); err != nil {
		return err
	}
	digest := usagedomain.DescribeSamples(polled)
	s.log.Info("polled connection",
		zap.Int64("connection_id", int64(conn.ID)),
		zap.String("provider", string(conn.Provider)),
		zap.Any("metrics", digest.Metrics),
		zap.String("daily_cost", digest.TotalCost.StringFixed(6)),
		zap.Int("created", result.Created),
	)
	s.metrics.RecordPollRun(ctx, string(conn.Provider))
	return nil
}

func pollErrorReason(err error) string {
	var retryable *providerdomain.RetryableError
	if errors.As(err, &retryable) {
		return "retryable"
	}
	var apiErr *providerdomain.APIError
	if errors.As(err, &apiErr) {
		return "terminal"
	}
	return "internal"
}
