package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	alertdomain "github.com/saurav5380/apicompass/internal/alert/domain"
	"github.com/saurav5380/apicompass/internal/clock"
	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	entitlementdomain "github.com/saurav5380/apicompass/internal/entitlement/domain"
	"github.com/saurav5380/apicompass/internal/observability/metrics"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	UsageSvc       usagedomain.Service
	EntitlementSvc entitlementdomain.Service
	AlertSvc       alertdomain.Service
	ConnRepo       connectiondomain.Repository

	Claims  ClaimStore       `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
	Config  Config           `optional:"true"`
}

type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	genID          *snowflake.Node
	clock          clock.Clock
	usageSvc       usagedomain.Service
	entitlementSvc entitlementdomain.Service
	alertSvc       alertdomain.Service
	connRepo       connectiondomain.Repository
	claims         ClaimStore
	metrics        *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.UsageSvc == nil || p.EntitlementSvc == nil || p.AlertSvc == nil || p.ConnRepo == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          p.Clock,
		usageSvc:       p.UsageSvc,
		entitlementSvc: p.EntitlementSvc,
		alertSvc:       p.AlertSvc,
		connRepo:       p.ConnRepo,
		claims:         p.Claims,
		metrics:        p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)
	log.Debug("job started")

	err := fn(ctx)
	elapsed := time.Since(start)
	if err == nil {
		log.Debug("job finished", zap.Duration("elapsed", elapsed))
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	log.Error("job failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{"poll_openai", 10 * time.Minute, func(ctx context.Context) error {
			return s.PollProviderJob(ctx, usagedomain.ProviderOpenAI)
		}},
		{"poll_twilio", 10 * time.Minute, func(ctx context.Context) error {
			return s.PollProviderJob(ctx, usagedomain.ProviderTwilio)
		}},
		{"poll_sendgrid", 10 * time.Minute, func(ctx context.Context) error {
			return s.PollProviderJob(ctx, usagedomain.ProviderSendgrid)
		}},
		{"evaluate_alerts", 5 * time.Minute, s.EvaluateAlertsJob},
		{"daily_digest", 5 * time.Minute, s.DailyDigestJob},
		{"usage_backfill", s.cfg.BackfillTimeout + time.Minute, s.BackfillJob},
		{"purge_raw_events", 5 * time.Minute, s.PurgeRawEventsJob},
		{"expire_trials", time.Minute, s.ExpireTrialsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// If EnabledJobs is empty every job runs (monolith mode).
func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) EvaluateAlertsJob(ctx context.Context) error {
	return s.alertSvc.EvaluateAllOrgs(ctx)
}

func (s *Scheduler) DailyDigestJob(ctx context.Context) error {
	return s.alertSvc.DigestAllOrgs(ctx)
}

func (s *Scheduler) BackfillJob(ctx context.Context) error {
	result, err := s.usageSvc.Backfill(ctx, s.cfg.BackfillDays, 5, s.cfg.BackfillTimeout)
	var timeoutErr *usagedomain.BackfillTimeoutError
	if errors.As(err, &timeoutErr) {
		s.log.Warn("daily usage backfill aborted",
			zap.Int("windows_done", timeoutErr.WindowsDone),
			zap.Duration("elapsed", timeoutErr.Elapsed),
		)
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("daily usage backfill finished",
		zap.Int("windows", result.Windows),
		zap.Duration("duration", result.Duration),
	)
	return nil
}

func (s *Scheduler) PurgeRawEventsJob(ctx context.Context) error {
	removed, err := s.usageSvc.PurgeExpired(ctx, s.cfg.RetentionDays)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.log.Info("expired raw events removed", zap.Int64("count", removed))
	}
	return nil
}

func (s *Scheduler) ExpireTrialsJob(ctx context.Context) error {
	expired, err := s.entitlementSvc.ExpireTrials(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("orgs demoted after trial expiration", zap.Int("count", expired))
	}
	return nil
}
