package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saurav5380/apicompass/internal/cache"
	"github.com/saurav5380/apicompass/internal/clock"
	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	"github.com/saurav5380/apicompass/internal/entitlement/domain"
	orgdomain "github.com/saurav5380/apicompass/internal/organization/domain"
	"github.com/saurav5380/apicompass/pkg/db"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	OrgRepo  orgdomain.Repository
	ConnRepo connectiondomain.Repository
	Cache    cache.SnapshotCache `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	orgRepo  orgdomain.Repository
	connRepo connectiondomain.Repository
	cache    cache.SnapshotCache
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("entitlement.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		orgRepo:  p.OrgRepo,
		connRepo: p.ConnRepo,
		cache:    p.Cache,
	}
}

func (s *Service) Get(ctx context.Context, orgID snowflake.ID) (domain.Snapshot, error) {
	if s.cache != nil {
		if snapshot, ok := s.cache.Get(orgID); ok {
			return snapshot, nil
		}
	}
	ent, err := s.ensure(ctx, orgID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot := toSnapshot(ent)
	if s.cache != nil {
		s.cache.Set(orgID, snapshot)
	}
	return snapshot, nil
}

func (s *Service) ApplyPlan(
	ctx context.Context,
	orgID snowflake.ID,
	plan orgdomain.Plan,
	trialEndsAt *time.Time,
	billingStatus string,
) (domain.Snapshot, error) {
	if !plan.Valid() {
		return domain.Snapshot{}, orgdomain.ErrInvalidPlan
	}

	var result domain.OrgEntitlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ent, err := s.ensureTx(ctx, tx, orgID)
		if err != nil {
			return err
		}

		def := domain.Definition(plan)
		ent.Plan = plan
		ent.MaxProviders = def.MaxProviders
		ent.SyncIntervalMinutes = def.SyncIntervalMinutes
		ent.DigestFrequency = def.DigestFrequency
		ent.AlertsEnabled = def.AlertsEnabled
		ent.TipsEnabled = def.TipsEnabled
		ent.TrialEndsAt = trialEndsAt
		if billingStatus != "" {
			ent.BillingStatus = billingStatus
		}
		ent.UpdatedAt = s.clock.Now()

		if err := tx.WithContext(ctx).Save(&ent).Error; err != nil {
			return err
		}
		if err := s.orgRepo.WithTx(tx).UpdatePlan(ctx, orgID, plan); err != nil {
			return err
		}
		result = ent
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(orgID)
	}

	s.log.Info("applied plan",
		zap.String("org_id", orgID.String()),
		zap.String("plan", string(plan)),
	)
	return toSnapshot(result), nil
}

func (s *Service) EnsureConnectionSlot(ctx context.Context, orgID snowflake.ID) (domain.Snapshot, error) {
	snapshot, err := s.Get(ctx, orgID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	active, err := s.connRepo.CountActive(ctx, orgID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if active >= int64(snapshot.MaxProviders) {
		return domain.Snapshot{}, &domain.PlanLimitError{Limit: snapshot.MaxProviders}
	}
	return snapshot, nil
}

func (s *Service) ExpireTrials(ctx context.Context) (int, error) {
	now := s.clock.Now()

	var rows []domain.OrgEntitlement
	err := s.db.WithContext(ctx).
		Where("trial_ends_at IS NOT NULL AND trial_ends_at <= ? AND plan <> ?", now, orgdomain.PlanFree).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, ent := range rows {
		if ent.BillingStatus != "trialing" && ent.BillingStatus != "incomplete" {
			continue
		}
		if _, err := s.ApplyPlan(ctx, ent.OrgID, orgdomain.PlanFree, nil, "expired"); err != nil {
			return expired, err
		}
		expired++
	}

	if expired > 0 {
		s.log.Info("expired trials", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *Service) ensure(ctx context.Context, orgID snowflake.ID) (domain.OrgEntitlement, error) {
	return s.ensureTx(ctx, s.db, orgID)
}

func (s *Service) ensureTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (domain.OrgEntitlement, error) {
	var ent domain.OrgEntitlement
	err := tx.WithContext(ctx).First(&ent, "org_id = ?", orgID).Error
	if err == nil {
		return ent, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.OrgEntitlement{}, err
	}

	plan := orgdomain.PlanFree
	if org, err := s.orgRepo.WithTx(tx).Get(ctx, orgID); err == nil && org.Plan.Valid() {
		plan = org.Plan
	}

	def := domain.Definition(plan)
	ent = domain.OrgEntitlement{
		ID:                  s.genID.Generate(),
		OrgID:               orgID,
		Plan:                plan,
		MaxProviders:        def.MaxProviders,
		SyncIntervalMinutes: def.SyncIntervalMinutes,
		DigestFrequency:     def.DigestFrequency,
		AlertsEnabled:       def.AlertsEnabled,
		TipsEnabled:         def.TipsEnabled,
		BillingStatus:       "inactive",
		CreatedAt:           s.clock.Now(),
		UpdatedAt:           s.clock.Now(),
	}
	if err := tx.WithContext(ctx).Create(&ent).Error; err != nil {
		// Lost a concurrent ensure race, read the winner.
		if db.IsDuplicateKeyErr(err) {
			var winner domain.OrgEntitlement
			if readErr := tx.WithContext(ctx).First(&winner, "org_id = ?", orgID).Error; readErr == nil {
				return winner, nil
			}
		}
		return domain.OrgEntitlement{}, err
	}
	return ent, nil
}

func toSnapshot(ent domain.OrgEntitlement) domain.Snapshot {
	return domain.Snapshot{
		Plan:                ent.Plan,
		MaxProviders:        ent.MaxProviders,
		SyncIntervalMinutes: ent.SyncIntervalMinutes,
		DigestFrequency:     ent.DigestFrequency,
		AlertsEnabled:       ent.AlertsEnabled,
		TipsEnabled:         ent.TipsEnabled,
		TrialEndsAt:         ent.TrialEndsAt,
		BillingStatus:       ent.BillingStatus,
	}
}
