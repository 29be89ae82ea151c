package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saurav5380/apicompass/internal/budget/domain"
	"github.com/saurav5380/apicompass/internal/clock"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("budget.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]domain.Budget, error) {
	var budgets []domain.Budget
	err := s.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("provider ASC, environment ASC").
		Find(&budgets).Error
	if err != nil {
		return nil, err
	}
	return budgets, nil
}

// Upsert replaces the cap for one (provider, environment) scope, or
// creates it when absent. A missing environment defaults to prod.
func (s *Service) Upsert(ctx context.Context, orgID snowflake.ID, req domain.UpsertRequest) (*domain.Budget, error) {
	if !req.MonthlyCap.IsPositive() {
		return nil, domain.ErrInvalidCap
	}
	if req.ThresholdPercent < 0 || req.ThresholdPercent > 100 {
		return nil, domain.ErrInvalidPercent
	}
	if req.ThresholdPercent == 0 {
		req.ThresholdPercent = 80
	}

	environment := usagedomain.EnvProd
	if req.Environment != nil {
		environment = *req.Environment
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	var result domain.Budget
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.WithContext(ctx).Where("org_id = ? AND environment = ?", orgID, environment)
		if req.Provider == nil {
			query = query.Where("provider IS NULL")
		} else {
			query = query.Where("provider = ?", *req.Provider)
		}

		var existing domain.Budget
		err := query.First(&existing).Error
		switch {
		case err == nil:
			existing.MonthlyCap = req.MonthlyCap
			existing.Currency = currency
			existing.ThresholdPercent = req.ThresholdPercent
			existing.Notes = req.Notes
			existing.UpdatedAt = s.clock.Now()
			if err := tx.WithContext(ctx).Save(&existing).Error; err != nil {
				return err
			}
			result = existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			budget := domain.Budget{
				ID:               s.genID.Generate(),
				OrgID:            orgID,
				Provider:         req.Provider,
				Environment:      &environment,
				MonthlyCap:       req.MonthlyCap,
				Currency:         currency,
				ThresholdPercent: req.ThresholdPercent,
				Notes:            req.Notes,
				CreatedAt:        s.clock.Now(),
				UpdatedAt:        s.clock.Now(),
			}
			if err := tx.WithContext(ctx).Create(&budget).Error; err != nil {
				return err
			}
			result = budget
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("budget upserted",
		zap.String("org_id", orgID.String()),
		zap.String("cap", result.MonthlyCap.String()),
	)
	return &result, nil
}

func (s *Service) Delete(ctx context.Context, orgID, budgetID snowflake.ID) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", budgetID, orgID).
		Delete(&domain.Budget{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBudgetNotFound
	}
	return nil
}
