package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org Organization) error
	Get(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	ListIDs(ctx context.Context) ([]snowflake.ID, error)
	UpdatePlan(ctx context.Context, orgID snowflake.ID, plan Plan) error
}

var (
	ErrInvalidPlan = errors.New("invalid_plan")
	ErrOrgNotFound = errors.New("org_not_found")
)
