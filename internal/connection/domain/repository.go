package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, conn Connection) error
	Get(ctx context.Context, id snowflake.ID) (*Connection, error)
	ListByOrg(ctx context.Context, orgID snowflake.ID) ([]Connection, error)
	ListActiveByProvider(ctx context.Context, provider usagedomain.Provider) ([]Connection, error)
	CountActive(ctx context.Context, orgID snowflake.ID) (int64, error)
	MarkSynced(ctx context.Context, id snowflake.ID, ts time.Time) error
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status) error
	// Revoke disables the connection and drops its stored credentials.
	Revoke(ctx context.Context, orgID, id snowflake.ID) (*Connection, error)
}

var (
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrConnectionNotFound = errors.New("connection_not_found")
	ErrDuplicateScope     = errors.New("duplicate_connection_scope")
)
