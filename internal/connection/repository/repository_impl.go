package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/saurav5380/apicompass/internal/clock"
	"github.com/saurav5380/apicompass/internal/connection/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
	"github.com/saurav5380/apicompass/pkg/db"
)

type repository struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewRepository(conn *gorm.DB, clk clock.Clock) domain.Repository {
	return &repository{db: conn, clock: clk}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx, clock: r.clock}
}

func (r *repository) Create(ctx context.Context, conn domain.Connection) error {
	if err := r.db.WithContext(ctx).Create(&conn).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateScope
		}
		return err
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	return &conn, nil
}

func (r *repository) ListByOrg(ctx context.Context, orgID snowflake.ID) ([]domain.Connection, error) {
	var conns []domain.Connection
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *repository) ListActiveByProvider(ctx context.Context, provider usagedomain.Provider) ([]domain.Connection, error) {
	var conns []domain.Connection
	err := r.db.WithContext(ctx).
		Where("provider = ? AND status = ? AND local_agent = ?", provider, domain.StatusActive, false).
		Order("id ASC").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *repository) CountActive(ctx context.Context, orgID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Connection{}).
		Where("org_id = ? AND status = ?", orgID, domain.StatusActive).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) MarkSynced(ctx context.Context, id snowflake.ID, ts time.Time) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE connections SET last_synced_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		ts.UTC(),
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *repository) Revoke(ctx context.Context, orgID, id snowflake.ID) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&conn, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrConnectionNotFound
			}
			return err
		}
		conn.Status = domain.StatusDisabled
		conn.EncryptedAuthBlob = nil
		conn.LocalAgent = false
		if conn.Metadata == nil {
			conn.Metadata = map[string]any{}
		}
		conn.Metadata["revoked_at"] = r.clock.Now().UTC().Format(time.RFC3339)
		return tx.Save(&conn).Error
	})
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE connections SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}
