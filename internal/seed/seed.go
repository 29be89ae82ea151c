// Package seed bootstraps the default org for local and self-hosted setups.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	entitlementdomain "github.com/saurav5380/apicompass/internal/entitlement/domain"
	organizationdomain "github.com/saurav5380/apicompass/internal/organization/domain"
)

const defaultOrgName = "Main"

// EnsureMainOrg seeds the default organization for startup bootstrap.
func EnsureMainOrg(db *gorm.DB) error {
	return ensure(db, 0)
}

// EnsureMainOrgWithID seeds the default organization under a fixed id so
// that single-tenant deployments get a stable org reference.
func EnsureMainOrgWithID(db *gorm.DB, orgID int64) error {
	return ensure(db, snowflake.ID(orgID))
}

func ensure(db *gorm.DB, orgID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureMainOrgTx(ctx, tx, node, orgID)
		if err != nil {
			return err
		}
		return ensureEntitlementTx(ctx, tx, node, org)
	})
}

func ensureMainOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) (organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	query := tx.WithContext(ctx)
	if orgID != 0 {
		query = query.Where("id = ?", orgID)
	} else {
		query = query.Where("name = ?", defaultOrgName)
	}
	err := query.First(&org).Error
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}

	id := orgID
	if id == 0 {
		id = node.Generate()
	}
	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:        id,
		Name:      defaultOrgName,
		Plan:      organizationdomain.PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, nil
}

func ensureEntitlementTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, org organizationdomain.Organization) error {
	var ent entitlementdomain.OrgEntitlement
	err := tx.WithContext(ctx).Where("org_id = ?", org.ID).First(&ent).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	def := entitlementdomain.Definition(org.Plan)
	now := time.Now().UTC()
	ent = entitlementdomain.OrgEntitlement{
		ID:                  node.Generate(),
		OrgID:               org.ID,
		Plan:                def.Plan,
		MaxProviders:        def.MaxProviders,
		SyncIntervalMinutes: def.SyncIntervalMinutes,
		DigestFrequency:     def.DigestFrequency,
		AlertsEnabled:       def.AlertsEnabled,
		TipsEnabled:         def.TipsEnabled,
		BillingStatus:       "active",
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	return tx.WithContext(ctx).Create(&ent).Error
}
