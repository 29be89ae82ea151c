package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	orgdomain "github.com/saurav5380/apicompass/internal/organization/domain"
)

type Service interface {
	// Get resolves the entitlement snapshot for an org, creating the
	// row from the org's plan defaults when missing.
	Get(ctx context.Context, orgID snowflake.ID) (Snapshot, error)

	// ApplyPlan rewrites the entitlement row from the plan definition
	// and mirrors the plan onto the org.
	ApplyPlan(ctx context.Context, orgID snowflake.ID, plan orgdomain.Plan, trialEndsAt *time.Time, billingStatus string) (Snapshot, error)

	// EnsureConnectionSlot rejects with *PlanLimitError when every
	// provider slot is already taken by an active connection.
	EnsureConnectionSlot(ctx context.Context, orgID snowflake.ID) (Snapshot, error)

	// ExpireTrials demotes orgs whose trial window has lapsed back to
	// the free plan and reports how many were demoted.
	ExpireTrials(ctx context.Context) (int, error)
}
