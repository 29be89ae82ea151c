package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saurav5380/apicompass/internal/cache"
	"github.com/saurav5380/apicompass/internal/clock"
	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	"github.com/saurav5380/apicompass/internal/entitlement/domain"
	orgdomain "github.com/saurav5380/apicompass/internal/organization/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// -- Stubs --

type orgRepoStub struct {
	orgs        map[snowflake.ID]*orgdomain.Organization
	planUpdates []orgdomain.Plan
}

func (s *orgRepoStub) WithTx(tx *gorm.DB) orgdomain.Repository { return s }
func (s *orgRepoStub) Create(ctx context.Context, org orgdomain.Organization) error {
	return nil
}
func (s *orgRepoStub) Get(ctx context.Context, orgID snowflake.ID) (*orgdomain.Organization, error) {
	if org, ok := s.orgs[orgID]; ok {
		return org, nil
	}
	return nil, orgdomain.ErrOrgNotFound
}
func (s *orgRepoStub) ListIDs(ctx context.Context) ([]snowflake.ID, error) {
	return nil, nil
}
func (s *orgRepoStub) UpdatePlan(ctx context.Context, orgID snowflake.ID, plan orgdomain.Plan) error {
	s.planUpdates = append(s.planUpdates, plan)
	return nil
}

type connRepoStub struct {
	active int64
}

func (s *connRepoStub) WithTx(tx *gorm.DB) connectiondomain.Repository { return s }
func (s *connRepoStub) Create(ctx context.Context, conn connectiondomain.Connection) error {
	return nil
}
func (s *connRepoStub) Get(ctx context.Context, id snowflake.ID) (*connectiondomain.Connection, error) {
	return nil, connectiondomain.ErrConnectionNotFound
}
func (s *connRepoStub) ListByOrg(ctx context.Context, orgID snowflake.ID) ([]connectiondomain.Connection, error) {
	return nil, nil
}
func (s *connRepoStub) ListActiveByProvider(ctx context.Context, provider usagedomain.Provider) ([]connectiondomain.Connection, error) {
	return nil, nil
}
func (s *connRepoStub) CountActive(ctx context.Context, orgID snowflake.ID) (int64, error) {
	return s.active, nil
}
func (s *connRepoStub) MarkSynced(ctx context.Context, id snowflake.ID, ts time.Time) error {
	return nil
}
func (s *connRepoStub) UpdateStatus(ctx context.Context, id snowflake.ID, status connectiondomain.Status) error {
	return nil
}
func (s *connRepoStub) Revoke(ctx context.Context, orgID, id snowflake.ID) (*connectiondomain.Connection, error) {
	return nil, connectiondomain.ErrConnectionNotFound
}

// -- Fixture --

type entitlementFixture struct {
	svc   *Service
	db    *gorm.DB
	clk   *clock.FakeClock
	orgs  *orgRepoStub
	conns *connRepoStub
	cache cache.SnapshotCache
	orgID snowflake.ID
}

func newEntitlementFixture(t *testing.T, name string) *entitlementFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&domain.OrgEntitlement{}); err != nil {
		t.Fatal(err)
	}

	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	orgID := node.Generate()
	orgs := &orgRepoStub{orgs: map[snowflake.ID]*orgdomain.Organization{
		orgID: {ID: orgID, Name: "Main", Plan: orgdomain.PlanPro},
	}}
	conns := &connRepoStub{}
	snapshots := cache.NewSnapshotCache()

	svc := &Service{
		db:       db,
		log:      zap.NewNop(),
		genID:    node,
		clock:    clk,
		orgRepo:  orgs,
		connRepo: conns,
		cache:    snapshots,
	}
	return &entitlementFixture{
		svc:   svc,
		db:    db,
		clk:   clk,
		orgs:  orgs,
		conns: conns,
		cache: snapshots,
		orgID: orgID,
	}
}

// -- Tests --

func TestGet_SeedsFromOrgPlan(t *testing.T) {
	f := newEntitlementFixture(t, "ent_seed")

	snapshot, err := f.svc.Get(context.Background(), f.orgID)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Plan != orgdomain.PlanPro {
		t.Fatalf("plan = %s, want pro", snapshot.Plan)
	}
	if snapshot.MaxProviders != 3 || snapshot.SyncIntervalMinutes != 60 {
		t.Fatalf("pro defaults not applied: %+v", snapshot)
	}

	var count int64
	if err := f.db.Model(&domain.OrgEntitlement{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("entitlement rows = %d, want 1", count)
	}
}

func TestGet_UnknownOrgDefaultsToFree(t *testing.T) {
	f := newEntitlementFixture(t, "ent_unknown")
	node, _ := snowflake.NewNode(2)
	strangerID := node.Generate()

	snapshot, err := f.svc.Get(context.Background(), strangerID)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Plan != orgdomain.PlanFree {
		t.Fatalf("plan = %s, want free", snapshot.Plan)
	}
	if snapshot.MaxProviders != 1 {
		t.Fatalf("max providers = %d, want 1", snapshot.MaxProviders)
	}
}

func TestGet_ServesFromCache(t *testing.T) {
	f := newEntitlementFixture(t, "ent_cache")

	if _, err := f.svc.Get(context.Background(), f.orgID); err != nil {
		t.Fatal(err)
	}

	// A direct row edit is invisible until the cache entry expires or
	// is invalidated.
	err := f.db.Model(&domain.OrgEntitlement{}).
		Where("org_id = ?", f.orgID).
		Update("max_providers", 99).Error
	if err != nil {
		t.Fatal(err)
	}

	snapshot, err := f.svc.Get(context.Background(), f.orgID)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.MaxProviders != 3 {
		t.Fatalf("max providers = %d, want cached 3", snapshot.MaxProviders)
	}

	f.cache.Invalidate(f.orgID)
	snapshot, err = f.svc.Get(context.Background(), f.orgID)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.MaxProviders != 99 {
		t.Fatalf("max providers = %d, want 99 after invalidation", snapshot.MaxProviders)
	}
}

func TestApplyPlan(t *testing.T) {
	f := newEntitlementFixture(t, "ent_apply")

	trialEnd := f.clk.Now().AddDate(0, 0, 14)
	snapshot, err := f.svc.ApplyPlan(context.Background(), f.orgID, orgdomain.PlanEnterprise, &trialEnd, "trialing")
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Plan != orgdomain.PlanEnterprise || snapshot.MaxProviders != 10 {
		t.Fatalf("enterprise definition not applied: %+v", snapshot)
	}
	if snapshot.BillingStatus != "trialing" {
		t.Fatalf("billing status = %q", snapshot.BillingStatus)
	}
	if len(f.orgs.planUpdates) != 1 || f.orgs.planUpdates[0] != orgdomain.PlanEnterprise {
		t.Fatalf("org plan updates = %v", f.orgs.planUpdates)
	}

	// The cached snapshot was invalidated by the plan change.
	got, err := f.svc.Get(context.Background(), f.orgID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Plan != orgdomain.PlanEnterprise {
		t.Fatalf("plan after apply = %s", got.Plan)
	}

	if _, err := f.svc.ApplyPlan(context.Background(), f.orgID, "platinum", nil, ""); !errors.Is(err, orgdomain.ErrInvalidPlan) {
		t.Fatalf("got err %v, want ErrInvalidPlan", err)
	}
}

func TestEnsureConnectionSlot(t *testing.T) {
	f := newEntitlementFixture(t, "ent_slot")
	f.conns.active = 2

	if _, err := f.svc.EnsureConnectionSlot(context.Background(), f.orgID); err != nil {
		t.Fatalf("2 of 3 slots used, want success: %v", err)
	}

	f.conns.active = 3
	_, err := f.svc.EnsureConnectionSlot(context.Background(), f.orgID)
	var limitErr *domain.PlanLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("got %v, want PlanLimitError", err)
	}
	if limitErr.Limit != 3 {
		t.Fatalf("limit = %d, want 3", limitErr.Limit)
	}
}

func TestExpireTrials(t *testing.T) {
	f := newEntitlementFixture(t, "ent_expire")
	now := f.clk.Now()
	node, _ := snowflake.NewNode(2)

	lapsed := now.Add(-time.Hour)
	running := now.Add(72 * time.Hour)
	rows := []domain.OrgEntitlement{
		{
			ID: node.Generate(), OrgID: f.orgID, Plan: orgdomain.PlanPro,
			MaxProviders: 3, SyncIntervalMinutes: 60, DigestFrequency: "daily",
			TrialEndsAt: &lapsed, BillingStatus: "trialing",
		},
		{
			ID: node.Generate(), OrgID: node.Generate(), Plan: orgdomain.PlanPro,
			MaxProviders: 3, SyncIntervalMinutes: 60, DigestFrequency: "daily",
			TrialEndsAt: &running, BillingStatus: "trialing",
		},
		{
			ID: node.Generate(), OrgID: node.Generate(), Plan: orgdomain.PlanEnterprise,
			MaxProviders: 10, SyncIntervalMinutes: 15, DigestFrequency: "daily",
			TrialEndsAt: &lapsed, BillingStatus: "active",
		},
	}
	for i := range rows {
		if err := f.db.Create(&rows[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	expired, err := f.svc.ExpireTrials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1; active subscriptions and running trials stay", expired)
	}

	var demoted domain.OrgEntitlement
	if err := f.db.First(&demoted, "org_id = ?", f.orgID).Error; err != nil {
		t.Fatal(err)
	}
	if demoted.Plan != orgdomain.PlanFree {
		t.Fatalf("plan = %s, want free after trial expiry", demoted.Plan)
	}
	if demoted.BillingStatus != "expired" {
		t.Fatalf("billing status = %q, want expired", demoted.BillingStatus)
	}
	if demoted.TrialEndsAt != nil {
		t.Fatal("trial end must be cleared on demotion")
	}
}
