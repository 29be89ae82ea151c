package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	budgetdomain "github.com/saurav5380/apicompass/internal/budget/domain"
	"github.com/saurav5380/apicompass/internal/clock"
	"github.com/saurav5380/apicompass/internal/projection/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type budgetStub struct {
	budgets []budgetdomain.Budget
}

func (s *budgetStub) List(ctx context.Context, orgID snowflake.ID) ([]budgetdomain.Budget, error) {
	return s.budgets, nil
}
func (s *budgetStub) Upsert(ctx context.Context, orgID snowflake.ID, req budgetdomain.UpsertRequest) (*budgetdomain.Budget, error) {
	return nil, nil
}
func (s *budgetStub) Delete(ctx context.Context, orgID, budgetID snowflake.ID) error {
	return nil
}

type projectionFixture struct {
	svc     *Service
	db      *gorm.DB
	clk     *clock.FakeClock
	budgets *budgetStub
	orgID   snowflake.ID
}

func newProjectionFixture(t *testing.T, name string) *projectionFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&usagedomain.DailyUsageCost{}); err != nil {
		t.Fatal(err)
	}
	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	budgets := &budgetStub{}
	svc := &Service{
		db:        db,
		log:       zap.NewNop(),
		clock:     clk,
		budgetSvc: budgets,
	}
	return &projectionFixture{svc: svc, db: db, clk: clk, budgets: budgets, orgID: node.Generate()}
}

func (f *projectionFixture) seedDay(t *testing.T, provider usagedomain.Provider, day string, cost string) {
	t.Helper()
	row := usagedomain.DailyUsageCost{
		OrgID:       f.orgID,
		Provider:    provider,
		Environment: usagedomain.EnvProd,
		Day:         day,
		QuantitySum: decimal.NewFromInt(1),
		CostSum:     decimal.RequireFromString(cost),
		Currency:    "usd",
	}
	if err := f.db.Create(&row).Error; err != nil {
		t.Fatal(err)
	}
}

func TestProjections_PerProviderWithZeroFill(t *testing.T) {
	f := newProjectionFixture(t, "proj_perprovider")

	// OpenAI spent on three of the ten elapsed days; the series must be
	// zero-filled to the full ten.
	f.seedDay(t, usagedomain.ProviderOpenAI, "2025-06-02", "10")
	f.seedDay(t, usagedomain.ProviderOpenAI, "2025-06-05", "10")
	f.seedDay(t, usagedomain.ProviderOpenAI, "2025-06-09", "10")
	f.seedDay(t, usagedomain.ProviderTwilio, "2025-06-08", "4")

	summaries, err := f.svc.Projections(context.Background(), domain.Query{
		OrgID:       f.orgID,
		Environment: usagedomain.EnvProd,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	// Sorted by provider name.
	if summaries[0].Provider != usagedomain.ProviderOpenAI || summaries[1].Provider != usagedomain.ProviderTwilio {
		t.Fatalf("order = %s, %s", summaries[0].Provider, summaries[1].Provider)
	}

	openai := summaries[0]
	if !openai.MonthToDate.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("openai month to date = %s, want 30", openai.MonthToDate)
	}
	if openai.SampleDays != 10 {
		t.Fatalf("sample days = %d, want 10 elapsed days", openai.SampleDays)
	}
	if !openai.ProjectedTotal.GreaterThanOrEqual(openai.MonthToDate) {
		t.Fatalf("projection %s below month to date %s", openai.ProjectedTotal, openai.MonthToDate)
	}
}

func TestProjections_NoUsageNoSummaries(t *testing.T) {
	f := newProjectionFixture(t, "proj_empty")

	summaries, err := f.svc.Projections(context.Background(), domain.Query{
		OrgID:       f.orgID,
		Environment: usagedomain.EnvProd,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Fatalf("got %d summaries, want 0", len(summaries))
	}
}

func TestProjections_RequestedProviderAlwaysPresent(t *testing.T) {
	f := newProjectionFixture(t, "proj_requested")
	sendgrid := usagedomain.ProviderSendgrid

	summaries, err := f.svc.Projections(context.Background(), domain.Query{
		OrgID:       f.orgID,
		Environment: usagedomain.EnvProd,
		Provider:    &sendgrid,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1 placeholder", len(summaries))
	}
	if summaries[0].Provider != sendgrid || !summaries[0].MonthToDate.IsZero() {
		t.Fatalf("placeholder = %+v", summaries[0])
	}
}

func TestProjections_EnvironmentIsolation(t *testing.T) {
	f := newProjectionFixture(t, "proj_env")
	f.seedDay(t, usagedomain.ProviderOpenAI, "2025-06-05", "25")

	summaries, err := f.svc.Projections(context.Background(), domain.Query{
		OrgID:       f.orgID,
		Environment: usagedomain.EnvStaging,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Fatalf("staging query must not see prod rollups, got %d", len(summaries))
	}
}

func TestProjections_AttachesBudget(t *testing.T) {
	f := newProjectionFixture(t, "proj_budget")
	node, _ := snowflake.NewNode(2)
	openai := usagedomain.ProviderOpenAI
	prod := usagedomain.EnvProd

	f.budgets.budgets = []budgetdomain.Budget{{
		ID:          node.Generate(),
		OrgID:       f.orgID,
		Provider:    &openai,
		Environment: &prod,
		MonthlyCap:  decimal.NewFromInt(50),
	}}
	for d := 1; d <= 10; d++ {
		f.seedDay(t, openai, fmt.Sprintf("2025-06-%02d", d), "10")
	}

	summaries, err := f.svc.Projections(context.Background(), domain.Query{
		OrgID:       f.orgID,
		Environment: prod,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	s := summaries[0]
	if s.BudgetLimit == nil || !s.BudgetLimit.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("budget limit = %v, want 50", s.BudgetLimit)
	}
	if !s.OverBudget {
		t.Fatal("$10/day against a $50 cap must project over budget")
	}
	if s.BudgetSource != domain.BudgetSourceProvider {
		t.Fatalf("budget source = %q", s.BudgetSource)
	}
}
