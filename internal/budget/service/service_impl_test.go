package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saurav5380/apicompass/internal/budget/domain"
	"github.com/saurav5380/apicompass/internal/clock"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

func newBudgetService(t *testing.T, name string) (*Service, snowflake.ID) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&domain.Budget{}); err != nil {
		t.Fatal(err)
	}
	node, _ := snowflake.NewNode(1)
	svc := &Service{
		db:    db,
		log:   zap.NewNop(),
		genID: node,
		clock: clock.NewFakeClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)),
	}
	return svc, node.Generate()
}

func TestUpsert_CreateThenReplace(t *testing.T) {
	svc, orgID := newBudgetService(t, "budget_upsert")
	openai := usagedomain.ProviderOpenAI

	created, err := svc.Upsert(context.Background(), orgID, domain.UpsertRequest{
		Provider:   &openai,
		MonthlyCap: decimal.NewFromInt(200),
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ThresholdPercent != 80 {
		t.Fatalf("threshold default = %d, want 80", created.ThresholdPercent)
	}
	if created.Currency != "usd" {
		t.Fatalf("currency default = %q, want usd", created.Currency)
	}
	if created.Environment == nil || *created.Environment != usagedomain.EnvProd {
		t.Fatal("missing environment defaults to prod")
	}

	// A second upsert for the same scope replaces rather than stacking.
	replaced, err := svc.Upsert(context.Background(), orgID, domain.UpsertRequest{
		Provider:         &openai,
		MonthlyCap:       decimal.NewFromInt(500),
		Currency:         "EUR",
		ThresholdPercent: 90,
		Notes:            "raised for launch week",
	})
	if err != nil {
		t.Fatal(err)
	}
	if replaced.ID != created.ID {
		t.Fatal("same scope must keep the same budget row")
	}
	if !replaced.MonthlyCap.Equal(decimal.NewFromInt(500)) || replaced.Currency != "eur" {
		t.Fatalf("replacement not applied: %+v", replaced)
	}

	budgets, err := svc.List(context.Background(), orgID)
	if err != nil {
		t.Fatal(err)
	}
	if len(budgets) != 1 {
		t.Fatalf("got %d budgets, want 1", len(budgets))
	}
}

func TestUpsert_OrgWideAndProviderCoexist(t *testing.T) {
	svc, orgID := newBudgetService(t, "budget_scopes")
	openai := usagedomain.ProviderOpenAI

	if _, err := svc.Upsert(context.Background(), orgID, domain.UpsertRequest{
		MonthlyCap: decimal.NewFromInt(1000),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Upsert(context.Background(), orgID, domain.UpsertRequest{
		Provider:   &openai,
		MonthlyCap: decimal.NewFromInt(300),
	}); err != nil {
		t.Fatal(err)
	}

	budgets, err := svc.List(context.Background(), orgID)
	if err != nil {
		t.Fatal(err)
	}
	if len(budgets) != 2 {
		t.Fatalf("got %d budgets, want separate org-wide and provider rows", len(budgets))
	}
}

func TestUpsert_Validation(t *testing.T) {
	svc, orgID := newBudgetService(t, "budget_validation")

	_, err := svc.Upsert(context.Background(), orgID, domain.UpsertRequest{
		MonthlyCap: decimal.Zero,
	})
	if !errors.Is(err, domain.ErrInvalidCap) {
		t.Fatalf("got %v, want ErrInvalidCap", err)
	}

	_, err = svc.Upsert(context.Background(), orgID, domain.UpsertRequest{
		MonthlyCap:       decimal.NewFromInt(100),
		ThresholdPercent: 150,
	})
	if !errors.Is(err, domain.ErrInvalidPercent) {
		t.Fatalf("got %v, want ErrInvalidPercent", err)
	}
}

func TestDelete(t *testing.T) {
	svc, orgID := newBudgetService(t, "budget_delete")

	created, err := svc.Upsert(context.Background(), orgID, domain.UpsertRequest{
		MonthlyCap: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Another org cannot delete it.
	node, _ := snowflake.NewNode(2)
	if err := svc.Delete(context.Background(), node.Generate(), created.ID); !errors.Is(err, domain.ErrBudgetNotFound) {
		t.Fatalf("got %v, want ErrBudgetNotFound for foreign org", err)
	}

	if err := svc.Delete(context.Background(), orgID, created.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), orgID, created.ID); !errors.Is(err, domain.ErrBudgetNotFound) {
		t.Fatalf("got %v, want ErrBudgetNotFound after delete", err)
	}
}
