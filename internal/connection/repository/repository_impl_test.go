package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/saurav5380/apicompass/internal/clock"
	"github.com/saurav5380/apicompass/internal/connection/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

var repoTestNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T, name string) (domain.Repository, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&domain.Connection{}); err != nil {
		t.Fatal(err)
	}
	node, _ := snowflake.NewNode(1)
	return NewRepository(db, clock.NewFakeClock(repoTestNow)), node
}

func newConn(node *snowflake.Node, provider usagedomain.Provider, env usagedomain.Environment) domain.Connection {
	return domain.Connection{
		ID:                node.Generate(),
		OrgID:             node.Generate(),
		Provider:          provider,
		Environment:       env,
		Status:            domain.StatusActive,
		DisplayName:       "test connection",
		EncryptedAuthBlob: []byte("sealed"),
	}
}

func TestCreate_DuplicateScopeRejected(t *testing.T) {
	repo, node := newRepo(t, "conn_dup")
	ctx := context.Background()

	conn := newConn(node, usagedomain.ProviderOpenAI, usagedomain.EnvProd)
	if err := repo.Create(ctx, conn); err != nil {
		t.Fatal(err)
	}

	clone := conn
	clone.ID = node.Generate()
	if err := repo.Create(ctx, clone); !errors.Is(err, domain.ErrDuplicateScope) {
		t.Fatalf("got %v, want ErrDuplicateScope", err)
	}

	// Same provider in another environment is a distinct scope.
	other := conn
	other.ID = node.Generate()
	other.Environment = usagedomain.EnvStaging
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("staging scope should be allowed: %v", err)
	}
}

func TestListActiveByProvider_FiltersStatusAndLocalAgent(t *testing.T) {
	repo, node := newRepo(t, "conn_list")
	ctx := context.Background()

	active := newConn(node, usagedomain.ProviderOpenAI, usagedomain.EnvProd)
	disabled := newConn(node, usagedomain.ProviderOpenAI, usagedomain.EnvStaging)
	disabled.Status = domain.StatusDisabled
	local := newConn(node, usagedomain.ProviderOpenAI, usagedomain.EnvDev)
	local.LocalAgent = true
	twilio := newConn(node, usagedomain.ProviderTwilio, usagedomain.EnvProd)

	for _, conn := range []domain.Connection{active, disabled, local, twilio} {
		if err := repo.Create(ctx, conn); err != nil {
			t.Fatal(err)
		}
	}

	conns, err := repo.ListActiveByProvider(ctx, usagedomain.ProviderOpenAI)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 {
		t.Fatalf("got %d connections, want only the active cloud-polled one", len(conns))
	}
	if conns[0].ID != active.ID {
		t.Fatalf("got connection %d, want %d", conns[0].ID, active.ID)
	}
}

func TestMarkSynced(t *testing.T) {
	repo, node := newRepo(t, "conn_marksynced")
	ctx := context.Background()

	conn := newConn(node, usagedomain.ProviderSendgrid, usagedomain.EnvProd)
	if err := repo.Create(ctx, conn); err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	if err := repo.MarkSynced(ctx, conn.ID, ts); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastSyncedAt == nil || !got.LastSyncedAt.Equal(ts) {
		t.Fatalf("last synced = %v, want %s", got.LastSyncedAt, ts)
	}

	if err := repo.MarkSynced(ctx, node.Generate(), ts); !errors.Is(err, domain.ErrConnectionNotFound) {
		t.Fatalf("got %v, want ErrConnectionNotFound", err)
	}
}

func TestRevoke_DropsCredentials(t *testing.T) {
	repo, node := newRepo(t, "conn_revoke")
	ctx := context.Background()

	conn := newConn(node, usagedomain.ProviderOpenAI, usagedomain.EnvProd)
	conn.LocalAgent = true
	if err := repo.Create(ctx, conn); err != nil {
		t.Fatal(err)
	}

	revoked, err := repo.Revoke(ctx, conn.OrgID, conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if revoked.Status != domain.StatusDisabled {
		t.Fatalf("status = %s, want disabled", revoked.Status)
	}
	if revoked.EncryptedAuthBlob != nil {
		t.Fatal("revocation must drop the sealed credentials")
	}
	if revoked.LocalAgent {
		t.Fatal("revocation must clear the local agent flag")
	}
	if got := revoked.Metadata["revoked_at"]; got != repoTestNow.Format(time.RFC3339) {
		t.Fatalf("revoked_at = %v, want the injected clock time", got)
	}

	// Wrong org cannot revoke.
	other := newConn(node, usagedomain.ProviderTwilio, usagedomain.EnvProd)
	if err := repo.Create(ctx, other); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Revoke(ctx, conn.OrgID, other.ID); !errors.Is(err, domain.ErrConnectionNotFound) {
		t.Fatalf("got %v, want ErrConnectionNotFound for foreign org", err)
	}
}

func TestCountActive(t *testing.T) {
	repo, node := newRepo(t, "conn_count")
	ctx := context.Background()

	orgID := node.Generate()
	for i, provider := range []usagedomain.Provider{usagedomain.ProviderOpenAI, usagedomain.ProviderTwilio, usagedomain.ProviderSendgrid} {
		conn := newConn(node, provider, usagedomain.EnvProd)
		conn.OrgID = orgID
		if i == 2 {
			conn.Status = domain.StatusDisabled
		}
		if err := repo.Create(ctx, conn); err != nil {
			t.Fatal(err)
		}
	}

	count, err := repo.CountActive(ctx, orgID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("active count = %d, want 2", count)
	}
}
