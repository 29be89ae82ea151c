package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"

	entitlementdomain "github.com/saurav5380/apicompass/internal/entitlement/domain"
)

const defaultSnapshotTTL = 45 * time.Second

// SnapshotCache stores resolved entitlement snapshots so the poll and
// ingest paths avoid a database round trip per org.
type SnapshotCache interface {
	Get(orgID snowflake.ID) (entitlementdomain.Snapshot, bool)
	Set(orgID snowflake.ID, snapshot entitlementdomain.Snapshot)
	Invalidate(orgID snowflake.ID)
}

type snapshotCache struct {
	snapshots Cache[snowflake.ID, entitlementdomain.Snapshot]
	ttl       time.Duration
}

// NewSnapshotCache returns an in-memory cache tuned for entitlement reads.
func NewSnapshotCache() SnapshotCache {
	return &snapshotCache{
		snapshots: NewTTLCache[snowflake.ID, entitlementdomain.Snapshot](),
		ttl:       defaultSnapshotTTL,
	}
}

func (c *snapshotCache) Get(orgID snowflake.ID) (entitlementdomain.Snapshot, bool) {
	return c.snapshots.Get(orgID)
}

func (c *snapshotCache) Set(orgID snowflake.ID, snapshot entitlementdomain.Snapshot) {
	c.snapshots.Set(orgID, snapshot, c.ttl)
}

func (c *snapshotCache) Invalidate(orgID snowflake.ID) {
	c.snapshots.Delete(orgID)
}
