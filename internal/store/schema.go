package store

import (
	"context"
	"fmt"
)

// Tables names the three tables a Store operates on. The migration
// coordinator points a second Store at staging names and promotes them
// during cutover.
type Tables struct {
	Listings     string
	Snapshots    string
	RecrawlQueue string
}

// DefaultTables returns the production table names.
func DefaultTables() Tables {
	return Tables{
		Listings:     "listings",
		Snapshots:    "listing_snapshots",
		RecrawlQueue: "recrawl_queue",
	}
}

// StagingTables returns the names used while backfilling from the legacy
// schema, before cutover renames them over DefaultTables.
func StagingTables() Tables {
	return Tables{
		Listings:     "listings_new",
		Snapshots:    "listing_snapshots_new",
		RecrawlQueue: "recrawl_queue_new",
	}
}

// Names of the schema objects EnsureSchema creates explicitly. The cutover
// renames these along with the tables themselves; postgres keeps index and
// constraint names unchanged on ALTER TABLE ... RENAME, and a stale name
// would make the next EnsureSchema create a duplicate.

// ObservedIndex names the snapshot-ordering index on the snapshots table.
func (t Tables) ObservedIndex() string { return t.Snapshots + "_listing_observed_idx" }

// PointerConstraint names the weak current_snapshot_id foreign key.
func (t Tables) PointerConstraint() string { return t.Listings + "_current_snapshot_fkey" }

// DueIndex names the next_update_at index on the recrawl queue.
func (t Tables) DueIndex() string { return t.RecrawlQueue + "_next_update_idx" }

// EnsureSchema creates the tables, indexes and constraints if they do not
// exist. Safe to run at every startup and before every backfill.
//
// The current_snapshot_id pointer is a weak back-reference: ON DELETE SET
// NULL, so deleting a snapshot clears the pointer instead of cascading to
// the listing. Snapshots themselves cascade when their listing is deleted.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id                  BIGSERIAL PRIMARY KEY,
			listing_id          BIGINT NOT NULL,
			offering_type       TEXT NOT NULL CHECK (offering_type IN ('rent', 'buy')),
			street_address      TEXT NOT NULL DEFAULT '',
			postal_code         TEXT NOT NULL DEFAULT '',
			city                TEXT NOT NULL DEFAULT '',
			property_agent      TEXT NOT NULL DEFAULT '',
			house_type          TEXT NOT NULL DEFAULT '',
			construction_year   INT NOT NULL DEFAULT 0,
			latitude            DOUBLE PRECISION NOT NULL DEFAULT 0,
			longitude           DOUBLE PRECISION NOT NULL DEFAULT 0,
			first_seen_at       TIMESTAMPTZ NOT NULL,
			last_seen_at        TIMESTAMPTZ NOT NULL,
			current_snapshot_id BIGINT,
			UNIQUE (listing_id, offering_type)
		)`, s.tables.Listings),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            BIGSERIAL PRIMARY KEY,
			listing_ref   BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			observed_at   TIMESTAMPTZ NOT NULL,
			fingerprint   TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT '',
			price         DOUBLE PRECISION NOT NULL DEFAULT 0,
			deposit       DOUBLE PRECISION NOT NULL DEFAULT 0,
			living_area   DOUBLE PRECISION NOT NULL DEFAULT 0,
			external_area DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume        DOUBLE PRECISION NOT NULL DEFAULT 0,
			bedroom_count INT NOT NULL DEFAULT 0,
			energy_label  TEXT NOT NULL DEFAULT '',
			details       JSONB,
			UNIQUE (listing_ref, fingerprint)
		)`, s.tables.Snapshots, s.tables.Listings),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s
			ON %s (listing_ref, observed_at DESC, id DESC)`,
			s.tables.ObservedIndex(), s.tables.Snapshots),

		// The weak pointer constraint references the snapshots table, which
		// must exist first, hence the separate ALTER.
		fmt.Sprintf(`DO $$ BEGIN
			ALTER TABLE %s
				ADD CONSTRAINT %s
				FOREIGN KEY (current_snapshot_id)
				REFERENCES %s(id) ON DELETE SET NULL;
		EXCEPTION WHEN duplicate_object THEN NULL;
		END $$`, s.tables.Listings, s.tables.PointerConstraint(), s.tables.Snapshots),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			listing_id     BIGINT NOT NULL,
			offering_type  TEXT NOT NULL CHECK (offering_type IN ('rent', 'buy')),
			next_update_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (listing_id, offering_type)
		)`, s.tables.RecrawlQueue),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s
			ON %s (next_update_at)`, s.tables.DueIndex(), s.tables.RecrawlQueue),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classify("ensure schema", err)
		}
	}
	return nil
}
