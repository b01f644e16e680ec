// Package migrate performs the one-time transformation from the legacy
// flat tables (one row per crawl, no dedup) into the versioned model.
//
// Two phases, driven by cmd/migrate:
//
//	backfill — repeatable; fills the *_new staging tables using the same
//	           fingerprint / upsert / pointer logic as live ingestion.
//	cutover  — single-shot and destructive; drops the legacy tables and
//	           renames staging over the production names in one
//	           transaction, so readers see fully-old or fully-new, never
//	           a mix. Requires an explicit operator confirmation and a
//	           prior backup.
//
// Assumed legacy layout (the columns the old crawler upserted):
//
//	property_listings — one row per crawl of a search result:
//	    id, status, rent_price, floor_area, number_of_bedrooms,
//	    energy_label, address_street, address_number, address_suffix,
//	    address_postal_code, address_city, agent_name,
//	    crawl_date (ISO-8601 text)
//	property_details — upserted satellite, current state only, keyed by
//	    property_id: price, deposit, living_area, external_area, volume,
//	    house_type, construction_year, energy_label, status, description
//
// Detail fields were overwritten in place by the old crawler, so
// historical listing rows join the last-known detail state; the legacy
// schema kept no detail history to migrate.
package migrate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Blickwinkle262/DutchRentScope/internal/model"
	"github.com/Blickwinkle262/DutchRentScope/internal/recrawl"
	"github.com/Blickwinkle262/DutchRentScope/internal/store"
)

// Legacy table names from the original flat schema.
const (
	legacyListings = "property_listings"
	legacyDetails  = "property_details"
)

// Coordinator runs the backfill and cutover against one database.
type Coordinator struct {
	pool    *pgxpool.Pool
	staging *store.Store
	policy  recrawl.Policy
	// The legacy deployment crawled a single offering type; it is not
	// recorded per row, so the operator supplies it.
	offering model.OfferingType
}

// NewCoordinator returns a Coordinator writing into the staging tables.
func NewCoordinator(pool *pgxpool.Pool, offering model.OfferingType) *Coordinator {
	return &Coordinator{
		pool:     pool,
		staging:  store.NewWithTables(pool, store.StagingTables()),
		policy:   recrawl.DefaultPolicy(),
		offering: offering,
	}
}

// Backfill runs steps 1–3: build the listing dimension, replay every legacy
// row through RecordObservation (duplicate fingerprints collapse via the
// uniqueness contract), recompute all current pointers, and seed the
// recrawl queue for listings still on the market. Safe to re-run to
// completion at any time.
func (c *Coordinator) Backfill(ctx context.Context) error {
	runID := uuid.NewString()
	log.Printf("[migrate] backfill %s starting (offering type %s)", runID, c.offering)

	if err := c.staging.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := c.backfillListings(ctx); err != nil {
		return err
	}
	rows, err := c.readLegacyRows(ctx)
	if err != nil {
		return err
	}
	newSnaps, dupes, err := c.replayObservations(ctx, c.staging, rows)
	if err != nil {
		return err
	}
	repaired, err := c.staging.RepairCurrentPointers(ctx)
	if err != nil {
		return err
	}
	if err := c.seedRecrawlQueue(ctx); err != nil {
		return err
	}

	log.Printf("[migrate] backfill %s done — snapshots=%d collapsed=%d pointers=%d", runID, newSnaps, dupes, repaired)
	return nil
}

// backfillListings builds one dimension row per legacy listing identity:
// identity fields from the earliest-crawled legacy row (joined with the
// detail satellite for house_type and construction_year), seen-bounds from
// the min/max crawl dates. Existing rows are skipped, which makes a partial
// previous run harmless.
func (c *Coordinator) backfillListings(ctx context.Context) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (listing_id, offering_type, street_address, postal_code, city,
		                property_agent, house_type, construction_year,
		                first_seen_at, last_seen_at)
		SELECT DISTINCT ON (pl.id)
		       pl.id, $1,
		       TRIM(CONCAT_WS(' ', pl.address_street, pl.address_number, pl.address_suffix)),
		       COALESCE(pl.address_postal_code, ''),
		       COALESCE(pl.address_city, ''),
		       COALESCE(pl.agent_name, ''),
		       COALESCE(pd.house_type, ''),
		       COALESCE(pd.construction_year, 0),
		       bounds.first_seen, bounds.last_seen
		FROM %s AS pl
		JOIN (
			SELECT id, MIN(crawl_date::timestamptz) AS first_seen,
			       MAX(crawl_date::timestamptz) AS last_seen
			FROM %s GROUP BY id
		) AS bounds ON bounds.id = pl.id
		LEFT JOIN %s AS pd ON pd.property_id = pl.id
		ORDER BY pl.id, pl.crawl_date::timestamptz ASC
		ON CONFLICT (listing_id, offering_type) DO NOTHING`,
		c.staging.Tables().Listings, legacyListings, legacyListings, legacyDetails)

	tag, err := c.pool.Exec(ctx, sql, c.offering)
	if err != nil {
		return fmt.Errorf("backfill listings: %w: %v", store.ErrStorageUnavailable, err)
	}
	log.Printf("[migrate] listing dimension: %d rows inserted", tag.RowsAffected())
	return nil
}

// legacyRow is one crawl of one listing, volatile fields already merged
// from the listing row and its detail satellite.
type legacyRow struct {
	id        int64
	crawledAt time.Time
	volatile  model.VolatileFields
}

// readLegacyRows loads every legacy crawl row joined with its detail
// satellite, oldest first. Detail fields win over their search-result
// counterparts where both exist; the detail page is the richer source.
func (c *Coordinator) readLegacyRows(ctx context.Context) ([]legacyRow, error) {
	sql := fmt.Sprintf(`
		SELECT pl.id, pl.crawl_date::timestamptz,
		       COALESCE(NULLIF(pd.status, ''), pl.status, ''),
		       COALESCE(NULLIF(pd.price, 0), pl.rent_price, 0),
		       COALESCE(NULLIF(pd.living_area, 0), pl.floor_area, 0),
		       COALESCE(pl.number_of_bedrooms, 0),
		       COALESCE(NULLIF(pd.energy_label, ''), pl.energy_label, ''),
		       COALESCE(pd.deposit, 0), COALESCE(pd.external_area, 0),
		       COALESCE(pd.volume, 0), COALESCE(pd.description, '')
		FROM %s AS pl
		LEFT JOIN %s AS pd ON pd.property_id = pl.id
		ORDER BY pl.id, pl.crawl_date::timestamptz ASC`, legacyListings, legacyDetails)

	rows, err := c.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("read legacy rows: %w: %v", store.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []legacyRow
	for rows.Next() {
		var (
			r    legacyRow
			desc string
		)
		if err := rows.Scan(
			&r.id, &r.crawledAt, &r.volatile.Status, &r.volatile.Price,
			&r.volatile.LivingArea, &r.volatile.BedroomCount, &r.volatile.EnergyLabel,
			&r.volatile.Deposit, &r.volatile.ExternalArea, &r.volatile.Volume, &desc,
		); err != nil {
			return nil, fmt.Errorf("scan legacy row: %w: %v", store.ErrStorageUnavailable, err)
		}
		if desc != "" {
			r.volatile.Details = map[string]any{"description": desc}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read legacy rows: %w: %v", store.ErrStorageUnavailable, err)
	}
	return out, nil
}

// snapshotRecorder is the slice of the store the replay needs.
type snapshotRecorder interface {
	RecordObservation(ctx context.Context, listingID int64, ot model.OfferingType, observedAt time.Time, v model.VolatileFields) (model.SnapshotRef, bool, error)
}

// normalizeLegacyStatus canonicalises the status string exactly as live
// ingestion does before fingerprinting, so the same physical state hashes
// identically on both sides of the cutover. The legacy crawler only
// stripped whitespace, leaving statuses capitalised. Unknown values are
// kept verbatim, as live ingestion keeps them.
func normalizeLegacyStatus(v model.VolatileFields) model.VolatileFields {
	if status, err := model.ParseListingStatus(v.Status); err == nil {
		v.Status = string(status)
	}
	return v
}

// replayObservations records every legacy crawl through the snapshot
// store. Rows whose state repeats an earlier crawl collapse onto one
// snapshot — this is the deduplication step — which also makes a re-run
// over the same rows a no-op.
func (c *Coordinator) replayObservations(ctx context.Context, rec snapshotRecorder, rows []legacyRow) (newSnaps, dupes int, err error) {
	for _, r := range rows {
		_, isNew, err := rec.RecordObservation(ctx, r.id, c.offering, r.crawledAt, normalizeLegacyStatus(r.volatile))
		if err != nil {
			return newSnaps, dupes, err
		}
		if isNew {
			newSnaps++
		} else {
			dupes++
		}
	}
	return newSnaps, dupes, nil
}

// seedRecrawlQueue enrols every listing whose current snapshot is still on
// the market, so the scraper resumes polling right after cutover. The
// LOWER guards against unknown statuses preserved verbatim.
func (c *Coordinator) seedRecrawlQueue(ctx context.Context) error {
	t := c.staging.Tables()
	sql := fmt.Sprintf(`
		INSERT INTO %s (listing_id, offering_type, next_update_at)
		SELECT l.listing_id, l.offering_type, $1
		FROM %s AS l
		JOIN %s AS s ON s.id = l.current_snapshot_id
		WHERE LOWER(s.status) NOT IN ('sold', 'rented', 'withdrawn')
		ON CONFLICT (listing_id, offering_type) DO NOTHING`,
		t.RecrawlQueue, t.Listings, t.Snapshots)

	firstDue := c.policy.NextEligible(time.Now(), c.offering, false)
	if _, err := c.pool.Exec(ctx, sql, firstDue); err != nil {
		return fmt.Errorf("seed recrawl queue: %w: %v", store.ErrStorageUnavailable, err)
	}
	return nil
}

// Report holds the pre-flight counts an operator validates before cutover.
type Report struct {
	LegacyListings  int64 // distinct legacy listing identities
	LegacyRows      int64 // total legacy crawl rows
	StagingListings int64
	StagingSnaps    int64
}

// Verify gathers counts and checks the invariants that must hold after a
// complete backfill.
func (c *Coordinator) Verify(ctx context.Context) (Report, error) {
	var r Report
	t := c.staging.Tables()
	counts := []struct {
		sql  string
		dest *int64
	}{
		{fmt.Sprintf(`SELECT COUNT(DISTINCT id) FROM %s`, legacyListings), &r.LegacyListings},
		{fmt.Sprintf(`SELECT COUNT(*) FROM %s`, legacyListings), &r.LegacyRows},
		{fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.Listings), &r.StagingListings},
		{fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.Snapshots), &r.StagingSnaps},
	}
	for _, q := range counts {
		if err := c.pool.QueryRow(ctx, q.sql).Scan(q.dest); err != nil {
			return r, fmt.Errorf("verify counts: %w: %v", store.ErrStorageUnavailable, err)
		}
	}
	return r, r.Check()
}

// Check validates the backfill invariants: every legacy identity became
// exactly one dimension row, and deduplication only ever shrinks the row
// count — at least one snapshot per listing, at most one per legacy row.
func (r Report) Check() error {
	if r.StagingListings != r.LegacyListings {
		return fmt.Errorf("listing count mismatch: legacy has %d identities, staging has %d rows", r.LegacyListings, r.StagingListings)
	}
	if r.StagingSnaps > r.LegacyRows {
		return fmt.Errorf("snapshot count %d exceeds legacy row count %d", r.StagingSnaps, r.LegacyRows)
	}
	if r.StagingSnaps < r.StagingListings {
		return fmt.Errorf("snapshot count %d below listing count %d: some listings have no history", r.StagingSnaps, r.StagingListings)
	}
	return nil
}

// cutoverStatements builds the DDL promoting staging to production.
// Renaming a table leaves its indexes and constraints under their old
// names, so those are renamed too — otherwise the next EnsureSchema would
// create duplicates under the production names.
func cutoverStatements(staging, final store.Tables) []string {
	return []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, legacyDetails),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, legacyListings),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s, %s, %s`, final.RecrawlQueue, final.Listings, final.Snapshots),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, staging.Listings, final.Listings),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, staging.Snapshots, final.Snapshots),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, staging.RecrawlQueue, final.RecrawlQueue),
		fmt.Sprintf(`ALTER INDEX %s RENAME TO %s`, staging.ObservedIndex(), final.ObservedIndex()),
		fmt.Sprintf(`ALTER INDEX %s RENAME TO %s`, staging.DueIndex(), final.DueIndex()),
		fmt.Sprintf(`ALTER TABLE %s RENAME CONSTRAINT %s TO %s`,
			final.Listings, staging.PointerConstraint(), final.PointerConstraint()),
	}
}

// Cutover re-verifies, then atomically promotes the staging tables: within
// a single transaction the legacy tables are dropped and the staging tables
// renamed to the production names. Destructive and irreversible — a failure
// here is ErrFatalMigrationState and must be recovered manually from the
// backup, never retried blind.
func (c *Coordinator) Cutover(ctx context.Context) error {
	report, err := c.Verify(ctx)
	if err != nil {
		return fmt.Errorf("cutover pre-flight: %w", err)
	}
	log.Printf("[migrate] cutover pre-flight ok — listings=%d snapshots=%d (from %d legacy rows)",
		report.StagingListings, report.StagingSnaps, report.LegacyRows)

	stmts := cutoverStatements(c.staging.Tables(), store.DefaultTables())
	err = pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%q: %v", stmt, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cutover: %w: %v", store.ErrFatalMigrationState, err)
	}

	log.Printf("[migrate] cutover complete — versioned tables are now the tables of record")
	return nil
}
