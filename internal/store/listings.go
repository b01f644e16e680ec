// Package store persists the listing dimension and its snapshot history.
//
// The data model is a slowly-changing dimension (one row per physical
// listing per offering type) plus an append-only fact table of fingerprinted
// snapshots. Every write is idempotent so concurrent ingestion workers and
// retried batches converge to the same state.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Blickwinkle262/DutchRentScope/internal/model"
)

// Store runs all listing/snapshot persistence against one table set.
type Store struct {
	pool   *pgxpool.Pool
	tables Tables
}

// New returns a Store bound to the production tables.
func New(pool *pgxpool.Pool) *Store {
	return NewWithTables(pool, DefaultTables())
}

// NewWithTables returns a Store bound to an explicit table set. Used by the
// migration coordinator to write into staging tables with the same logic.
func NewWithTables(pool *pgxpool.Pool, tables Tables) *Store {
	return &Store{pool: pool, tables: tables}
}

// Tables returns the table set this Store is bound to.
func (s *Store) Tables() Tables { return s.tables }

const listingColumns = `listing_id, offering_type, street_address, postal_code, city,
	property_agent, house_type, construction_year, latitude, longitude,
	first_seen_at, last_seen_at, current_snapshot_id`

// UpsertListing creates the dimension row on first observation, or extends
// its seen-bounds and refreshes identity fields on later ones.
//
// Identity fields follow last-write-wins by observation timestamp, not by
// arrival order: an old observation replayed after a newer one never
// regresses the stored identity. first_seen_at/last_seen_at take LEAST/
// GREATEST, so any permutation of the same observations converges to the
// same row. Returns the surrogate key.
func (s *Store) UpsertListing(ctx context.Context, listingID int64, ot model.OfferingType, ident model.IdentityFields, observedAt time.Time) (int64, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s AS l (listing_id, offering_type, street_address, postal_code, city,
		                     property_agent, house_type, construction_year, latitude, longitude,
		                     first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (listing_id, offering_type) DO UPDATE SET
			street_address    = CASE WHEN EXCLUDED.last_seen_at >= l.last_seen_at THEN EXCLUDED.street_address    ELSE l.street_address    END,
			postal_code       = CASE WHEN EXCLUDED.last_seen_at >= l.last_seen_at THEN EXCLUDED.postal_code       ELSE l.postal_code       END,
			city              = CASE WHEN EXCLUDED.last_seen_at >= l.last_seen_at THEN EXCLUDED.city              ELSE l.city              END,
			property_agent    = CASE WHEN EXCLUDED.last_seen_at >= l.last_seen_at THEN EXCLUDED.property_agent    ELSE l.property_agent    END,
			house_type        = CASE WHEN EXCLUDED.last_seen_at >= l.last_seen_at THEN EXCLUDED.house_type        ELSE l.house_type        END,
			construction_year = CASE WHEN EXCLUDED.last_seen_at >= l.last_seen_at THEN EXCLUDED.construction_year ELSE l.construction_year END,
			latitude          = CASE WHEN EXCLUDED.last_seen_at >= l.last_seen_at THEN EXCLUDED.latitude          ELSE l.latitude          END,
			longitude         = CASE WHEN EXCLUDED.last_seen_at >= l.last_seen_at THEN EXCLUDED.longitude         ELSE l.longitude         END,
			first_seen_at     = LEAST(l.first_seen_at, EXCLUDED.first_seen_at),
			last_seen_at      = GREATEST(l.last_seen_at, EXCLUDED.last_seen_at)
		RETURNING id`, s.tables.Listings)

	var ref int64
	err := s.pool.QueryRow(ctx, sql,
		listingID, ot,
		ident.StreetAddress, ident.PostalCode, ident.City,
		ident.PropertyAgent, ident.HouseType, ident.ConstructionYear,
		ident.Latitude, ident.Longitude,
		observedAt,
	).Scan(&ref)
	if err != nil {
		return 0, classify("upsert listing", err)
	}
	return ref, nil
}

// RefreshCurrentPointer recomputes the current snapshot (max observed_at,
// ties broken by highest id) from a fresh read and writes it to the
// dimension row. Idempotent and commutative: concurrent refreshes converge
// to the same pointer. Calling it for an unknown listing is an ordering bug.
func (s *Store) RefreshCurrentPointer(ctx context.Context, listingID int64, ot model.OfferingType) error {
	sql := fmt.Sprintf(`
		UPDATE %s AS l
		SET current_snapshot_id = (
			SELECT s.id FROM %s AS s
			WHERE s.listing_ref = l.id
			ORDER BY s.observed_at DESC, s.id DESC
			LIMIT 1)
		WHERE l.listing_id = $1 AND l.offering_type = $2`,
		s.tables.Listings, s.tables.Snapshots)

	tag, err := s.pool.Exec(ctx, sql, listingID, ot)
	if err != nil {
		return classify("refresh current pointer", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refresh current pointer: %w: listing %d/%s does not exist", ErrConstraintViolation, listingID, ot)
	}
	return nil
}

// RepairCurrentPointers recomputes the pointer for every listing whose
// stored pointer disagrees with its latest snapshot. An ingestion batch
// aborted between recording and refreshing leaves a stale pointer; this
// sweep is the self-correction. Returns the number of repaired rows.
func (s *Store) RepairCurrentPointers(ctx context.Context) (int64, error) {
	sql := fmt.Sprintf(`
		UPDATE %s AS l
		SET current_snapshot_id = (
			SELECT s.id FROM %s AS s
			WHERE s.listing_ref = l.id
			ORDER BY s.observed_at DESC, s.id DESC
			LIMIT 1)
		WHERE l.current_snapshot_id IS DISTINCT FROM (
			SELECT s.id FROM %s AS s
			WHERE s.listing_ref = l.id
			ORDER BY s.observed_at DESC, s.id DESC
			LIMIT 1)`,
		s.tables.Listings, s.tables.Snapshots, s.tables.Snapshots)

	tag, err := s.pool.Exec(ctx, sql)
	if err != nil {
		return 0, classify("repair current pointers", err)
	}
	return tag.RowsAffected(), nil
}

// GetListing returns the dimension row plus its resolved current snapshot.
// The snapshot is nil while the pointer is unset.
func (s *Store) GetListing(ctx context.Context, listingID int64, ot model.OfferingType) (*model.Listing, *model.Snapshot, error) {
	sql := fmt.Sprintf(`SELECT id, %s FROM %s WHERE listing_id = $1 AND offering_type = $2`,
		listingColumns, s.tables.Listings)

	var l model.Listing
	err := s.pool.QueryRow(ctx, sql, listingID, ot).Scan(
		&l.Ref, &l.ListingID, &l.OfferingType,
		&l.Identity.StreetAddress, &l.Identity.PostalCode, &l.Identity.City,
		&l.Identity.PropertyAgent, &l.Identity.HouseType, &l.Identity.ConstructionYear,
		&l.Identity.Latitude, &l.Identity.Longitude,
		&l.FirstSeenAt, &l.LastSeenAt, &l.CurrentSnapshotID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("get listing %d/%s: %w", listingID, ot, ErrNotFound)
	}
	if err != nil {
		return nil, nil, classify("get listing", err)
	}

	if l.CurrentSnapshotID == nil {
		return &l, nil, nil
	}
	snap, err := s.snapshotByID(ctx, *l.CurrentSnapshotID)
	if err != nil {
		return nil, nil, err
	}
	return &l, snap, nil
}

// History returns every snapshot of a listing, oldest first.
func (s *Store) History(ctx context.Context, listingID int64, ot model.OfferingType) ([]model.Snapshot, error) {
	sql := fmt.Sprintf(`
		SELECT s.id, s.listing_ref, s.observed_at, s.fingerprint, %s
		FROM %s AS s
		JOIN %s AS l ON l.id = s.listing_ref
		WHERE l.listing_id = $1 AND l.offering_type = $2
		ORDER BY s.observed_at ASC, s.id ASC`,
		snapshotVolatileColumns, s.tables.Snapshots, s.tables.Listings)

	rows, err := s.pool.Query(ctx, sql, listingID, ot)
	if err != nil {
		return nil, classify("history", err)
	}
	defer rows.Close()

	snaps := make([]model.Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, classify("history scan", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("history rows", err)
	}
	return snaps, nil
}
