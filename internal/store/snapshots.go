package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Blickwinkle262/DutchRentScope/internal/fingerprint"
	"github.com/Blickwinkle262/DutchRentScope/internal/model"
)

const snapshotVolatileColumns = `s.status, s.price, s.deposit, s.living_area,
	s.external_area, s.volume, s.bedroom_count, s.energy_label, s.details`

// RecordObservation appends one snapshot for a listing, keyed by the
// fingerprint of its volatile fields.
//
// The insert is conflict-tolerant: if a snapshot with the same fingerprint
// already exists for the listing the call is a no-op and returns the
// existing reference with isNew=false. Re-running ingestion over
// already-seen data is therefore always safe. The listing row must exist
// first (UpsertListing); otherwise ErrConstraintViolation.
func (s *Store) RecordObservation(ctx context.Context, listingID int64, ot model.OfferingType, observedAt time.Time, v model.VolatileFields) (model.SnapshotRef, bool, error) {
	fp := fingerprint.Volatile(v)

	ref, err := s.listingRef(ctx, listingID, ot)
	if err != nil {
		return model.SnapshotRef{}, false, err
	}

	var details []byte
	if len(v.Details) > 0 {
		if details, err = json.Marshal(v.Details); err != nil {
			return model.SnapshotRef{}, false, fmt.Errorf("record observation: %w: encode details: %v", ErrConstraintViolation, err)
		}
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (listing_ref, observed_at, fingerprint, status, price, deposit,
		                living_area, external_area, volume, bedroom_count, energy_label, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (listing_ref, fingerprint) DO NOTHING
		RETURNING id`, s.tables.Snapshots)

	var id int64
	err = s.pool.QueryRow(ctx, insert,
		ref, observedAt, fp,
		v.Status, v.Price, v.Deposit,
		v.LivingArea, v.ExternalArea, v.Volume,
		v.BedroomCount, v.EnergyLabel, details,
	).Scan(&id)
	if err == nil {
		return model.SnapshotRef{ID: id, Fingerprint: fp}, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.SnapshotRef{}, false, classify("record observation", err)
	}

	// Conflict path: this exact state was observed before (possibly by a
	// concurrent worker a moment ago). Return the winning row.
	lookup := fmt.Sprintf(`SELECT id FROM %s WHERE listing_ref = $1 AND fingerprint = $2`, s.tables.Snapshots)
	if err := s.pool.QueryRow(ctx, lookup, ref, fp).Scan(&id); err != nil {
		return model.SnapshotRef{}, false, classify("record observation lookup", err)
	}
	return model.SnapshotRef{ID: id, Fingerprint: fp}, false, nil
}

// LatestSnapshot returns the snapshot with the maximum observed_at for a
// listing, ties broken by highest id (most recently inserted). Returns
// (nil, nil) when the listing has no snapshots yet.
func (s *Store) LatestSnapshot(ctx context.Context, listingID int64, ot model.OfferingType) (*model.Snapshot, error) {
	sql := fmt.Sprintf(`
		SELECT s.id, s.listing_ref, s.observed_at, s.fingerprint, %s
		FROM %s AS s
		JOIN %s AS l ON l.id = s.listing_ref
		WHERE l.listing_id = $1 AND l.offering_type = $2
		ORDER BY s.observed_at DESC, s.id DESC
		LIMIT 1`, snapshotVolatileColumns, s.tables.Snapshots, s.tables.Listings)

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, sql, listingID, ot))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("latest snapshot", err)
	}
	return &snap, nil
}

func (s *Store) snapshotByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	sql := fmt.Sprintf(`
		SELECT s.id, s.listing_ref, s.observed_at, s.fingerprint, %s
		FROM %s AS s WHERE s.id = $1`, snapshotVolatileColumns, s.tables.Snapshots)

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // pointer cleared concurrently; weak reference
	}
	if err != nil {
		return nil, classify("snapshot by id", err)
	}
	return &snap, nil
}

// listingRef resolves the surrogate key for (listingID, offeringType).
func (s *Store) listingRef(ctx context.Context, listingID int64, ot model.OfferingType) (int64, error) {
	sql := fmt.Sprintf(`SELECT id FROM %s WHERE listing_id = $1 AND offering_type = $2`, s.tables.Listings)

	var ref int64
	err := s.pool.QueryRow(ctx, sql, listingID, ot).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("record observation: %w: listing %d/%s must be upserted first", ErrConstraintViolation, listingID, ot)
	}
	if err != nil {
		return 0, classify("resolve listing", err)
	}
	return ref, nil
}

// scanSnapshot reads one snapshot row in the column order of
// snapshotVolatileColumns (prefixed by id, listing_ref, observed_at,
// fingerprint).
func scanSnapshot(row pgx.Row) (model.Snapshot, error) {
	var (
		snap    model.Snapshot
		details []byte
	)
	err := row.Scan(
		&snap.ID, &snap.ListingRef, &snap.ObservedAt, &snap.Fingerprint,
		&snap.Volatile.Status, &snap.Volatile.Price, &snap.Volatile.Deposit,
		&snap.Volatile.LivingArea, &snap.Volatile.ExternalArea, &snap.Volatile.Volume,
		&snap.Volatile.BedroomCount, &snap.Volatile.EnergyLabel, &details,
	)
	if err != nil {
		return model.Snapshot{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &snap.Volatile.Details); err != nil {
			return model.Snapshot{}, fmt.Errorf("decode details: %w", err)
		}
	}
	return snap, nil
}
