// Package recrawl maintains the work queue that tells the scraper which
// listings to observe next. Presence of a queue entry is the single source
// of truth for "this listing is still actively polled".
package recrawl

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Blickwinkle262/DutchRentScope/internal/model"
	"github.com/Blickwinkle262/DutchRentScope/internal/store"
)

// Queue is the postgres-backed recrawl queue. A listing has at most one
// entry; MarkActive and MarkInactive are both idempotent.
type Queue struct {
	pool  *pgxpool.Pool
	table string
}

// NewQueue returns a Queue on the production table.
func NewQueue(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool, table: store.DefaultTables().RecrawlQueue}
}

// MarkActive inserts or moves the listing's next eligible re-fetch time.
// The time is computed by the caller's policy, not here.
func (q *Queue) MarkActive(ctx context.Context, listingID int64, ot model.OfferingType, nextEligibleAt time.Time) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (listing_id, offering_type, next_update_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (listing_id, offering_type)
		DO UPDATE SET next_update_at = EXCLUDED.next_update_at`, q.table)

	if _, err := q.pool.Exec(ctx, sql, listingID, ot, nextEligibleAt); err != nil {
		return storeErr("mark active", err)
	}
	return nil
}

// MarkInactive removes the listing from the queue. A listing observed as
// sold, rented or withdrawn is no longer polled. No-op when already absent.
func (q *Queue) MarkInactive(ctx context.Context, listingID int64, ot model.OfferingType) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE listing_id = $1 AND offering_type = $2`, q.table)

	if _, err := q.pool.Exec(ctx, sql, listingID, ot); err != nil {
		return storeErr("mark inactive", err)
	}
	return nil
}

// Due returns up to limit listings whose next_update_at is at or before
// asOf, oldest-due first. Each call runs a fresh query, so a consumer that
// stops partway simply calls again. This is the sole interface the scraper
// consults to pick work.
func (q *Queue) Due(ctx context.Context, asOf time.Time, limit int) ([]model.ListingKey, error) {
	sql := fmt.Sprintf(`
		SELECT listing_id, offering_type FROM %s
		WHERE next_update_at <= $1
		ORDER BY next_update_at ASC
		LIMIT $2`, q.table)

	rows, err := q.pool.Query(ctx, sql, asOf, limit)
	if err != nil {
		return nil, storeErr("due", err)
	}
	defer rows.Close()

	keys := make([]model.ListingKey, 0, limit)
	for rows.Next() {
		var k model.ListingKey
		if err := rows.Scan(&k.ListingID, &k.OfferingType); err != nil {
			return nil, storeErr("due scan", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("due rows", err)
	}
	return keys, nil
}

// The queue only ever fails with storage errors; there are no referential
// invariants to violate here.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, store.ErrStorageUnavailable, err)
}
