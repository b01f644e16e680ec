// Package ingest ties the fingerprinter, the listing store and the recrawl
// queue into the per-observation pipeline:
//
//	UpsertListing → RecordObservation → (if new) RefreshCurrentPointer
//	              → MarkActive / MarkInactive
//
// Each step is idempotent, so a batch can be aborted and replayed at any
// point without corrupting state.
package ingest

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Blickwinkle262/DutchRentScope/internal/fingerprint"
	"github.com/Blickwinkle262/DutchRentScope/internal/model"
	"github.com/Blickwinkle262/DutchRentScope/internal/recrawl"
)

// ListingStore is the dimension side of the store: one row per
// (listingID, offeringType) plus its current-snapshot pointer.
type ListingStore interface {
	UpsertListing(ctx context.Context, listingID int64, ot model.OfferingType, ident model.IdentityFields, observedAt time.Time) (int64, error)
	RefreshCurrentPointer(ctx context.Context, listingID int64, ot model.OfferingType) error
}

// SnapshotStore is the append-only fact side of the store.
type SnapshotStore interface {
	RecordObservation(ctx context.Context, listingID int64, ot model.OfferingType, observedAt time.Time, v model.VolatileFields) (model.SnapshotRef, bool, error)
}

// RecrawlQueue schedules (or retires) the listing for re-observation.
type RecrawlQueue interface {
	MarkActive(ctx context.Context, listingID int64, ot model.OfferingType, nextEligibleAt time.Time) error
	MarkInactive(ctx context.Context, listingID int64, ot model.OfferingType) error
}

// FingerprintCache is the optional fast path over the snapshot store's
// uniqueness contract. Implemented by *Cache on redis.
type FingerprintCache interface {
	Seen(ctx context.Context, listingID int64, ot model.OfferingType, fp string) bool
	Remember(ctx context.Context, listingID int64, ot model.OfferingType, fp string)
}

// Pipeline ingests raw observations. A nil cache disables the fast path;
// everything else is required.
type Pipeline struct {
	listings  ListingStore
	snapshots SnapshotStore
	queue     RecrawlQueue
	cache     FingerprintCache
	policy    recrawl.Policy
	now       func() time.Time
}

// NewPipeline wires a Pipeline. cache may be nil.
func NewPipeline(listings ListingStore, snapshots SnapshotStore, queue RecrawlQueue, cache FingerprintCache, policy recrawl.Policy) *Pipeline {
	return &Pipeline{
		listings:  listings,
		snapshots: snapshots,
		queue:     queue,
		cache:     cache,
		policy:    policy,
		now:       time.Now,
	}
}

// Result reports what one observation did to the store.
type Result struct {
	ListingRef   int64             `json:"-"`
	Snapshot     model.SnapshotRef `json:"snapshot"`
	NewSnapshot  bool              `json:"newSnapshot"`
	OffMarket    bool              `json:"offMarket"`
	CacheSkipped bool              `json:"-"` // snapshot write skipped via fingerprint cache
}

// Ingest runs the pipeline for a single observation.
func (p *Pipeline) Ingest(ctx context.Context, obs model.Observation) (Result, error) {
	if _, err := model.ParseOfferingType(string(obs.OfferingType)); err != nil {
		return Result{}, fmt.Errorf("ingest: %w", err)
	}

	// Scraped status strings vary in case and padding between page layouts;
	// normalise before fingerprinting so cosmetic variants collapse.
	offMarket := false
	if status, err := model.ParseListingStatus(obs.Volatile.Status); err == nil {
		obs.Volatile.Status = string(status)
		offMarket = model.IsOffMarket(status)
	} else {
		// Unknown status: keep the raw text and keep polling the listing.
		slog.Warn("unparsed listing status", "listingId", obs.ListingID, "status", obs.Volatile.Status)
	}

	ref, err := p.listings.UpsertListing(ctx, obs.ListingID, obs.OfferingType, obs.Identity, obs.ObservedAt)
	if err != nil {
		return Result{}, err
	}
	res := Result{ListingRef: ref, OffMarket: offMarket}

	fp := fingerprint.Volatile(obs.Volatile)
	if p.cache != nil && p.cache.Seen(ctx, obs.ListingID, obs.OfferingType, fp) {
		// Same content recorded moments ago; the snapshot row already
		// exists, so only the seen-bounds and the queue need touching.
		res.Snapshot = model.SnapshotRef{Fingerprint: fp}
		res.CacheSkipped = true
	} else {
		snap, isNew, err := p.snapshots.RecordObservation(ctx, obs.ListingID, obs.OfferingType, obs.ObservedAt, obs.Volatile)
		if err != nil {
			return Result{}, err
		}
		res.Snapshot = snap
		res.NewSnapshot = isNew

		if isNew {
			if err := p.listings.RefreshCurrentPointer(ctx, obs.ListingID, obs.OfferingType); err != nil {
				return Result{}, err
			}
		}
		if p.cache != nil {
			p.cache.Remember(ctx, obs.ListingID, obs.OfferingType, fp)
		}
	}

	if offMarket {
		err = p.queue.MarkInactive(ctx, obs.ListingID, obs.OfferingType)
	} else {
		err = p.queue.MarkActive(ctx, obs.ListingID, obs.OfferingType,
			p.policy.NextEligible(p.now(), obs.OfferingType, res.NewSnapshot))
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// BatchResult summarises one ingestion batch.
type BatchResult struct {
	BatchID    string `json:"batchId"`
	Ingested   int    `json:"ingested"`
	NewSnaps   int    `json:"newSnapshots"`
	Duplicates int    `json:"duplicates"`
	OffMarket  int    `json:"offMarket"`
	Failed     int    `json:"failed"`
}

// IngestBatch runs the pipeline over a batch of observations. Observations
// are independent: a failing one is logged and counted, the rest proceed.
// Only context cancellation aborts the batch early — the already-ingested
// prefix stays valid because every step is idempotent.
func (p *Pipeline) IngestBatch(ctx context.Context, observations []model.Observation) (BatchResult, error) {
	res := BatchResult{BatchID: uuid.NewString()}

	for _, obs := range observations {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("batch %s aborted after %d observations: %w", res.BatchID, res.Ingested, err)
		}

		r, err := p.Ingest(ctx, obs)
		if err != nil {
			res.Failed++
			log.Printf("[ingest] batch %s: listing %d/%s: %v — continuing", res.BatchID, obs.ListingID, obs.OfferingType, err)
			continue
		}
		res.Ingested++
		switch {
		case r.NewSnapshot:
			res.NewSnaps++
		default:
			res.Duplicates++
		}
		if r.OffMarket {
			res.OffMarket++
		}
	}

	log.Printf("[ingest] batch %s done — ingested=%d new=%d duplicates=%d offMarket=%d failed=%d",
		res.BatchID, res.Ingested, res.NewSnaps, res.Duplicates, res.OffMarket, res.Failed)
	return res, nil
}
