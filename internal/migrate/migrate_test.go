package migrate

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Blickwinkle262/DutchRentScope/internal/fingerprint"
	"github.com/Blickwinkle262/DutchRentScope/internal/model"
	"github.com/Blickwinkle262/DutchRentScope/internal/store"
)

// The pre-flight invariants gate the destructive cutover; they must accept
// exactly the states a complete backfill can produce.

func TestReportCheck_CleanBackfill(t *testing.T) {
	r := Report{
		LegacyListings:  120,
		LegacyRows:      3400, // many crawls per listing
		StagingListings: 120,
		StagingSnaps:    610, // duplicates collapsed
	}
	if err := r.Check(); err != nil {
		t.Errorf("clean backfill must pass pre-flight, got: %v", err)
	}
}

func TestReportCheck_EveryRowDistinct(t *testing.T) {
	// Degenerate but legal: no crawl ever repeated a state.
	r := Report{
		LegacyListings:  10,
		LegacyRows:      10,
		StagingListings: 10,
		StagingSnaps:    10,
	}
	if err := r.Check(); err != nil {
		t.Errorf("one snapshot per legacy row must pass pre-flight, got: %v", err)
	}
}

func TestReportCheck_MissingListings(t *testing.T) {
	r := Report{
		LegacyListings:  120,
		LegacyRows:      3400,
		StagingListings: 118, // backfill incomplete
		StagingSnaps:    600,
	}
	err := r.Check()
	if err == nil {
		t.Fatal("listing count mismatch must fail pre-flight")
	}
	if !strings.Contains(err.Error(), "listing count mismatch") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReportCheck_SnapshotInflation(t *testing.T) {
	// More snapshots than legacy rows means dedup did not happen — the
	// backfill must never invent history.
	r := Report{
		LegacyListings:  120,
		LegacyRows:      3400,
		StagingListings: 120,
		StagingSnaps:    3500,
	}
	if r.Check() == nil {
		t.Fatal("snapshot inflation must fail pre-flight")
	}
}

func TestReportCheck_ListingsWithoutHistory(t *testing.T) {
	r := Report{
		LegacyListings:  120,
		LegacyRows:      3400,
		StagingListings: 120,
		StagingSnaps:    90, // some listings got no snapshot at all
	}
	if r.Check() == nil {
		t.Fatal("listings without any snapshot must fail pre-flight")
	}
}

// fakeRecorder mirrors the snapshot store's uniqueness contract: one
// snapshot per (listing, offering type, fingerprint), duplicates reported
// as isNew=false.
type fakeRecorder struct {
	refs map[string]model.SnapshotRef
	next int64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{refs: make(map[string]model.SnapshotRef)}
}

func (f *fakeRecorder) RecordObservation(_ context.Context, listingID int64, ot model.OfferingType, _ time.Time, v model.VolatileFields) (model.SnapshotRef, bool, error) {
	fp := fingerprint.Volatile(v)
	key := fmt.Sprintf("%d/%s/%s", listingID, ot, fp)
	if ref, ok := f.refs[key]; ok {
		return ref, false, nil
	}
	f.next++
	ref := model.SnapshotRef{ID: f.next, Fingerprint: fp}
	f.refs[key] = ref
	return ref, true, nil
}

var crawl0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestReplay_LegacyStatusFingerprintsLikeLiveIngestion(t *testing.T) {
	// The legacy crawler stored statuses capitalised ("Available"); live
	// ingestion lower-cases before hashing. The replay must do the same,
	// or the first post-cutover observation of an unchanged listing would
	// mint a spurious snapshot.
	c := &Coordinator{offering: model.OfferingRent}
	rec := newFakeRecorder()

	rows := []legacyRow{
		{id: 42, crawledAt: crawl0, volatile: model.VolatileFields{Status: "Available", Price: 1500}},
	}
	newSnaps, dupes, err := c.replayObservations(context.Background(), rec, rows)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if newSnaps != 1 || dupes != 0 {
		t.Fatalf("replay counts = (%d, %d), want (1, 0)", newSnaps, dupes)
	}

	live := fingerprint.Volatile(model.VolatileFields{Status: "available", Price: 1500})
	for _, ref := range rec.refs {
		if ref.Fingerprint != live {
			t.Errorf("migrated fingerprint %s differs from live-ingested %s for the same physical state", ref.Fingerprint, live)
		}
	}
}

func TestReplay_UnknownStatusKeptVerbatim(t *testing.T) {
	// History must not lie: a status outside the known set is recorded as
	// scraped, exactly as live ingestion records it.
	c := &Coordinator{offering: model.OfferingRent}
	rec := newFakeRecorder()

	rows := []legacyRow{
		{id: 42, crawledAt: crawl0, volatile: model.VolatileFields{Status: "Onder bod", Price: 1500}},
	}
	if _, _, err := c.replayObservations(context.Background(), rec, rows); err != nil {
		t.Fatalf("replay: %v", err)
	}

	verbatim := fingerprint.Volatile(model.VolatileFields{Status: "Onder bod", Price: 1500})
	for _, ref := range rec.refs {
		if ref.Fingerprint != verbatim {
			t.Errorf("unknown status was altered before hashing: got %s, want %s", ref.Fingerprint, verbatim)
		}
	}
}

func TestReplay_SecondRunAddsNothing(t *testing.T) {
	// Running the backfill twice over the same legacy rows must leave the
	// snapshot counts unchanged.
	c := &Coordinator{offering: model.OfferingBuy}
	rec := newFakeRecorder()

	rows := []legacyRow{
		{id: 7, crawledAt: crawl0, volatile: model.VolatileFields{Status: "Available", Price: 350000}},
		{id: 7, crawledAt: crawl0.Add(24 * time.Hour), volatile: model.VolatileFields{Status: "Available", Price: 350000}},
		{id: 7, crawledAt: crawl0.Add(48 * time.Hour), volatile: model.VolatileFields{Status: "Sold", Price: 350000}},
	}

	newSnaps, dupes, err := c.replayObservations(context.Background(), rec, rows)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if newSnaps != 2 || dupes != 1 {
		t.Fatalf("first run counts = (%d, %d), want (2, 1)", newSnaps, dupes)
	}

	newSnaps, dupes, err = c.replayObservations(context.Background(), rec, rows)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if newSnaps != 0 {
		t.Errorf("second run created %d snapshots, want 0", newSnaps)
	}
	if dupes != len(rows) {
		t.Errorf("second run collapsed %d rows, want %d", dupes, len(rows))
	}
	if got := len(rec.refs); got != 2 {
		t.Errorf("snapshot count after double run = %d, want 2", got)
	}
}

func TestCutoverStatements_RenameSchemaObjects(t *testing.T) {
	// Postgres keeps index and constraint names when a table is renamed;
	// the cutover must move them to the production names or the next
	// EnsureSchema creates duplicates.
	stmts := strings.Join(cutoverStatements(store.StagingTables(), store.DefaultTables()), "\n")

	for _, want := range []string{
		"ALTER INDEX listing_snapshots_new_listing_observed_idx RENAME TO listing_snapshots_listing_observed_idx",
		"ALTER INDEX recrawl_queue_new_next_update_idx RENAME TO recrawl_queue_next_update_idx",
		"RENAME CONSTRAINT listings_new_current_snapshot_fkey TO listings_current_snapshot_fkey",
	} {
		if !strings.Contains(stmts, want) {
			t.Errorf("cutover statements missing %q", want)
		}
	}

	// Tables must be renamed before their constraints are.
	if strings.Index(stmts, "RENAME CONSTRAINT") < strings.Index(stmts, "ALTER TABLE listings_new RENAME TO listings") {
		t.Error("constraint rename must come after the table rename")
	}
}
