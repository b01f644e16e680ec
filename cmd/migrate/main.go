// migrate — operator CLI for the legacy-to-versioned migration.
//
// Two-phase procedure:
//
//	migrate -phase backfill -offering rent   safe to repeat until clean
//	migrate -phase verify   -offering rent   counts + invariant check only
//	migrate -phase cutover  -offering rent -confirm drop-legacy-tables
//
// The cutover drops the legacy property_listings/property_details tables
// and promotes the staging tables in one transaction. It is destructive,
// single-shot, and requires a prior backup; the -confirm flag must spell
// out the destructive act.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/Blickwinkle262/DutchRentScope/internal/config"
	"github.com/Blickwinkle262/DutchRentScope/internal/db"
	"github.com/Blickwinkle262/DutchRentScope/internal/migrate"
	"github.com/Blickwinkle262/DutchRentScope/internal/model"
)

const confirmPhrase = "drop-legacy-tables"

func main() {
	phase := flag.String("phase", "", "migration phase: backfill | verify | cutover")
	offering := flag.String("offering", "", "offering type the legacy deployment crawled: rent | buy")
	confirm := flag.String("confirm", "", "required for cutover: must be \""+confirmPhrase+"\"")
	flag.Parse()

	ot, err := model.ParseOfferingType(*offering)
	if err != nil {
		log.Fatalf("[migrate] -offering: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[migrate] Config error: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[migrate] PostgreSQL: %v", err)
	}
	defer pool.Close()

	coord := migrate.NewCoordinator(pool, ot)

	switch *phase {
	case "backfill":
		if err := coord.Backfill(ctx); err != nil {
			log.Fatalf("[migrate] backfill failed (safe to re-run): %v", err)
		}

	case "verify":
		report, err := coord.Verify(ctx)
		if err != nil {
			log.Fatalf("[migrate] verification failed: %v", err)
		}
		log.Printf("[migrate] verification ok — legacy identities=%d legacy rows=%d listings=%d snapshots=%d",
			report.LegacyListings, report.LegacyRows, report.StagingListings, report.StagingSnaps)

	case "cutover":
		if *confirm != confirmPhrase {
			log.Fatalf("[migrate] cutover drops the legacy tables and cannot be undone; "+
				"take a backup, then pass -confirm %s", confirmPhrase)
		}
		if err := coord.Cutover(ctx); err != nil {
			log.Fatalf("[migrate] CUTOVER FAILED — do not retry, recover from backup: %v", err)
		}

	default:
		log.Fatalf("[migrate] -phase must be backfill, verify or cutover")
	}
}
