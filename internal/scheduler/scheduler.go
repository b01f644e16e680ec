// Package scheduler wires up the cron job that periodically repairs stale
// current-pointers.
//
// An ingestion batch aborted between recording a snapshot and refreshing
// the pointer leaves the pointer stale until the listing is observed again.
// That transient is legal; the sweep bounds how long it can last.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/Blickwinkle262/DutchRentScope/internal/store"
)

// sweepLockKey guards the sweep across service instances; only the holder
// runs it.
const (
	sweepLockKey = "history-service:pointer-sweep:lock"
	sweepLockTTL = 10 * time.Minute
)

// Scheduler wraps robfig/cron and manages the pointer repair sweep.
type Scheduler struct {
	cron  *cron.Cron
	store *store.Store
	rdb   *redis.Client
	spec  string // cron spec, e.g. "@every 6h"
}

// New creates a Scheduler that sweeps every intervalHours hours.
func New(st *store.Store, rdb *redis.Client, intervalHours int) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithLogger(cron.DefaultLogger)),
		store: st,
		rdb:   rdb,
		spec:  fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the job and starts the scheduler. Also runs one sweep
// immediately so a crash-interrupted deployment self-corrects without
// waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)

	go s.runSweep(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

// runSweep repairs every pointer that disagrees with its listing's latest
// snapshot. The redis lock keeps concurrent instances from sweeping at once;
// the sweep itself is idempotent, so a lost lock is only wasted work.
func (s *Scheduler) runSweep(ctx context.Context) {
	ok, err := s.rdb.SetNX(ctx, sweepLockKey, 1, sweepLockTTL).Result()
	if err != nil {
		log.Printf("[scheduler] sweep lock error: %v — skipping cycle", err)
		return
	}
	if !ok {
		log.Println("[scheduler] sweep already running elsewhere — skipping cycle")
		return
	}
	defer s.rdb.Del(ctx, sweepLockKey)

	repaired, err := s.store.RepairCurrentPointers(ctx)
	if err != nil {
		log.Printf("[scheduler] pointer sweep error: %v", err)
		return
	}
	if repaired > 0 {
		log.Printf("[scheduler] pointer sweep repaired %d listing(s)", repaired)
	} else {
		log.Println("[scheduler] pointer sweep clean — nothing to repair")
	}
}
