package recrawl

import (
	"time"

	"github.com/Blickwinkle262/DutchRentScope/internal/model"
)

// Policy computes when a listing becomes eligible for re-observation.
//
// The rule: a fixed base interval per offering type (the rental market
// moves faster than the buying market), halved when the latest observation
// carried a real change (volatile listings are re-checked sooner) and
// doubled when it did not, clamped to [Floor, Ceiling].
type Policy struct {
	RentBase time.Duration
	BuyBase  time.Duration
	Floor    time.Duration
	Ceiling  time.Duration
}

// DefaultPolicy returns the intervals used in production.
func DefaultPolicy() Policy {
	return Policy{
		RentBase: 12 * time.Hour,
		BuyBase:  24 * time.Hour,
		Floor:    6 * time.Hour,
		Ceiling:  7 * 24 * time.Hour,
	}
}

// NextEligible returns the next re-fetch time for a listing observed at
// now. changed reports whether the observation produced a new snapshot.
func (p Policy) NextEligible(now time.Time, ot model.OfferingType, changed bool) time.Time {
	base := p.RentBase
	if ot == model.OfferingBuy {
		base = p.BuyBase
	}

	interval := base
	if changed {
		interval = base / 2
	} else {
		interval = base * 2
	}
	if interval < p.Floor {
		interval = p.Floor
	}
	if interval > p.Ceiling {
		interval = p.Ceiling
	}
	return now.Add(interval)
}
