// Package model defines shared data structures for the history service.
package model

import (
	"fmt"
	"time"
)

// OfferingType separates the rent and buy listing namespaces. The same
// source property id may exist in both; they are distinct listings.
type OfferingType string

const (
	OfferingRent OfferingType = "rent"
	OfferingBuy  OfferingType = "buy"
)

// ParseOfferingType converts a raw string to an OfferingType, returning an
// error for unknown values.
func ParseOfferingType(s string) (OfferingType, error) {
	ot := OfferingType(s)
	switch ot {
	case OfferingRent, OfferingBuy:
		return ot, nil
	}
	return "", fmt.Errorf("unknown offering type %q", s)
}

// IdentityFields are the slow-changing attributes of a listing. They are
// overwritten in place (last write by observation timestamp wins); only
// volatile fields are versioned.
type IdentityFields struct {
	StreetAddress    string  `json:"streetAddress"`
	PostalCode       string  `json:"postalCode"`
	City             string  `json:"city"`
	PropertyAgent    string  `json:"propertyAgent"`
	HouseType        string  `json:"houseType"`
	ConstructionYear int     `json:"constructionYear"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}

// VolatileFields are the attributes that change over a listing's lifetime.
// They are fingerprinted and versioned as snapshots.
type VolatileFields struct {
	Status       string         `json:"status"`
	Price        float64        `json:"price"`
	Deposit      float64        `json:"deposit"`
	LivingArea   float64        `json:"livingArea"`
	ExternalArea float64        `json:"externalArea"`
	Volume       float64        `json:"volume"`
	BedroomCount int            `json:"bedroomCount"`
	EnergyLabel  string         `json:"energyLabel"`
	Details      map[string]any `json:"details,omitempty"` // free-form detail payload (description, insulation, heating, …)
}

// Observation is one raw scrape result handed to the core by the scraper
// collaborator. The core never sees HTML.
type Observation struct {
	ListingID    int64          `json:"listingId"` // source property id
	OfferingType OfferingType   `json:"offeringType"`
	ObservedAt   time.Time      `json:"observedAt"`
	Identity     IdentityFields `json:"identity"`
	Volatile     VolatileFields `json:"volatile"`
}

// Listing is the dimension row: one per physical listing per offering type.
type Listing struct {
	Ref               int64          `json:"-"` // surrogate key
	ListingID         int64          `json:"listingId"`
	OfferingType      OfferingType   `json:"offeringType"`
	Identity          IdentityFields `json:"identity"`
	FirstSeenAt       time.Time      `json:"firstSeenAt"`
	LastSeenAt        time.Time      `json:"lastSeenAt"`
	CurrentSnapshotID *int64         `json:"currentSnapshotId"` // nil before the first snapshot exists
}

// Snapshot is one distinct observed state of a listing's volatile fields.
// Snapshots are immutable once written.
type Snapshot struct {
	ID          int64          `json:"id"`
	ListingRef  int64          `json:"-"`
	ObservedAt  time.Time      `json:"observedAt"`
	Fingerprint string         `json:"fingerprint"`
	Volatile    VolatileFields `json:"volatile"`
}

// SnapshotRef identifies a stored snapshot without carrying its payload.
type SnapshotRef struct {
	ID          int64  `json:"id"`
	Fingerprint string `json:"fingerprint"`
}

// ListingKey identifies a listing across tables and the recrawl queue.
type ListingKey struct {
	ListingID    int64        `json:"listingId"`
	OfferingType OfferingType `json:"offeringType"`
}

// RecrawlEntry marks a listing as active and due for re-observation at or
// after NextUpdateAt. At most one entry exists per listing.
type RecrawlEntry struct {
	ListingID    int64        `json:"listingId"`
	OfferingType OfferingType `json:"offeringType"`
	NextUpdateAt time.Time    `json:"nextUpdateAt"`
}
