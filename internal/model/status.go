package model

import (
	"fmt"
	"strings"
)

// ListingStatus mirrors the status strings scraped from listing pages,
// normalised to lower case.
//
// On-market statuses keep a listing in the recrawl queue; off-market
// statuses remove it:
//
//	available ──► under option ──► under offer ──► sold | rented
//	     │
//	     └──► withdrawn
//
// sold, rented and withdrawn are off-market: the listing is no longer
// polled once one of them is observed.
type ListingStatus string

const (
	StatusAvailable   ListingStatus = "available"
	StatusUnderOption ListingStatus = "under option"
	StatusUnderOffer  ListingStatus = "under offer"
	StatusSold        ListingStatus = "sold"
	StatusRented      ListingStatus = "rented"
	StatusWithdrawn   ListingStatus = "withdrawn"
)

// ParseListingStatus normalises a scraped status string (case and padding
// vary between page layouts) and returns an error for unknown values.
func ParseListingStatus(s string) (ListingStatus, error) {
	st := ListingStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusAvailable, StatusUnderOption, StatusUnderOffer,
		StatusSold, StatusRented, StatusWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown listing status %q", s)
}

// IsOffMarket returns true when the status means the listing has left the
// market and must no longer be recrawled.
func IsOffMarket(s ListingStatus) bool {
	switch s {
	case StatusSold, StatusRented, StatusWithdrawn:
		return true
	}
	return false
}
