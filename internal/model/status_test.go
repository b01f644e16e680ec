package model_test

import (
	"testing"

	"github.com/Blickwinkle262/DutchRentScope/internal/model"
)

// ── ParseListingStatus ─────────────────────────────────────────────────────

func TestParseListingStatus_ValidValues(t *testing.T) {
	valid := []string{"available", "under option", "under offer", "sold", "rented", "withdrawn"}
	for _, s := range valid {
		got, err := model.ParseListingStatus(s)
		if err != nil {
			t.Errorf("ParseListingStatus(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseListingStatus(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseListingStatus_InvalidValue(t *testing.T) {
	_, err := model.ParseListingStatus("demolished")
	if err == nil {
		t.Error("ParseListingStatus(\"demolished\") expected error, got nil")
	}
}

func TestParseListingStatus_EmptyString(t *testing.T) {
	_, err := model.ParseListingStatus("")
	if err == nil {
		t.Error("ParseListingStatus(\"\") expected error, got nil")
	}
}

// Scraped status text varies in casing and padding between page layouts;
// the parser must normalise rather than reject.
func TestParseListingStatus_NormalisesCaseAndPadding(t *testing.T) {
	cases := []struct {
		raw  string
		want model.ListingStatus
	}{
		{"Available", model.StatusAvailable},
		{"AVAILABLE", model.StatusAvailable},
		{"  available ", model.StatusAvailable},
		{"Under Option", model.StatusUnderOption},
		{"Sold\t", model.StatusSold},
		{" Rented", model.StatusRented},
	}
	for _, c := range cases {
		got, err := model.ParseListingStatus(c.raw)
		if err != nil {
			t.Errorf("ParseListingStatus(%q) unexpected error: %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseListingStatus(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

// ── IsOffMarket ────────────────────────────────────────────────────────────

func TestIsOffMarket(t *testing.T) {
	offMarket := []model.ListingStatus{
		model.StatusSold,
		model.StatusRented,
		model.StatusWithdrawn,
	}
	for _, s := range offMarket {
		if !model.IsOffMarket(s) {
			t.Errorf("IsOffMarket(%s) should return true", s)
		}
	}

	onMarket := []model.ListingStatus{
		model.StatusAvailable,
		model.StatusUnderOption,
		model.StatusUnderOffer,
	}
	for _, s := range onMarket {
		if model.IsOffMarket(s) {
			t.Errorf("IsOffMarket(%s) should return false", s)
		}
	}
}

// ── ParseOfferingType ──────────────────────────────────────────────────────

func TestParseOfferingType(t *testing.T) {
	for _, s := range []string{"rent", "buy"} {
		got, err := model.ParseOfferingType(s)
		if err != nil {
			t.Errorf("ParseOfferingType(%q) unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseOfferingType(%q) = %q, want %q", s, got, s)
		}
	}

	for _, s := range []string{"", "RENT", "lease", "sale"} {
		if _, err := model.ParseOfferingType(s); err == nil {
			t.Errorf("ParseOfferingType(%q) expected error, got nil", s)
		}
	}
}
