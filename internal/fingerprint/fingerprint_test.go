package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Blickwinkle262/DutchRentScope/internal/fingerprint"
	"github.com/Blickwinkle262/DutchRentScope/internal/model"
)

func baseVolatile() model.VolatileFields {
	return model.VolatileFields{
		Status:       "available",
		Price:        1500,
		Deposit:      3000,
		LivingArea:   62.5,
		ExternalArea: 8,
		Volume:       190,
		BedroomCount: 2,
		EnergyLabel:  "B",
		Details: map[string]any{
			"description": "Bright two-bedroom apartment near the station",
			"heating":     []any{"district heating"},
		},
	}
}

func TestVolatile_Deterministic(t *testing.T) {
	a := fingerprint.Volatile(baseVolatile())
	b := fingerprint.Volatile(baseVolatile())
	assert.Equal(t, a, b, "identical content must produce identical digests")
	assert.Len(t, a, 64, "digest must be hex-encoded SHA-256")
}

func TestVolatile_IgnoresCosmeticVariation(t *testing.T) {
	base := fingerprint.Volatile(baseVolatile())

	padded := baseVolatile()
	padded.Status = "  available "
	padded.EnergyLabel = "B "
	assert.Equal(t, base, fingerprint.Volatile(padded),
		"string padding must not change the digest")

	// Map insertion order is irrelevant: rebuild details in reverse order.
	reordered := baseVolatile()
	reordered.Details = map[string]any{
		"heating":     []any{"district heating"},
		"description": "Bright two-bedroom apartment near the station",
	}
	assert.Equal(t, base, fingerprint.Volatile(reordered))
}

func TestVolatile_NumericCanonicalisation(t *testing.T) {
	a := baseVolatile()
	a.Price = 1500
	b := baseVolatile()
	b.Price = 1500.0
	assert.Equal(t, fingerprint.Volatile(a), fingerprint.Volatile(b),
		"1500 and 1500.0 are the same price")
}

func TestVolatile_NilAndEmptyDetailsAgree(t *testing.T) {
	a := baseVolatile()
	a.Details = nil
	b := baseVolatile()
	b.Details = map[string]any{}
	assert.Equal(t, fingerprint.Volatile(a), fingerprint.Volatile(b))
}

func TestVolatile_ChangesDigestPerField(t *testing.T) {
	base := fingerprint.Volatile(baseVolatile())

	cases := map[string]func(*model.VolatileFields){
		"status":        func(v *model.VolatileFields) { v.Status = "under offer" },
		"price":         func(v *model.VolatileFields) { v.Price = 1450 },
		"deposit":       func(v *model.VolatileFields) { v.Deposit = 2000 },
		"living area":   func(v *model.VolatileFields) { v.LivingArea = 63 },
		"external area": func(v *model.VolatileFields) { v.ExternalArea = 0 },
		"volume":        func(v *model.VolatileFields) { v.Volume = 200 },
		"bedrooms":      func(v *model.VolatileFields) { v.BedroomCount = 3 },
		"energy label":  func(v *model.VolatileFields) { v.EnergyLabel = "A" },
		"details":       func(v *model.VolatileFields) { v.Details["description"] = "Price reduced!" },
	}
	for name, mutate := range cases {
		v := baseVolatile()
		mutate(&v)
		assert.NotEqual(t, base, fingerprint.Volatile(v), "changing %s must change the digest", name)
	}
}

// A price move must not collide with a bedroom-count move that happens to
// shift the same digits around (field boundaries are explicit).
func TestVolatile_FieldBoundaries(t *testing.T) {
	a := model.VolatileFields{Status: "available", Price: 12, BedroomCount: 3}
	b := model.VolatileFields{Status: "available", Price: 1, BedroomCount: 23}
	assert.NotEqual(t, fingerprint.Volatile(a), fingerprint.Volatile(b))
}
