// Package fingerprint computes a stable digest over the volatile fields of
// an observation. Two observations with the same volatile content produce
// the same digest regardless of numeric formatting or detail-key order, so
// re-observing an unchanged listing never creates a new snapshot.
//
// An accidental collision between genuinely different contents is accepted
// as a tolerable risk.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Blickwinkle262/DutchRentScope/internal/model"
)

// Volatile returns the hex-encoded SHA-256 digest of the canonical form of v.
// It is a pure function: no I/O, no global state.
func Volatile(v model.VolatileFields) string {
	sum := sha256.Sum256(canonical(v))
	return hex.EncodeToString(sum[:])
}

// canonical serialises the volatile fields with a fixed field order, one
// "name=value" line per field. Strings are trimmed, floats use the shortest
// exact decimal form (so 1500, 1500.0 and "1500.00" agree), and a nil
// detail payload equals an empty one.
func canonical(v model.VolatileFields) []byte {
	var b strings.Builder
	writeString(&b, "status", v.Status)
	writeFloat(&b, "price", v.Price)
	writeFloat(&b, "deposit", v.Deposit)
	writeFloat(&b, "living_area", v.LivingArea)
	writeFloat(&b, "external_area", v.ExternalArea)
	writeFloat(&b, "volume", v.Volume)
	fmt.Fprintf(&b, "bedroom_count=%d\n", v.BedroomCount)
	writeString(&b, "energy_label", v.EnergyLabel)
	writeDetails(&b, v.Details)
	return []byte(b.String())
}

func writeString(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s=%s\n", name, strings.TrimSpace(value))
}

func writeFloat(b *strings.Builder, name string, value float64) {
	fmt.Fprintf(b, "%s=%s\n", name, strconv.FormatFloat(value, 'f', -1, 64))
}

// writeDetails encodes the free-form payload as JSON. encoding/json sorts
// map keys, which makes the encoding independent of insertion order.
func writeDetails(b *strings.Builder, details map[string]any) {
	if len(details) == 0 {
		b.WriteString("details=\n")
		return
	}
	enc, err := json.Marshal(details)
	if err != nil {
		// Non-encodable payloads cannot come from decoded scraper input;
		// fall back to the fmt rendering rather than dropping the field.
		enc = []byte(fmt.Sprintf("%v", details))
	}
	fmt.Fprintf(b, "details=%s\n", enc)
}
