// Package conditions derives each member's active chronic-condition profile
// from the fixed flag registry. A profile carries the member's condition set
// as a bitmask over the canonical registry order, so combination keys are
// order-independent and subset checks reduce to mask containment.
package conditions

import (
	"fmt"
	"math/bits"
	"strings"

	"chronic-cost/internal/synpuf"
)

// Mask is a canonical, order-independent identifier for a subset of the
// tracked conditions. Bit i corresponds to synpuf.ConditionColumns[i].
type Mask uint16

// Count returns the number of conditions in the subset.
func (m Mask) Count() int { return bits.OnesCount16(uint16(m)) }

// Contains reports whether sub is a subset of m.
func (m Mask) Contains(sub Mask) bool { return m&sub == sub }

// Codes returns the condition codes of the subset in canonical order.
func (m Mask) Codes() []string {
	codes := make([]string, 0, m.Count())
	for i, name := range synpuf.ConditionColumns {
		if m&(1<<i) != 0 {
			codes = append(codes, name)
		}
	}
	return codes
}

// Key returns the canonical comma-joined label of the subset. The empty mask
// yields the empty string, meaning no conditions.
func (m Mask) Key() string { return strings.Join(m.Codes(), ", ") }

// EachSubset calls fn for every non-empty subset of m, 2^k-1 calls for a mask
// of k conditions. Iteration order is descending by mask value.
func (m Mask) EachSubset(fn func(Mask)) {
	for sub := m; sub > 0; sub = (sub - 1) & m {
		fn(sub)
	}
}

// MaskOf builds a mask from condition codes. Unknown codes are an error, the
// registry is closed.
func MaskOf(codes ...string) (Mask, error) {
	var m Mask
	for _, code := range codes {
		found := false
		for i, name := range synpuf.ConditionColumns {
			if name == code {
				m |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown condition code %q", code)
		}
	}
	return m, nil
}

// DefaultReferenceYear anchors age derivation for the 2008-2010 SynPUF sample.
const DefaultReferenceYear = 2008

// Age bucket boundaries, right-open. Everyone under 65 shares the Medicare
// pre-65 bucket, ages below 25 are not separately bucketed.
var ageBuckets = []struct {
	max   int // exclusive
	label string
}{
	{65, "25 - 64"},
	{70, "65 - 69"},
	{75, "70 - 74"},
	{80, "75 - 79"},
	{85, "80 - 84"},
	{90, "85 - 89"},
}

// AgeBucketLabels returns every bucket label in ascending age order.
func AgeBucketLabels() []string {
	labels := make([]string, 0, len(ageBuckets)+1)
	for _, b := range ageBuckets {
		labels = append(labels, b.label)
	}
	return append(labels, "90+")
}

// BucketForAge maps an integer age onto its bucket label.
func BucketForAge(age int) string {
	for _, b := range ageBuckets {
		if age < b.max {
			return b.label
		}
	}
	return "90+"
}

// Profile is a member enriched with its derived condition fields. Enrichment
// never mutates the source record.
type Profile struct {
	Member *synpuf.Member

	Mask      Mask
	Active    []string // canonical order, deduplicated by construction
	Key       string   // "" when the member has no conditions
	Count     int
	Age       int
	AgeBucket string
}

// Extract derives a profile from one member record relative to referenceYear.
func Extract(m *synpuf.Member, referenceYear int) Profile {
	var mask Mask
	for i, on := range m.Flags {
		if on {
			mask |= 1 << i
		}
	}

	age := referenceYear - m.BirthYear()
	return Profile{
		Member:    m,
		Mask:      mask,
		Active:    mask.Codes(),
		Key:       mask.Key(),
		Count:     mask.Count(),
		Age:       age,
		AgeBucket: BucketForAge(age),
	}
}

// ExtractAll derives profiles for a whole population in input order.
func ExtractAll(members []synpuf.Member, referenceYear int) []Profile {
	profiles := make([]Profile, len(members))
	for i := range members {
		profiles[i] = Extract(&members[i], referenceYear)
	}
	return profiles
}
