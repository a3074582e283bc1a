// Package distribution computes the demographic distribution summary: for
// each grouping attribute, the share of the total population in every cohort
// and, per chronic condition, the share of that condition's sub-population in
// every cohort. Grouping attributes are a closed enumeration of descriptors,
// never reflection over record fields.
package distribution

import (
	"math"
	"sort"
	"strconv"

	"chronic-cost/internal/conditions"
	"chronic-cost/internal/synpuf"
)

// Descriptor names one grouping attribute and extracts its cohort value from
// a profile. Less orders cohort values for output; nil means lexicographic.
type Descriptor struct {
	Name  string
	Value func(*conditions.Profile) string
	Less  func(a, b string) bool
}

// numericLess orders cohort values as integers, falling back to string order
// when either side fails to parse.
func numericLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr != nil || berr != nil {
		return a < b
	}
	return ai < bi
}

// ageBucketLess orders cohorts by ascending bucket age.
func ageBucketLess(a, b string) bool {
	rank := func(label string) int {
		for i, l := range conditions.AgeBucketLabels() {
			if l == label {
				return i
			}
		}
		return -1
	}
	return rank(a) < rank(b)
}

// DefaultDescriptors returns the supported grouping attributes in the order
// their summaries are stacked in the output table.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{Name: "age_bucket", Value: func(p *conditions.Profile) string { return p.AgeBucket }, Less: ageBucketLess},
		{Name: "BENE_RACE_CD", Value: func(p *conditions.Profile) string { return p.Member.Race }},
		{Name: "BENE_ESRD_IND", Value: func(p *conditions.Profile) string { return p.Member.ESRD }},
		{Name: "SP_STATE_CODE", Value: func(p *conditions.Profile) string { return p.Member.State }, Less: numericLess},
		{Name: "BENE_SEX_IDENT_CD", Value: func(p *conditions.Profile) string { return p.Member.Sex }},
		{Name: "total_conditions", Value: func(p *conditions.Profile) string { return strconv.Itoa(p.Count) }, Less: numericLess},
	}
}

// Row is one (grouping attribute, cohort) pair. ConditionShares holds one
// percentage per tracked condition in canonical registry order; a cohort with
// no members in a condition's sub-population reports 0, never a missing cell.
type Row struct {
	GroupColumn     string
	Cohort          string
	PopulationShare float64   // % of total population, 2dp
	ConditionShares []float64 // % of each condition's sub-population, 1dp
}

// Summary is the stacked distribution table.
type Summary struct {
	Conditions []string // condition column order for ConditionShares
	Rows       []Row
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

// Summarize computes each descriptor's distribution independently and stacks
// the results. An empty population yields an empty, well-typed summary.
func Summarize(profiles []conditions.Profile, descriptors ...Descriptor) *Summary {
	if len(descriptors) == 0 {
		descriptors = DefaultDescriptors()
	}

	s := &Summary{
		Conditions: append([]string(nil), synpuf.ConditionColumns...),
		Rows:       []Row{},
	}
	total := len(profiles)
	if total == 0 {
		return s
	}

	for _, d := range descriptors {
		s.Rows = append(s.Rows, summarizeBy(profiles, d, total)...)
	}
	return s
}

func summarizeBy(profiles []conditions.Profile, d Descriptor, total int) []Row {
	baseCounts := make(map[string]int)
	var cohorts []string
	for i := range profiles {
		v := d.Value(&profiles[i])
		if _, seen := baseCounts[v]; !seen {
			cohorts = append(cohorts, v)
		}
		baseCounts[v]++
	}

	less := d.Less
	if less == nil {
		less = func(a, b string) bool { return a < b }
	}
	sort.Slice(cohorts, func(i, j int) bool { return less(cohorts[i], cohorts[j]) })

	// Per-condition cohort counts, restricted to members with the flag set.
	condTotals := make([]int, synpuf.NumConditions)
	condCounts := make([]map[string]int, synpuf.NumConditions)
	for ci := range condCounts {
		condCounts[ci] = make(map[string]int)
	}
	for i := range profiles {
		p := &profiles[i]
		if p.Mask == 0 {
			continue
		}
		v := d.Value(p)
		for ci := 0; ci < synpuf.NumConditions; ci++ {
			if p.Mask&(1<<ci) != 0 {
				condTotals[ci]++
				condCounts[ci][v]++
			}
		}
	}

	rows := make([]Row, 0, len(cohorts))
	for _, cohort := range cohorts {
		row := Row{
			GroupColumn:     d.Name,
			Cohort:          cohort,
			PopulationShare: round(float64(baseCounts[cohort])/float64(total)*100, 2),
			ConditionShares: make([]float64, synpuf.NumConditions),
		}
		for ci := 0; ci < synpuf.NumConditions; ci++ {
			if condTotals[ci] == 0 {
				continue
			}
			row.ConditionShares[ci] = round(float64(condCounts[ci][cohort])/float64(condTotals[ci])*100, 1)
		}
		rows = append(rows, row)
	}
	return rows
}
