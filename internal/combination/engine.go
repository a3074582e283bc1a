// Package combination provides the Combination & Cost Aggregation Engine.
// It enumerates every condition subset realized in the population, tallies
// subset-inclusive occurrence counts, aggregates payments per exact condition
// set, and merges both into one combination-level report.
//
// The two tallies use different equivalence relations on purpose: occurrence
// counting credits every subset of a member's condition set, cost aggregation
// credits only the member's exact set. A member's entire payment total lands
// in the bucket of their full condition profile; costs are never allocated
// per claim or split across single conditions. That attribution is a
// modeling assumption inherited from the source analysis, preserved as-is.
package combination

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"chronic-cost/internal/conditions"
	"chronic-cost/internal/synpuf"
)

// NoConditionsLabel replaces the empty exact-set key in the report.
const NoConditionsLabel = "NO CHRONIC CONDITIONS"

// multipleThreshold splits the chronic_condition_count category.
const multipleThreshold = 3

// ctxCheckStride bounds how many members a worker processes between
// cancellation checks.
const ctxCheckStride = 4096

// Engine runs the combination analysis. Workers default to GOMAXPROCS.
type Engine struct {
	workers int
}

// NewEngine creates an engine with default sharding.
func NewEngine() *Engine {
	return &Engine{workers: runtime.GOMAXPROCS(0)}
}

// WithWorkers overrides the shard count. Values below 1 are ignored.
func (e *Engine) WithWorkers(n int) *Engine {
	if n > 0 {
		e.workers = n
	}
	return e
}

// Totals are the derived cost columns of one report row. Total is the sum of
// the three setting totals only; each setting total already contains all
// three payer components, so adding the payer totals back in would double
// count.
type Totals struct {
	IP           decimal.Decimal
	OP           decimal.Decimal
	Carrier      decimal.Decimal
	Medicare     decimal.Decimal
	Beneficiary  decimal.Decimal
	PrimaryPayer decimal.Decimal
	Total        decimal.Decimal
}

func deriveTotals(p synpuf.Payments) Totals {
	t := Totals{
		IP:           p.MedicareIP.Add(p.BeneficiaryIP).Add(p.PrimaryPayerIP),
		OP:           p.MedicareOP.Add(p.BeneficiaryOP).Add(p.PrimaryPayerOP),
		Carrier:      p.MedicareCarrier.Add(p.BeneficiaryCarrier).Add(p.PrimaryPayerCarrier),
		Medicare:     p.MedicareIP.Add(p.MedicareOP).Add(p.MedicareCarrier),
		Beneficiary:  p.BeneficiaryIP.Add(p.BeneficiaryOP).Add(p.BeneficiaryCarrier),
		PrimaryPayer: p.PrimaryPayerIP.Add(p.PrimaryPayerOP).Add(p.PrimaryPayerCarrier),
	}
	t.Total = t.IP.Add(t.OP).Add(t.Carrier)
	return t
}

// Row is one merged report row: one exact condition set observed in the
// population, with its cost aggregation and, when the same combination was
// tallied in Step A, its occurrence metadata. The sentinel row (no
// conditions) never matches an occurrence, so its occurrence fields stay nil.
type Row struct {
	Key         string // exact-set key, "" for no conditions
	Combination string // Key with the sentinel label substituted
	Mask        conditions.Mask

	MemberCount int64
	Payments    synpuf.Payments
	Totals      Totals

	NumberOfConditions *int
	TotalOccurrence    *int64

	ChronicConditionCount string // "<3" or "Multiple"
}

// Report is the engine output.
type Report struct {
	RunID       uuid.UUID
	GeneratedAt time.Time
	MemberCount int64

	Rows []Row

	// Occurrences is the full Step A tally, including subsets that are
	// nobody's exact set and therefore absent from Rows.
	Occurrences map[conditions.Mask]int64
}

// costGroup accumulates one exact-set group during Step B.
type costGroup struct {
	members int64
	sums    synpuf.Payments
}

// Run executes steps A-D over an enriched population. Empty input produces an
// empty, well-typed report.
func (e *Engine) Run(ctx context.Context, profiles []conditions.Profile) (*Report, error) {
	occurrences, err := e.tallyOccurrences(ctx, profiles)
	if err != nil {
		return nil, err
	}

	groups, err := e.aggregateCosts(ctx, profiles)
	if err != nil {
		return nil, err
	}

	return &Report{
		RunID:       uuid.New(),
		GeneratedAt: time.Now().UTC(),
		MemberCount: int64(len(profiles)),
		Rows:        mergeRows(groups, occurrences),
		Occurrences: occurrences,
	}, nil
}

// tallyOccurrences is Step A: for every member, every non-empty subset of the
// member's condition mask gets +1. Each shard tallies into a local counter;
// counters merge by key-wise summation, so merge order is irrelevant.
func (e *Engine) tallyOccurrences(ctx context.Context, profiles []conditions.Profile) (map[conditions.Mask]int64, error) {
	shards := shardRanges(len(profiles), e.workers)
	locals := make([]map[conditions.Mask]int64, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range shards {
		g.Go(func() error {
			local := make(map[conditions.Mask]int64)
			for j := s[0]; j < s[1]; j++ {
				if (j-s[0])%ctxCheckStride == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				profiles[j].Mask.EachSubset(func(sub conditions.Mask) {
					local[sub]++
				})
			}
			locals[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[conditions.Mask]int64)
	for _, local := range locals {
		for mask, n := range local {
			merged[mask] += n
		}
	}
	return merged, nil
}

// aggregateCosts is Step B: group members by exact condition mask, count them
// and sum the nine payment fields. The empty mask is a valid group.
func (e *Engine) aggregateCosts(ctx context.Context, profiles []conditions.Profile) (map[conditions.Mask]*costGroup, error) {
	shards := shardRanges(len(profiles), e.workers)
	locals := make([]map[conditions.Mask]*costGroup, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range shards {
		g.Go(func() error {
			local := make(map[conditions.Mask]*costGroup)
			for j := s[0]; j < s[1]; j++ {
				if (j-s[0])%ctxCheckStride == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				p := &profiles[j]
				grp, ok := local[p.Mask]
				if !ok {
					grp = &costGroup{sums: synpuf.ZeroPayments()}
					local[p.Mask] = grp
				}
				grp.members++
				grp.sums = grp.sums.Add(p.Member.Payments)
			}
			locals[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[conditions.Mask]*costGroup)
	for _, local := range locals {
		for mask, grp := range local {
			m, ok := merged[mask]
			if !ok {
				merged[mask] = grp
				continue
			}
			m.members += grp.members
			m.sums = m.sums.Add(grp.sums)
		}
	}
	return merged, nil
}

// mergeRows is Steps C and D: left-join the exact-set cost groups to the
// occurrence tally and attach derived totals. Occurrence-only combinations
// are dropped because the join iterates cost groups, which are real exact
// sets; cost groups without an occurrence match keep nil occurrence fields.
func mergeRows(groups map[conditions.Mask]*costGroup, occurrences map[conditions.Mask]int64) []Row {
	rows := make([]Row, 0, len(groups))
	for mask, grp := range groups {
		row := Row{
			Key:         mask.Key(),
			Combination: mask.Key(),
			Mask:        mask,
			MemberCount: grp.members,
			Payments:    grp.sums,
			Totals:      deriveTotals(grp.sums),
		}
		if row.Key == "" {
			row.Combination = NoConditionsLabel
		}

		if count, ok := occurrences[mask]; ok {
			n := mask.Count()
			row.NumberOfConditions = &n
			row.TotalOccurrence = &count
		}

		if mask.Count() < multipleThreshold {
			row.ChronicConditionCount = "<3"
		} else {
			row.ChronicConditionCount = "Multiple"
		}

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

// shardRanges splits [0,n) into up to `workers` contiguous half-open ranges.
func shardRanges(n, workers int) [][2]int {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	ranges := make([][2]int, 0, workers)
	for i := 0; i < workers; i++ {
		lo := i * n / workers
		hi := (i + 1) * n / workers
		if lo < hi {
			ranges = append(ranges, [2]int{lo, hi})
		}
	}
	return ranges
}
