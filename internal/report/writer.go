// Package report serializes the two result tables as flat tabular files (CSV
// or Parquet) plus a small JSON run manifest. No transformation logic lives
// here beyond formatting.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"chronic-cost/internal/combination"
	"chronic-cost/internal/distribution"
	"chronic-cost/internal/synpuf"
	"chronic-cost/pkg/schema"
)

// Output file base names. The dashboard looks these up by name.
const (
	CombinationBase  = "condition_combination_analysis"
	DistributionBase = "summary_distribution_analysis"
	ManifestName     = "run_manifest.json"
)

// Format selects the tabular serialization.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatParquet:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported output format %q (want csv or parquet)", s)
}

// Writer writes result tables into one output directory.
type Writer struct {
	dir    string
	format Format
}

// NewWriter creates a writer. The directory is created on first write.
func NewWriter(dir string, format Format) *Writer {
	return &Writer{dir: dir, format: format}
}

func (w *Writer) path(base string) string {
	return filepath.Join(w.dir, base+"."+string(w.format))
}

func (w *Writer) ensureDir() error {
	return os.MkdirAll(w.dir, 0o755)
}

// combinationSchemaRow flattens an engine row into its serialized form.
func combinationSchemaRow(r combination.Row) schema.CombinationRow {
	row := schema.CombinationRow{
		ActiveConditions:      r.Combination,
		MemberCount:           r.MemberCount,
		IPMedicare:            r.Payments.MedicareIP.InexactFloat64(),
		IPBeneficiary:         r.Payments.BeneficiaryIP.InexactFloat64(),
		IPPrimaryPayer:        r.Payments.PrimaryPayerIP.InexactFloat64(),
		OPMedicare:            r.Payments.MedicareOP.InexactFloat64(),
		OPBeneficiary:         r.Payments.BeneficiaryOP.InexactFloat64(),
		OPPrimaryPayer:        r.Payments.PrimaryPayerOP.InexactFloat64(),
		CarrierMedicare:       r.Payments.MedicareCarrier.InexactFloat64(),
		CarrierBeneficiary:    r.Payments.BeneficiaryCarrier.InexactFloat64(),
		CarrierPrimaryPayer:   r.Payments.PrimaryPayerCarrier.InexactFloat64(),
		ChronicConditionCount: r.ChronicConditionCount,
		TotalIPCost:           r.Totals.IP.InexactFloat64(),
		TotalOPCost:           r.Totals.OP.InexactFloat64(),
		TotalCarrierCost:      r.Totals.Carrier.InexactFloat64(),
		TotalMedicareCost:     r.Totals.Medicare.InexactFloat64(),
		TotalBeneficiaryCost:  r.Totals.Beneficiary.InexactFloat64(),
		TotalPPCost:           r.Totals.PrimaryPayer.InexactFloat64(),
		TotalCost:             r.Totals.Total.InexactFloat64(),
	}
	if r.NumberOfConditions != nil {
		n := int32(*r.NumberOfConditions)
		row.NumberOfConditions = &n
	}
	if r.TotalOccurrence != nil {
		c := *r.TotalOccurrence
		row.TotalOccurrence = &c
	}
	return row
}

// WriteCombination writes the merged combination report and returns the file
// path. Zero rows still produce a file with the full header.
func (w *Writer) WriteCombination(rep *combination.Report) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}

	rows := make([]schema.CombinationRow, len(rep.Rows))
	for i, r := range rep.Rows {
		rows[i] = combinationSchemaRow(r)
	}

	path := w.path(CombinationBase)
	switch w.format {
	case FormatParquet:
		return path, writeParquet(path, rows)
	default:
		return path, writeCombinationCSV(path, rows)
	}
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func pct(v float64) string   { return strconv.FormatFloat(v, 'f', -1, 64) }

func writeCombinationCSV(path string, rows []schema.CombinationRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(schema.CombinationHeader); err != nil {
		return err
	}
	for _, r := range rows {
		numConditions, totalOccurrence := "", ""
		if r.NumberOfConditions != nil {
			numConditions = strconv.Itoa(int(*r.NumberOfConditions))
		}
		if r.TotalOccurrence != nil {
			totalOccurrence = strconv.FormatInt(*r.TotalOccurrence, 10)
		}
		rec := []string{
			r.ActiveConditions,
			strconv.FormatInt(r.MemberCount, 10),
			money(r.IPMedicare), money(r.IPBeneficiary), money(r.IPPrimaryPayer),
			money(r.OPMedicare), money(r.OPBeneficiary), money(r.OPPrimaryPayer),
			money(r.CarrierMedicare), money(r.CarrierBeneficiary), money(r.CarrierPrimaryPayer),
			numConditions,
			totalOccurrence,
			r.ChronicConditionCount,
			money(r.TotalIPCost), money(r.TotalOPCost), money(r.TotalCarrierCost),
			money(r.TotalMedicareCost), money(r.TotalBeneficiaryCost), money(r.TotalPPCost),
			money(r.TotalCost),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteDistribution writes the stacked distribution summary and returns the
// file path.
func (w *Writer) WriteDistribution(sum *distribution.Summary) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}

	rows := make([]schema.DistributionRow, len(sum.Rows))
	for i, r := range sum.Rows {
		rows[i] = schema.DistributionRow{
			GroupColumn:          r.GroupColumn,
			Cohort:               r.Cohort,
			PctOfTotalPopulation: r.PopulationShare,
		}
		rows[i].SetShares(r.ConditionShares)
	}

	path := w.path(DistributionBase)
	switch w.format {
	case FormatParquet:
		return path, writeParquet(path, rows)
	default:
		return path, writeDistributionCSV(path, sum, rows)
	}
}

func writeDistributionCSV(path string, sum *distribution.Summary, rows []schema.DistributionRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	header := []string{"Group Column", "Cohort", "% of Total Population"}
	for _, cond := range sum.Conditions {
		header = append(header, fmt.Sprintf("%% of %s Population", cond))
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.GroupColumn, r.Cohort, pct(r.PctOfTotalPopulation)}
		for _, share := range r.Shares() {
			rec = append(rec, pct(share))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	pw := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Snappy))
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := pw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close %s: %w", path, err)
	}
	return f.Close()
}

// Manifest records what a run consumed and produced, for reproducibility.
type Manifest struct {
	RunID            uuid.UUID `json:"run_id"`
	GeneratedAt      time.Time `json:"generated_at"`
	MembersFile      string    `json:"members_file"`
	ClaimsFile       string    `json:"claims_file,omitempty"`
	ReferenceYear    int       `json:"reference_year"`
	Format           string    `json:"format"`
	MemberCount      int64     `json:"member_count"`
	ClaimCount       int64     `json:"claim_count,omitempty"`
	CombinationRows  int       `json:"combination_rows"`
	RealizedSubsets  int       `json:"realized_subsets"`
	DistributionRows int       `json:"distribution_rows"`
	Conditions       []string  `json:"conditions"`
}

// NewManifest seeds a manifest from an engine report.
func NewManifest(rep *combination.Report) Manifest {
	return Manifest{
		RunID:           rep.RunID,
		GeneratedAt:     rep.GeneratedAt,
		MemberCount:     rep.MemberCount,
		CombinationRows: len(rep.Rows),
		RealizedSubsets: len(rep.Occurrences),
		Conditions:      append([]string(nil), synpuf.ConditionColumns...),
	}
}

// WriteManifest writes the manifest JSON and returns the file path.
func (w *Writer) WriteManifest(m Manifest) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}
	m.Format = string(w.format)

	path := filepath.Join(w.dir, ManifestName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
