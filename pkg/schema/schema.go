// Package schema defines the flat output row types written by the report
// writer and consumed downstream by the dashboard. The dashboard reads the
// files exactly as written; there is no schema versioning, so any column
// rename here is a breaking change.
package schema

// CombinationHeader is the CSV column order of the combination report.
var CombinationHeader = []string{
	"active_conditions_str",
	"member_count",
	"ip_medicare",
	"ip_beneficiary",
	"ip_pp",
	"op_medicare",
	"op_beneficiary",
	"op_pp",
	"carrier_medicare",
	"carrier_beneficiary",
	"carrier_pp",
	"number_of_conditions",
	"total_occurrence",
	"chronic_condition_count",
	"total_ip_cost",
	"total_op_cost",
	"total_carrier_cost",
	"total_medicare_cost",
	"total_beneficiary_cost",
	"total_pp_cost",
	"total_cost",
}

// CombinationRow is one combination report row in its serialized form.
// Occurrence fields are optional: the sentinel no-conditions group never
// matches an occurrence and leaves them unset.
type CombinationRow struct {
	ActiveConditions      string  `parquet:"active_conditions_str"`
	MemberCount           int64   `parquet:"member_count"`
	IPMedicare            float64 `parquet:"ip_medicare"`
	IPBeneficiary         float64 `parquet:"ip_beneficiary"`
	IPPrimaryPayer        float64 `parquet:"ip_pp"`
	OPMedicare            float64 `parquet:"op_medicare"`
	OPBeneficiary         float64 `parquet:"op_beneficiary"`
	OPPrimaryPayer        float64 `parquet:"op_pp"`
	CarrierMedicare       float64 `parquet:"carrier_medicare"`
	CarrierBeneficiary    float64 `parquet:"carrier_beneficiary"`
	CarrierPrimaryPayer   float64 `parquet:"carrier_pp"`
	NumberOfConditions    *int32  `parquet:"number_of_conditions,optional"`
	TotalOccurrence       *int64  `parquet:"total_occurrence,optional"`
	ChronicConditionCount string  `parquet:"chronic_condition_count"`
	TotalIPCost           float64 `parquet:"total_ip_cost"`
	TotalOPCost           float64 `parquet:"total_op_cost"`
	TotalCarrierCost      float64 `parquet:"total_carrier_cost"`
	TotalMedicareCost     float64 `parquet:"total_medicare_cost"`
	TotalBeneficiaryCost  float64 `parquet:"total_beneficiary_cost"`
	TotalPPCost           float64 `parquet:"total_pp_cost"`
	TotalCost             float64 `parquet:"total_cost"`
}

// DistributionRow is one stacked distribution summary row. One share column
// per tracked condition, fixed because the condition registry is closed.
type DistributionRow struct {
	GroupColumn          string  `parquet:"group_column"`
	Cohort               string  `parquet:"cohort"`
	PctOfTotalPopulation float64 `parquet:"pct_of_total_population"`

	PctAlzheimer    float64 `parquet:"pct_sp_alzhdmta_population"`
	PctHeartFail    float64 `parquet:"pct_sp_chf_population"`
	PctKidney       float64 `parquet:"pct_sp_chrnkidn_population"`
	PctCancer       float64 `parquet:"pct_sp_cncr_population"`
	PctCOPD         float64 `parquet:"pct_sp_copd_population"`
	PctDepression   float64 `parquet:"pct_sp_depressn_population"`
	PctDiabetes     float64 `parquet:"pct_sp_diabetes_population"`
	PctIschemic     float64 `parquet:"pct_sp_ischmcht_population"`
	PctOsteoporosis float64 `parquet:"pct_sp_osteoprs_population"`
	PctArthritis    float64 `parquet:"pct_sp_ra_oa_population"`
	PctStroke       float64 `parquet:"pct_sp_strketia_population"`
}

// SetShares assigns the per-condition share columns from a slice in canonical
// registry order.
func (r *DistributionRow) SetShares(shares []float64) {
	dst := []*float64{
		&r.PctAlzheimer, &r.PctHeartFail, &r.PctKidney, &r.PctCancer,
		&r.PctCOPD, &r.PctDepression, &r.PctDiabetes, &r.PctIschemic,
		&r.PctOsteoporosis, &r.PctArthritis, &r.PctStroke,
	}
	for i, p := range dst {
		if i < len(shares) {
			*p = shares[i]
		}
	}
}

// Shares returns the per-condition share columns in canonical registry order.
func (r *DistributionRow) Shares() []float64 {
	return []float64{
		r.PctAlzheimer, r.PctHeartFail, r.PctKidney, r.PctCancer,
		r.PctCOPD, r.PctDepression, r.PctDiabetes, r.PctIschemic,
		r.PctOsteoporosis, r.PctArthritis, r.PctStroke,
	}
}
