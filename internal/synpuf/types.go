// Package synpuf defines the CMS DE-SynPUF record schema and CSV loaders.
// The beneficiary summary file carries one row per member with chronic
// condition flags and annual payment totals; the claims file carries one row
// per outpatient claim line.
package synpuf

import "github.com/shopspring/decimal"

// ConditionColumns lists the chronic-condition flag columns in file column
// order. This order is the canonical condition order everywhere downstream;
// the slice index doubles as the condition's bit position.
var ConditionColumns = []string{
	"SP_ALZHDMTA",
	"SP_CHF",
	"SP_CHRNKIDN",
	"SP_CNCR",
	"SP_COPD",
	"SP_DEPRESSN",
	"SP_DIABETES",
	"SP_ISCHMCHT",
	"SP_OSTEOPRS",
	"SP_RA_OA",
	"SP_STRKETIA",
}

// NumConditions is the size of the fixed condition registry.
const NumConditions = 11

// Payments holds the nine annual payment totals a member carries: three payer
// roles (Medicare reimbursed, beneficiary responsibility, primary payer)
// across three care settings (inpatient, outpatient, carrier).
type Payments struct {
	MedicareIP          decimal.Decimal
	BeneficiaryIP       decimal.Decimal
	PrimaryPayerIP      decimal.Decimal
	MedicareOP          decimal.Decimal
	BeneficiaryOP       decimal.Decimal
	PrimaryPayerOP      decimal.Decimal
	MedicareCarrier     decimal.Decimal
	BeneficiaryCarrier  decimal.Decimal
	PrimaryPayerCarrier decimal.Decimal
}

// ZeroPayments returns a Payments with all nine fields set to decimal zero.
func ZeroPayments() Payments {
	z := decimal.Zero
	return Payments{z, z, z, z, z, z, z, z, z}
}

// Add returns the field-wise sum of two payment sets. Addition is associative
// and commutative, so partial sums from sharded workers merge in any order.
func (p Payments) Add(o Payments) Payments {
	return Payments{
		MedicareIP:          p.MedicareIP.Add(o.MedicareIP),
		BeneficiaryIP:       p.BeneficiaryIP.Add(o.BeneficiaryIP),
		PrimaryPayerIP:      p.PrimaryPayerIP.Add(o.PrimaryPayerIP),
		MedicareOP:          p.MedicareOP.Add(o.MedicareOP),
		BeneficiaryOP:       p.BeneficiaryOP.Add(o.BeneficiaryOP),
		PrimaryPayerOP:      p.PrimaryPayerOP.Add(o.PrimaryPayerOP),
		MedicareCarrier:     p.MedicareCarrier.Add(o.MedicareCarrier),
		BeneficiaryCarrier:  p.BeneficiaryCarrier.Add(o.BeneficiaryCarrier),
		PrimaryPayerCarrier: p.PrimaryPayerCarrier.Add(o.PrimaryPayerCarrier),
	}
}

// Member is one beneficiary summary row.
type Member struct {
	ID        string
	BirthDate int // YYYYMMDD; 0 when absent
	Sex       string
	Race      string
	State     string
	ESRD      string
	Flags     [NumConditions]bool
	Payments  Payments
}

// BirthYear extracts the year component of the YYYYMMDD birth date.
func (m *Member) BirthYear() int { return m.BirthDate / 10000 }

// Claim is one outpatient claim line. The aggregation engine never consumes
// claims; they are loaded as a typed record set for linkage reporting only,
// cost is attributed to the member's whole condition profile instead.
type Claim struct {
	ID       string
	MemberID string
	FromDate string
	ThruDate string
	Payment  decimal.Decimal
	Provider string
}
