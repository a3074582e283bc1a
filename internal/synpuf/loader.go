package synpuf

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Beneficiary summary columns the loader consumes. Any column not named here
// or in ConditionColumns is ignored.
const (
	colMemberID  = "DESYNPUF_ID"
	colBirthDate = "BENE_BIRTH_DT"
	colSex       = "BENE_SEX_IDENT_CD"
	colRace      = "BENE_RACE_CD"
	colESRD      = "BENE_ESRD_IND"
	colState     = "SP_STATE_CODE"
)

// paymentColumns maps payment column names to setters, in file column order.
var paymentColumns = []struct {
	name string
	set  func(*Payments, decimal.Decimal)
}{
	{"MEDREIMB_IP", func(p *Payments, v decimal.Decimal) { p.MedicareIP = v }},
	{"BENRES_IP", func(p *Payments, v decimal.Decimal) { p.BeneficiaryIP = v }},
	{"PPPYMT_IP", func(p *Payments, v decimal.Decimal) { p.PrimaryPayerIP = v }},
	{"MEDREIMB_OP", func(p *Payments, v decimal.Decimal) { p.MedicareOP = v }},
	{"BENRES_OP", func(p *Payments, v decimal.Decimal) { p.BeneficiaryOP = v }},
	{"PPPYMT_OP", func(p *Payments, v decimal.Decimal) { p.PrimaryPayerOP = v }},
	{"MEDREIMB_CAR", func(p *Payments, v decimal.Decimal) { p.MedicareCarrier = v }},
	{"BENRES_CAR", func(p *Payments, v decimal.Decimal) { p.BeneficiaryCarrier = v }},
	{"PPPYMT_CAR", func(p *Payments, v decimal.Decimal) { p.PrimaryPayerCarrier = v }},
}

// Outpatient claim columns.
const (
	colClaimID       = "CLM_ID"
	colClaimFrom     = "CLM_FROM_DT"
	colClaimThru     = "CLM_THRU_DT"
	colClaimPayment  = "CLM_PMT_AMT"
	colClaimProvider = "PRVDR_NUM"
)

// openCSV opens a CSV file and returns a reader positioned past the header,
// plus a lowercase-insensitive header index.
func openCSV(path string) (*os.File, *csv.Reader, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", path, err)
	}

	r := csv.NewReader(bufio.NewReaderSize(f, 256*1024))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	return f, r, idx, nil
}

func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parsePayment parses a payment cell. Empty or missing cells are zero per the
// input contract; anything else must be numeric.
func parsePayment(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// LoadMembers parses the beneficiary summary file into typed member records.
// The required identity column must be present; payment and condition columns
// default to zero when absent.
func LoadMembers(path string) ([]Member, error) {
	f, r, idx, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, ok := idx[colMemberID]; !ok {
		return nil, fmt.Errorf("%s: missing required column %s", path, colMemberID)
	}

	var members []Member
	rowNum := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, rowNum+1, err)
		}
		rowNum++

		m := Member{
			ID:       field(row, idx, colMemberID),
			Sex:      field(row, idx, colSex),
			Race:     field(row, idx, colRace),
			State:    field(row, idx, colState),
			ESRD:     field(row, idx, colESRD),
			Payments: ZeroPayments(),
		}

		if bd := field(row, idx, colBirthDate); bd != "" {
			m.BirthDate, err = strconv.Atoi(bd)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: bad birth date %q: %w", path, rowNum, bd, err)
			}
		}

		// Flag value "1" means the condition is active; "2", empty, or a
		// missing column all mean inactive.
		for i, name := range ConditionColumns {
			m.Flags[i] = field(row, idx, name) == "1"
		}

		for _, pc := range paymentColumns {
			v, err := parsePayment(field(row, idx, pc.name))
			if err != nil {
				return nil, fmt.Errorf("%s row %d: bad %s: %w", path, rowNum, pc.name, err)
			}
			pc.set(&m.Payments, v)
		}

		members = append(members, m)
	}

	return members, nil
}

// LoadClaims parses the outpatient claims file into typed claim records.
func LoadClaims(path string) ([]Claim, error) {
	f, r, idx, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, ok := idx[colClaimID]; !ok {
		return nil, fmt.Errorf("%s: missing required column %s", path, colClaimID)
	}

	var claims []Claim
	rowNum := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, rowNum+1, err)
		}
		rowNum++

		pmt, err := parsePayment(field(row, idx, colClaimPayment))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad %s: %w", path, rowNum, colClaimPayment, err)
		}

		claims = append(claims, Claim{
			ID:       field(row, idx, colClaimID),
			MemberID: field(row, idx, colMemberID),
			FromDate: field(row, idx, colClaimFrom),
			ThruDate: field(row, idx, colClaimThru),
			Payment:  pmt,
			Provider: field(row, idx, colClaimProvider),
		})
	}

	return claims, nil
}
