package synpuf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMembers(t *testing.T) {
	// SOME_EXTRA_COL is not in the fixed column set and must be ignored.
	content := `DESYNPUF_ID,BENE_BIRTH_DT,BENE_SEX_IDENT_CD,BENE_RACE_CD,BENE_ESRD_IND,SP_STATE_CODE,SOME_EXTRA_COL,SP_CHF,SP_DIABETES,MEDREIMB_IP,BENRES_IP,PPPYMT_IP,MEDREIMB_OP,BENRES_OP,PPPYMT_OP,MEDREIMB_CAR,BENRES_CAR,PPPYMT_CAR
A001,19360901,1,1,0,26,junk,1,1,4000.00,1068.00,0.00,30.00,10.00,0.00,210.50,70.00,0.00
A002,19420115,2,2,Y,45,junk,2,2,0,0,0,0,0,0,0,0,0
A003,19310420,1,1,0,26,junk,,1,,100.00,,,,,,,
`
	path := writeCSV(t, "members.csv", content)

	members, err := LoadMembers(path)
	require.NoError(t, err)
	require.Len(t, members, 3)

	m := members[0]
	assert.Equal(t, "A001", m.ID)
	assert.Equal(t, 19360901, m.BirthDate)
	assert.Equal(t, 1936, m.BirthYear())
	assert.Equal(t, "1", m.Sex)
	assert.Equal(t, "26", m.State)
	assert.True(t, m.Flags[1], "SP_CHF")
	assert.True(t, m.Flags[6], "SP_DIABETES")
	assert.False(t, m.Flags[0], "SP_ALZHDMTA column absent, treated as inactive")
	assert.True(t, m.Payments.MedicareIP.Equal(decimal.RequireFromString("4000.00")))
	assert.True(t, m.Payments.BeneficiaryIP.Equal(decimal.RequireFromString("1068.00")))
	assert.True(t, m.Payments.MedicareCarrier.Equal(decimal.RequireFromString("210.50")))

	// Flag value "2" means inactive.
	assert.False(t, members[1].Flags[1])
	assert.False(t, members[1].Flags[6])
	assert.Equal(t, "Y", members[1].ESRD)

	// Empty payment and flag cells default to zero/inactive.
	assert.False(t, members[2].Flags[1])
	assert.True(t, members[2].Flags[6])
	assert.True(t, members[2].Payments.MedicareIP.IsZero())
	assert.True(t, members[2].Payments.BeneficiaryIP.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, members[2].Payments.PrimaryPayerCarrier.IsZero())
}

func TestLoadMembersMissingFile(t *testing.T) {
	_, err := LoadMembers(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestLoadMembersMissingIDColumn(t *testing.T) {
	path := writeCSV(t, "members.csv", "BENE_BIRTH_DT,SP_CHF\n19360901,1\n")
	_, err := LoadMembers(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DESYNPUF_ID")
}

func TestLoadMembersBadPayment(t *testing.T) {
	path := writeCSV(t, "members.csv", "DESYNPUF_ID,MEDREIMB_IP\nA001,not-a-number\n")
	_, err := LoadMembers(path)
	assert.Error(t, err)
}

func TestLoadMembersBadBirthDate(t *testing.T) {
	path := writeCSV(t, "members.csv", "DESYNPUF_ID,BENE_BIRTH_DT\nA001,19XX0901\n")
	_, err := LoadMembers(path)
	assert.Error(t, err)
}

func TestLoadMembersEmptyFile(t *testing.T) {
	path := writeCSV(t, "members.csv", "DESYNPUF_ID,BENE_BIRTH_DT,SP_CHF\n")
	members, err := LoadMembers(path)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestLoadClaims(t *testing.T) {
	content := `DESYNPUF_ID,CLM_ID,CLM_FROM_DT,CLM_THRU_DT,PRVDR_NUM,CLM_PMT_AMT
A001,392820596761540,20080904,20080904,2600GG,50.00
A002,392820596761541,20090112,20090115,4500XY,
`
	path := writeCSV(t, "claims.csv", content)

	claims, err := LoadClaims(path)
	require.NoError(t, err)
	require.Len(t, claims, 2)

	assert.Equal(t, "392820596761540", claims[0].ID)
	assert.Equal(t, "A001", claims[0].MemberID)
	assert.Equal(t, "20080904", claims[0].FromDate)
	assert.Equal(t, "2600GG", claims[0].Provider)
	assert.True(t, claims[0].Payment.Equal(decimal.RequireFromString("50.00")))
	assert.True(t, claims[1].Payment.IsZero(), "missing payment treated as zero")
}

func TestLoadClaimsMissingIDColumn(t *testing.T) {
	path := writeCSV(t, "claims.csv", "DESYNPUF_ID,CLM_PMT_AMT\nA001,10\n")
	_, err := LoadClaims(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLM_ID")
}

func TestPaymentsAdd(t *testing.T) {
	a := ZeroPayments()
	a.MedicareIP = decimal.NewFromInt(10)
	a.BeneficiaryOP = decimal.NewFromInt(3)

	b := ZeroPayments()
	b.MedicareIP = decimal.NewFromInt(5)
	b.PrimaryPayerCarrier = decimal.NewFromInt(7)

	sum := a.Add(b)
	assert.True(t, sum.MedicareIP.Equal(decimal.NewFromInt(15)))
	assert.True(t, sum.BeneficiaryOP.Equal(decimal.NewFromInt(3)))
	assert.True(t, sum.PrimaryPayerCarrier.Equal(decimal.NewFromInt(7)))
	assert.True(t, sum.MedicareOP.IsZero())
}
