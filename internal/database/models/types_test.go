package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalArrayRoundTrip(t *testing.T) {
	in := DecimalArray{decimal.RequireFromString("0.10"), decimal.RequireFromString("0.15")}
	v, err := in.Value()
	require.NoError(t, err)
	assert.Equal(t, `["0.1","0.15"]`, v)

	var out DecimalArray
	require.NoError(t, out.Scan([]byte(v.(string))))
	require.Len(t, out, 2)
	assert.True(t, out[1].Equal(in[1]))

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)
	assert.Error(t, out.Scan(42))
}

func TestStringArrayScanString(t *testing.T) {
	var roles StringArray
	require.NoError(t, roles.Scan(`["sales_rep","office"]`))
	assert.True(t, roles.Contains("office"))
	assert.False(t, roles.Contains("admin"))

	v, err := StringArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestBeforeCreateKeepsExistingID(t *testing.T) {
	id := uuid.New()
	b := &Base{ID: id}
	require.NoError(t, b.BeforeCreate(nil))
	assert.Equal(t, id, b.ID)

	fresh := &Base{}
	require.NoError(t, fresh.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, fresh.ID)
}

func TestHoldBlocks(t *testing.T) {
	h := ComplianceHold{Status: HoldActive, BlocksCommissionPayment: true}
	assert.True(t, h.Blocks(ActionCommissionPayment))
	assert.False(t, h.Blocks(ActionScheduling))
	assert.False(t, h.Blocks("unknown"))

	h.Status = HoldResolved
	assert.False(t, h.Blocks(ActionCommissionPayment))
}

func TestSOPRequiredFor(t *testing.T) {
	everyone := SOPDocument{IsActive: true}
	assert.True(t, everyone.RequiredFor("office"))

	reps := SOPDocument{IsActive: true, RequiredRoles: StringArray{"sales_rep"}}
	assert.True(t, reps.RequiredFor("sales_rep"))
	assert.False(t, reps.RequiredFor("office"))

	retired := SOPDocument{IsActive: false}
	assert.False(t, retired.RequiredFor("office"))
}
