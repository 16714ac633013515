package leave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBalance(t *testing.T) {
	balance := &LeaveBalance{TotalDays: 12, CarryForwardDays: 3, UsedDays: 10, PendingDays: 2}
	assert.EqualValues(t, 3, balance.Available())

	var berr *BalanceError
	require.ErrorAs(t, ValidateBalance(4, balance), &berr)
	assert.EqualValues(t, 1, berr.Shortfall)
	assert.EqualValues(t, 3, berr.Available)

	assert.NoError(t, ValidateBalance(3, balance))
}

func TestValidateBalanceIsPure(t *testing.T) {
	balance := &LeaveBalance{TotalDays: 5, UsedDays: 1}
	before := *balance
	first := ValidateBalance(10, balance)
	second := ValidateBalance(10, balance)
	require.Error(t, first)
	assert.Equal(t, first.Error(), second.Error())
	assert.Equal(t, before, *balance)
}

func TestValidateBalanceMissingRecord(t *testing.T) {
	var berr *BalanceError
	require.ErrorAs(t, ValidateBalance(1, nil), &berr)
	assert.EqualValues(t, 0, berr.Available)
	assert.EqualValues(t, 1, berr.Shortfall)
}

func TestFindBalanceMatchesYear(t *testing.T) {
	balances := []LeaveBalance{
		{LeaveTypeID: "annual", Year: 2023, TotalDays: 10},
		{LeaveTypeID: "annual", Year: 2024, TotalDays: 20},
	}
	got := FindBalance(balances, "annual", 2024)
	require.NotNil(t, got)
	assert.EqualValues(t, 20, got.TotalDays)
	assert.Nil(t, FindBalance(balances, "sick", 2024))
}
