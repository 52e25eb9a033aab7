package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/generic"
)

func TestBuildAllocations_CreditUsed_NegativeAdjustment(t *testing.T) {
	// GIVEN: 900 paid with 300 credit against bills of 500 and 700
	// WHEN: Building allocations
	// THEN: Two base allocations and one negative credit allocation sum to 900

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:               testUnit,
		PaymentAmount:        900,
		CurrentCreditBalance: 300,
		Bills:                twoBills(),
	})
	require.NoError(t, err)

	allocs, summary := generic.BuildAllocations(d, generic.WaterCategories)

	require.Len(t, allocs, 3)
	assert.Equal(t, "alloc_001", allocs[0].ID)
	assert.Equal(t, generic.AllocBillBase, allocs[0].Type)
	assert.Equal(t, "2026-00", allocs[0].TargetID)
	assert.Equal(t, generic.Cents(500), allocs[0].Amount)
	assert.Equal(t, "water-consumption", allocs[0].CategoryID)

	assert.Equal(t, "alloc_003", allocs[2].ID)
	assert.Equal(t, generic.AllocCreditAdjustment, allocs[2].Type)
	assert.Equal(t, generic.Cents(-300), allocs[2].Amount)
	assert.Equal(t, "account-credit", allocs[2].CategoryID)

	assert.Equal(t, generic.Cents(900), summary.TotalAllocated)
	assert.Equal(t, generic.Cents(1200), summary.BillsTotal)
	assert.Equal(t, 3, summary.AllocationCount)
	assert.True(t, summary.IntegrityCheck.IsValid)
	assert.NoError(t, summary.Validate())
}

func TestBuildAllocations_Overpayment_PositiveAdjustment(t *testing.T) {
	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 1500,
		Bills:         twoBills(),
	})
	require.NoError(t, err)

	allocs, summary := generic.BuildAllocations(d, generic.WaterCategories)

	last := allocs[len(allocs)-1]
	assert.Equal(t, generic.AllocCreditAdjustment, last.Type)
	assert.Equal(t, generic.Cents(300), last.Amount)
	assert.Equal(t, generic.Cents(1500), summary.TotalAllocated)
	assert.True(t, summary.IntegrityCheck.IsValid)
}

func TestBuildAllocations_PenaltyAllocation(t *testing.T) {
	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 1300,
		Bills:         []generic.Bill{waterBill(0, 1000, 300)},
	})
	require.NoError(t, err)

	allocs, _ := generic.BuildAllocations(d, generic.WaterCategories)

	require.Len(t, allocs, 2)
	assert.Equal(t, generic.AllocBillBase, allocs[0].Type)
	assert.Equal(t, generic.AllocBillPenalty, allocs[1].Type)
	assert.Equal(t, generic.Cents(300), allocs[1].Amount)
	assert.Equal(t, "water-penalties", allocs[1].CategoryID)
	assert.Equal(t, "2026-00", allocs[1].Metadata.BillPeriod)
}

func TestBuildAllocations_Deterministic(t *testing.T) {
	in := generic.DistributionInput{
		UnitID:               testUnit,
		PaymentAmount:        800,
		CurrentCreditBalance: 300,
		Bills:                twoBills(),
	}
	d1, _ := newDistributor().Distribute(in)
	d2, _ := newDistributor().Distribute(in)

	a1, s1 := generic.BuildAllocations(d1, generic.WaterCategories)
	a2, s2 := generic.BuildAllocations(d2, generic.WaterCategories)

	assert.Equal(t, a1, a2)
	assert.Equal(t, s1, s2)
}

func TestSummarize_Tolerance(t *testing.T) {
	allocs := []generic.Allocation{{ID: "alloc_001", Type: generic.AllocBillBase, Amount: 10000}}

	assert.True(t, generic.Summarize(allocs, 10100).IntegrityCheck.IsValid, "difference of 100 is within tolerance")

	summary := generic.Summarize(allocs, 10101)
	assert.False(t, summary.IntegrityCheck.IsValid)

	err := summary.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrIntegrityViolation)
	var iv *generic.IntegrityViolationError
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, generic.Cents(10101), iv.Expected)
	assert.Equal(t, generic.Cents(10000), iv.Actual)
}

func TestApplyCategory(t *testing.T) {
	single := generic.Transaction{Allocations: []generic.Allocation{
		{CategoryID: "water-consumption", CategoryName: "Water Consumption"},
	}}
	generic.ApplyCategory(&single)
	assert.Equal(t, "water-consumption", single.CategoryID)

	split := generic.Transaction{Allocations: []generic.Allocation{
		{CategoryID: "water-consumption"}, {CategoryID: "water-penalties"},
	}}
	generic.ApplyCategory(&split)
	assert.Equal(t, generic.SplitCategoryID, split.CategoryID)
	assert.Equal(t, generic.SplitCategoryName, split.CategoryName)
}
