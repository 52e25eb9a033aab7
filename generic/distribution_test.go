package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/generic"
)

func newDistributor() *generic.PaymentDistributor {
	return &generic.PaymentDistributor{Policy: generic.PenaltiesFirst, Penalties: testPenalties()}
}

func twoBills() []generic.Bill {
	return []generic.Bill{waterBill(0, 500, 0), waterBill(1, 700, 0)}
}

// assertConserved checks both conservation identities exactly.
func assertConserved(t *testing.T, d generic.Distribution) {
	t.Helper()
	var paid generic.Cents
	for _, s := range d.BillSettlements {
		paid += s.AmountPaid
	}
	assert.Equal(t, d.TotalPaidToBills, paid)
	assert.Equal(t, d.PaymentAmount, paid+d.Overpayment-d.CreditUsed, "payment conservation")
	assert.Equal(t, d.CurrentCreditBalance-d.NewCreditBalance, d.CreditUsed-d.Overpayment, "credit conservation")
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestDistribute_FullPaymentAcrossTwoBills(t *testing.T) {
	// GIVEN: Bill A 500 and Bill B 700, no credit
	// WHEN: Paying exactly 1200
	// THEN: Both bills paid, no overpayment, credit stays 0

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 1200,
		Bills:         twoBills(),
	})

	require.NoError(t, err)
	require.Len(t, d.BillSettlements, 2)
	assert.Equal(t, generic.BillPaid, d.BillSettlements[0].NewStatus)
	assert.Equal(t, generic.BillPaid, d.BillSettlements[1].NewStatus)
	assert.Equal(t, generic.Cents(0), d.Overpayment)
	assert.Equal(t, generic.Cents(0), d.CreditUsed)
	assert.Equal(t, generic.Cents(0), d.NewCreditBalance)
	assert.Equal(t, generic.Cents(1200), d.TotalBillsDue)
	assertConserved(t, d)
}

func TestDistribute_CreditCoversShortfall(t *testing.T) {
	// GIVEN: Bills totalling 1200 and a credit balance of 300
	// WHEN: Paying 900
	// THEN: Credit covers the 300 shortfall and is exhausted

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:               testUnit,
		PaymentAmount:        900,
		CurrentCreditBalance: 300,
		Bills:                twoBills(),
	})

	require.NoError(t, err)
	assert.Equal(t, generic.BillPaid, d.BillSettlements[0].NewStatus)
	assert.Equal(t, generic.BillPaid, d.BillSettlements[1].NewStatus)
	assert.Equal(t, generic.Cents(300), d.CreditUsed)
	assert.Equal(t, generic.Cents(0), d.Overpayment)
	assert.Equal(t, generic.Cents(0), d.NewCreditBalance)
	assertConserved(t, d)
}

func TestDistribute_UnderpaymentDrawsAllCredit(t *testing.T) {
	// GIVEN: Bills totalling 1200 and a credit balance of 300
	// WHEN: Paying 800 (1100 available)
	// THEN: Bill A paid, Bill B partial with 600, all credit used

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:               testUnit,
		PaymentAmount:        800,
		CurrentCreditBalance: 300,
		Bills:                twoBills(),
	})

	require.NoError(t, err)
	assert.Equal(t, generic.BillPaid, d.BillSettlements[0].NewStatus)
	assert.Equal(t, generic.BillPartial, d.BillSettlements[1].NewStatus)
	assert.Equal(t, generic.Cents(600), d.BillSettlements[1].AmountPaid)
	assert.Equal(t, generic.Cents(300), d.CreditUsed)
	assert.Equal(t, generic.Cents(0), d.NewCreditBalance)
	assertConserved(t, d)
}

func TestDistribute_Overpayment_GoesToCredit(t *testing.T) {
	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:               testUnit,
		PaymentAmount:        1500,
		CurrentCreditBalance: 50,
		Bills:                twoBills(),
	})

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(300), d.Overpayment)
	assert.Equal(t, generic.Cents(0), d.CreditUsed)
	assert.Equal(t, generic.Cents(350), d.NewCreditBalance)
	assertConserved(t, d)
}

// =============================================================================
// PARTIAL PAYMENT POLICY
// =============================================================================

func TestDistribute_PartialPayment_PenaltiesFirst(t *testing.T) {
	// GIVEN: A bill with unpaid base 1000 and unpaid penalty 300
	// WHEN: Paying 100
	// THEN: All 100 settles the penalty

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 100,
		Bills:         []generic.Bill{waterBill(0, 1000, 300)},
	})

	require.NoError(t, err)
	s := d.BillSettlements[0]
	assert.Equal(t, generic.Cents(100), s.PenaltyPaid)
	assert.Equal(t, generic.Cents(0), s.BaseChargePaid)
	assert.Equal(t, generic.BillPartial, s.NewStatus)
}

func TestDistribute_PartialPayment_BaseFirstPolicy(t *testing.T) {
	pd := &generic.PaymentDistributor{Policy: generic.BaseFirst}

	d, err := pd.Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 1100,
		Bills:         []generic.Bill{waterBill(0, 1000, 300)},
	})

	require.NoError(t, err)
	s := d.BillSettlements[0]
	assert.Equal(t, generic.Cents(1000), s.BaseChargePaid)
	assert.Equal(t, generic.Cents(100), s.PenaltyPaid)
}

func TestDistribute_PartialStopsTheWalk(t *testing.T) {
	// GIVEN: Three bills 500, 700, 300
	// WHEN: Paying 600
	// THEN: First paid, second partial 100, third untouched

	bills := []generic.Bill{waterBill(0, 500, 0), waterBill(1, 700, 0), waterBill(2, 300, 0)}

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 600,
		Bills:         bills,
	})

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(500), d.BillSettlements[0].AmountPaid)
	assert.Equal(t, generic.Cents(100), d.BillSettlements[1].AmountPaid)
	assert.Equal(t, generic.Cents(0), d.BillSettlements[2].AmountPaid)
	assert.Equal(t, generic.BillUnpaid, d.BillSettlements[2].NewStatus)
	assert.Len(t, d.PaidSettlements(), 2)
}

func TestDistribute_WalksOldestFirstRegardlessOfInputOrder(t *testing.T) {
	bills := []generic.Bill{waterBill(2, 300, 0), waterBill(0, 500, 0)}

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 500,
		Bills:         bills,
	})

	require.NoError(t, err)
	assert.Equal(t, generic.BillID("2026-00"), d.BillSettlements[0].BillID)
	assert.Equal(t, generic.BillPaid, d.BillSettlements[0].NewStatus)
	assert.Equal(t, generic.Cents(0), d.BillSettlements[1].AmountPaid)
}

func TestDistribute_PartiallyPaidBill_OnlyRemainderDue(t *testing.T) {
	bill := waterBill(0, 1000, 200)
	bill.BasePaid = 400
	bill.PenaltyPaid = 200
	bill.Status = generic.BillPartial

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 600,
		Bills:         []generic.Bill{bill},
	})

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(600), d.TotalBillsDue)
	assert.Equal(t, generic.Cents(600), d.BillSettlements[0].BaseChargePaid)
	assert.Equal(t, generic.BillPaid, d.BillSettlements[0].NewStatus)
}

// =============================================================================
// EDGE CASES
// =============================================================================

func TestDistribute_NoBills_EverythingToCredit(t *testing.T) {
	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:               testUnit,
		PaymentAmount:        500,
		CurrentCreditBalance: 100,
	})

	require.NoError(t, err)
	assert.Empty(t, d.BillSettlements)
	assert.Equal(t, generic.Cents(500), d.Overpayment)
	assert.Equal(t, generic.Cents(600), d.NewCreditBalance)
	assertConserved(t, d)
}

func TestDistribute_NoBillsZeroPaymentWithCredit_NoOp(t *testing.T) {
	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:               testUnit,
		CurrentCreditBalance: 300,
	})

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(0), d.CreditUsed)
	assert.Equal(t, generic.Cents(0), d.Overpayment)
	assert.Equal(t, generic.Cents(300), d.NewCreditBalance)
}

func TestDistribute_MonthCutoff_ExcludesLaterBills(t *testing.T) {
	bills := []generic.Bill{waterBill(0, 500, 0), waterBill(1, 700, 0), waterBill(2, 300, 0)}

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 1500,
		Bills:         bills,
		MonthCutoff:   intPtr(1),
	})

	require.NoError(t, err)
	require.Len(t, d.BillSettlements, 2)
	assert.Equal(t, []generic.BillID{"2026-02"}, d.ExcludedBills)
	assert.Equal(t, generic.Cents(1200), d.TotalBillsDue)
	assert.Equal(t, generic.Cents(300), d.Overpayment)
	assertConserved(t, d)
}

func TestDistribute_Backdated_RecomputesPenalties(t *testing.T) {
	// GIVEN: A bill due Jan 10 with a stale stored penalty of 0
	// WHEN: Paying as of Mar 10 (two months late), while today is Jun 1
	// THEN: The penalty is recomputed as of Mar 10

	bill := waterBill(0, 100000, 0)

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 110250,
		Bills:         []generic.Bill{bill},
		AsOf:          generic.NewTimePoint(2026, time.March, 10),
		Today:         generic.NewTimePoint(2026, time.June, 1),
	})

	require.NoError(t, err)
	assert.True(t, d.Backdated)
	s := d.BillSettlements[0]
	assert.True(t, s.Recomputed)
	assert.Equal(t, generic.Cents(10250), s.Penalty)
	assert.Equal(t, generic.BillPaid, s.NewStatus)
	assert.Equal(t, generic.Cents(0), d.Overpayment)
}

func TestDistribute_AsOfToday_NotBackdated(t *testing.T) {
	bill := waterBill(0, 100000, 1234)
	today := generic.NewTimePoint(2026, time.June, 1)

	d, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 100,
		Bills:         []generic.Bill{bill},
		AsOf:          today,
		Today:         today,
	})

	require.NoError(t, err)
	assert.False(t, d.Backdated)
	assert.Equal(t, generic.Cents(1234), d.BillSettlements[0].Penalty)
}

func TestDistribute_NegativeInputs_Rejected(t *testing.T) {
	_, err := newDistributor().Distribute(generic.DistributionInput{UnitID: testUnit, PaymentAmount: -1})
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = newDistributor().Distribute(generic.DistributionInput{UnitID: testUnit, CurrentCreditBalance: -1})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestDistribute_IdenticalInputs_IdenticalOutput(t *testing.T) {
	in := generic.DistributionInput{
		UnitID:               testUnit,
		PaymentAmount:        800,
		CurrentCreditBalance: 300,
		Bills:                twoBills(),
		AsOf:                 generic.NewTimePoint(2026, time.April, 1),
		Today:                generic.NewTimePoint(2026, time.June, 1),
	}

	first, err := newDistributor().Distribute(in)
	require.NoError(t, err)
	second, err := newDistributor().Distribute(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDistribute_DoesNotMutateInput(t *testing.T) {
	bills := twoBills()
	before := []generic.Bill{bills[0].Clone(), bills[1].Clone()}

	_, err := newDistributor().Distribute(generic.DistributionInput{
		UnitID:        testUnit,
		PaymentAmount: 5000,
		Bills:         bills,
		AsOf:          generic.NewTimePoint(2026, time.December, 1),
	})

	require.NoError(t, err)
	assert.Equal(t, before, bills)
}

func TestDistribute_Conservation_Table(t *testing.T) {
	bills := []generic.Bill{waterBill(0, 12345, 678), waterBill(1, 50000, 0), waterBill(2, 999, 1)}

	for _, payment := range []generic.Cents{0, 1, 678, 13023, 40000, 64023, 100000} {
		for _, credit := range []generic.Cents{0, 1, 5000, 64023, 90000} {
			d, err := newDistributor().Distribute(generic.DistributionInput{
				UnitID:               testUnit,
				PaymentAmount:        payment,
				CurrentCreditBalance: credit,
				Bills:                bills,
			})
			require.NoError(t, err)
			assertConserved(t, d)
			assert.GreaterOrEqual(t, d.NewCreditBalance, generic.Cents(0))
		}
	}
}
