package generic_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/generic"
)

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_DoesNotWrite(t *testing.T) {
	env := newTestEnv(t, waterBill(0, 50000, 0), waterBill(1, 70000, 0))
	env.seedCredit(t, 30000)
	ctx := context.Background()

	plan, err := env.payments.Preview(ctx, payment(80000))

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(30000), plan.Distribution.CreditUsed)
	assert.Equal(t, 2026, plan.FiscalYear)
	assert.Len(t, plan.Allocations, 3)

	for _, b := range env.bills(t) {
		assert.Equal(t, generic.BillUnpaid, b.Status)
		assert.Empty(t, b.Payments)
	}
	assert.Equal(t, generic.Cents(30000), env.credit(t).CurrentBalance)
	txs, err := env.store.ListTransactions(ctx, testUnit)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Empty(t, env.refresher.periods(testUnit))
}

func TestPreview_ZeroAmount_UsesCredit(t *testing.T) {
	env := newTestEnv(t, waterBill(0, 50000, 0))
	env.seedCredit(t, 20000)

	plan, err := env.payments.Preview(context.Background(), payment(0))

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(20000), plan.Distribution.CreditUsed)
	assert.Equal(t, generic.Cents(20000), plan.Distribution.TotalPaidToBills)
}

func TestPreview_NegativeAmount_Rejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.payments.Preview(context.Background(), payment(-1))

	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// RECORD
// =============================================================================

func TestRecord_UnderpaymentWithCredit(t *testing.T) {
	// GIVEN: Bills of 500.00 and 700.00, credit 300.00
	// WHEN: Recording a payment of 800.00
	// THEN: Bill A paid, Bill B partial with 600.00, credit 0,
	//       a credit_used entry carries the transaction id

	env := newTestEnv(t, waterBill(0, 50000, 0), waterBill(1, 70000, 0))
	env.seedCredit(t, 30000)
	ctx := context.Background()

	result, err := env.payments.Record(ctx, payment(80000))
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	bills := env.bills(t)
	require.Len(t, bills, 2)
	assert.Equal(t, generic.BillPaid, bills[0].Status)
	assert.Equal(t, generic.Cents(50000), bills[0].BasePaid)
	assert.Equal(t, generic.BillPartial, bills[1].Status)
	assert.Equal(t, generic.Cents(60000), bills[1].BasePaid)
	require.Len(t, bills[1].Payments, 1)
	assert.Equal(t, result.Transaction.ID, bills[1].Payments[0].TransactionID)

	credit := env.credit(t)
	assert.Equal(t, generic.Cents(0), credit.CurrentBalance)
	used := credit.EntriesFor(result.Transaction.ID)
	require.Len(t, used, 1)
	assert.Equal(t, generic.CreditUsed, used[0].Type)
	assert.Equal(t, generic.Cents(30000), used[0].Amount)

	tx, err := env.store.GetTransaction(ctx, result.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(80000), tx.Amount)
	assert.Equal(t, generic.SplitCategoryID, tx.CategoryID)
	assert.Equal(t, generic.SourceWaterBills, tx.Metadata.Source)
	assert.Equal(t, generic.Cents(30000), tx.Metadata.CreditUsed)
	assert.Len(t, tx.Metadata.BillPayments, 2)
	assert.True(t, tx.AllocationSummary.IntegrityCheck.IsValid)

	account, err := env.store.GetAccount(ctx, "bank")
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(80000), account.Balance)

	assert.ElementsMatch(t, []generic.BillPeriod{
		{FiscalYear: 2026, FiscalMonth: 0},
		{FiscalYear: 2026, FiscalMonth: 1},
	}, env.refresher.periods(testUnit))

	audit, err := env.store.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditPaymentRecorded}})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "treasurer", audit[0].ActorID)
}

func TestRecord_Overpayment_AddsCredit(t *testing.T) {
	env := newTestEnv(t, waterBill(0, 50000, 0), waterBill(1, 70000, 0))

	result, err := env.payments.Record(context.Background(), payment(150000))

	require.NoError(t, err)
	for _, b := range env.bills(t) {
		assert.Equal(t, generic.BillPaid, b.Status)
	}
	credit := env.credit(t)
	assert.Equal(t, generic.Cents(30000), credit.CurrentBalance)
	require.Len(t, result.CreditEntries, 1)
	assert.Equal(t, generic.CreditAdded, result.CreditEntries[0].Type)
	assert.Equal(t, result.Transaction.ID, result.CreditEntries[0].TransactionID)
}

func TestRecord_ZeroAmount_Rejected(t *testing.T) {
	env := newTestEnv(t, waterBill(0, 50000, 0))

	_, err := env.payments.Record(context.Background(), payment(0))

	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.True(t, generic.IsClientError(err))
	assert.Empty(t, env.bills(t)[0].Payments)
}

func TestRecord_MissingUnit_Rejected(t *testing.T) {
	env := newTestEnv(t)
	req := payment(1000)
	req.UnitID = ""

	_, err := env.payments.Record(context.Background(), req)

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit_id", verr.Field)
}

func TestRecord_MissingAccount_Rejected(t *testing.T) {
	env := newTestEnv(t, waterBill(0, 50000, 0))
	req := payment(50000)
	req.AccountID = ""

	_, err := env.payments.Record(context.Background(), req)

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "account_id", verr.Field)
	assert.Empty(t, env.bills(t)[0].Payments)
}

func TestRecord_Backdated_PersistsRecomputedPenalty(t *testing.T) {
	// GIVEN: A 1000.00 bill due Jan 10 with no stored penalty
	// WHEN: Paying 1050.00 as of Feb 10 (one month late, today is Feb 15)
	// THEN: The 5% penalty is stored on the bill and fully paid

	env := newTestEnv(t, waterBill(0, 100000, 0))
	req := payment(105000)
	req.AsOf = generic.NewTimePoint(2026, time.February, 10)

	result, err := env.payments.Record(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Transaction.Metadata.Backdated)
	bill := env.bills(t)[0]
	assert.Equal(t, generic.Cents(5000), bill.PenaltyAmount)
	assert.Equal(t, generic.Cents(5000), bill.PenaltyPaid)
	assert.Equal(t, generic.Cents(100000), bill.BasePaid)
	assert.Equal(t, generic.BillPaid, bill.Status)
	assert.Equal(t, generic.Cents(0), env.credit(t).CurrentBalance)
}

func TestRecord_MissingAccount_Warns(t *testing.T) {
	env := newTestEnv(t, waterBill(0, 50000, 0))
	req := payment(50000)
	req.AccountID = "petty-cash"

	result, err := env.payments.Record(context.Background(), req)

	require.NoError(t, err, "account adjustment is best effort")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "account adjustment")
	assert.Equal(t, generic.BillPaid, env.bills(t)[0].Status)
}

func TestRecord_NoBills_AllCredit(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.payments.Record(context.Background(), payment(25000))

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(25000), result.Plan.Distribution.Overpayment)
	require.Len(t, result.Transaction.Allocations, 1)
	assert.Equal(t, "account-credit", result.Transaction.CategoryID)
	assert.Equal(t, generic.Cents(25000), env.credit(t).CurrentBalance)
}

func TestRecord_ConcurrentPayments_NoLostUpdate(t *testing.T) {
	// GIVEN: One bill of 1000.00
	// WHEN: Two payments of 500.00 run concurrently
	// THEN: Both land; the bill is paid with two entries and no credit

	env := newTestEnv(t, waterBill(0, 100000, 0))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.payments.Record(ctx, payment(50000))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bill := env.bills(t)[0]
	assert.Equal(t, generic.Cents(100000), bill.BasePaid)
	assert.Len(t, bill.Payments, 2)
	assert.Equal(t, generic.BillPaid, bill.Status)
	assert.Equal(t, generic.Cents(0), env.credit(t).CurrentBalance)
}

func TestRecord_ConcurrentPayments_CreditSpentOnce(t *testing.T) {
	// GIVEN: Two bills of 1000.00 and credit 300.00
	// WHEN: Two payments of 700.00 run concurrently
	// THEN: The credit is used by exactly one of them; bills receive the
	//       1700.00 available and nothing more

	env := newTestEnv(t, waterBill(0, 100000, 0), waterBill(1, 100000, 0))
	env.seedCredit(t, 30000)
	ctx := context.Background()

	start := make(chan struct{})
	results := make([]*generic.PaymentResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = env.payments.Record(ctx, payment(70000))
		}(i)
	}
	close(start)
	wg.Wait()

	var used generic.Cents
	for i := range results {
		require.NoError(t, errs[i])
		assert.Empty(t, results[i].Warnings)
		used += results[i].Plan.Distribution.CreditUsed
	}
	assert.Equal(t, generic.Cents(30000), used)

	var paid generic.Cents
	for _, b := range env.bills(t) {
		paid += b.PaidAmount()
	}
	assert.Equal(t, generic.Cents(170000), paid)

	credit := env.credit(t)
	assert.Equal(t, generic.Cents(0), credit.CurrentBalance)
	assert.Equal(t, credit.CurrentBalance, credit.Replay())
}

// applyFailingStore hands WithTx callers a view whose ApplyBillPayment fails.
type applyFailingStore struct {
	generic.TxStore
}

func (f applyFailingStore) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return f.TxStore.WithTx(ctx, func(s generic.Store) error {
		return fn(applyFailingView{Store: s})
	})
}

type applyFailingView struct {
	generic.Store
}

func (applyFailingView) ApplyBillPayment(context.Context, generic.UnitID, generic.BillID, generic.PaymentEntry) (generic.Bill, error) {
	return generic.Bill{}, errDiskFull
}

func TestRecord_BillWriteFails_CreditUntouched(t *testing.T) {
	// GIVEN: Credit 300.00 and a bill write that fails
	// WHEN: Recording a payment that would use the credit
	// THEN: The error surfaces and neither credit nor transactions change

	env := newTestEnv(t, waterBill(0, 50000, 0), waterBill(1, 70000, 0))
	env.seedCredit(t, 30000)
	env.payments.Store = applyFailingStore{TxStore: env.store}
	ctx := context.Background()

	_, err := env.payments.Record(ctx, payment(80000))

	require.ErrorIs(t, err, errDiskFull)
	credit := env.credit(t)
	assert.Equal(t, generic.Cents(30000), credit.CurrentBalance)
	assert.Len(t, credit.History, 1)
	txs, err := env.store.ListTransactions(ctx, testUnit)
	require.NoError(t, err)
	assert.Empty(t, txs)
}
