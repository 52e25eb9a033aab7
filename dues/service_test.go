package dues_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/dues"
	"github.com/warp/hoa-ledger/generic"
	"github.com/warp/hoa-ledger/generic/store"
)

const unit generic.UnitID = "unit-3"

var now = time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

func ids(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func newService(t *testing.T) (*dues.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveAccount(context.Background(), generic.Account{ID: "bank", Name: "Operating Bank"}))
	svc := &dues.Service{
		Store:       mem,
		Distributor: &generic.PaymentDistributor{Policy: generic.PenaltiesFirst},
		Fiscal:      generic.DefaultFiscalConfig,
		DueDay:      1,
		Audit:       mem,
		NewID:       ids("dues"),
		Clock:       func() time.Time { return now },
	}
	_, err := svc.Schedule(context.Background(), unit, 2026, 5000)
	require.NoError(t, err)
	return svc, mem
}

func duesPayment(amount generic.Cents) generic.PaymentRequest {
	return generic.PaymentRequest{
		UnitID:    unit,
		AccountID: "bank",
		Amount:    amount,
		Method:    generic.MethodCheck,
		Reference: "CHK-100",
		ActorID:   "treasurer",
	}
}

func TestRecordPayment_FillsMonthsOldestFirst(t *testing.T) {
	// GIVEN: Monthly dues of 50.00
	// WHEN: Paying 120.00
	// THEN: January and February are paid, March has 20.00

	svc, mem := newService(t)
	ctx := context.Background()

	result, err := svc.RecordPayment(ctx, 2026, duesPayment(12000))
	require.NoError(t, err)

	record, err := mem.LoadDues(ctx, unit, 2026)
	require.NoError(t, err)
	assert.Equal(t, generic.BillPaid, record.MonthStatus(0))
	assert.Equal(t, generic.BillPaid, record.MonthStatus(1))
	assert.Equal(t, generic.BillPartial, record.MonthStatus(2))
	assert.Equal(t, generic.Cents(2000), record.Months[2].Amount)
	assert.Equal(t, string(result.Transaction.ID), record.Months[0].Reference)

	tx, err := mem.GetTransaction(ctx, result.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.SourceHOADues, tx.Metadata.Source)
	assert.Equal(t, generic.SplitCategoryID, tx.CategoryID)
	require.Len(t, tx.Allocations, 3)
	for _, a := range tx.Allocations {
		assert.Equal(t, "hoa-dues", a.CategoryID)
	}

	account, err := mem.GetAccount(ctx, "bank")
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(12000), account.Balance)
}

func TestRecordPayment_OverpaymentBecomesEmbeddedCredit(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, 2026, duesPayment(61000))
	require.NoError(t, err)

	record, err := mem.LoadDues(ctx, unit, 2026)
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(60000), record.TotalPaid())
	assert.Equal(t, generic.Cents(1000), record.CreditBalance)
	require.Len(t, record.CreditHistory, 1)
	assert.Equal(t, generic.CreditAdded, record.CreditHistory[0].Type)
}

func TestRecordPayment_UsesEmbeddedCredit(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	record, err := mem.LoadDues(ctx, unit, 2026)
	require.NoError(t, err)
	record.AppendCredit(generic.CreditEntry{ID: "opening", Type: generic.CreditAdded, Amount: 3000})
	require.NoError(t, mem.SaveDues(ctx, record))

	result, err := svc.RecordPayment(ctx, 2026, duesPayment(2000))
	require.NoError(t, err)

	assert.Equal(t, generic.Cents(3000), result.Plan.Distribution.CreditUsed)
	record, err = mem.LoadDues(ctx, unit, 2026)
	require.NoError(t, err)
	assert.Equal(t, generic.BillPaid, record.MonthStatus(0))
	assert.Equal(t, generic.Cents(0), record.CreditBalance)
}

func TestRecordPayment_MissingRecord(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.RecordPayment(context.Background(), 2027, duesPayment(5000))

	assert.ErrorIs(t, err, generic.ErrDuesNotFound)
}

func TestRecordPayment_ZeroAmount(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.RecordPayment(context.Background(), 2026, duesPayment(0))

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestRecordPayment_MissingAccount(t *testing.T) {
	svc, _ := newService(t)
	req := duesPayment(5000)
	req.AccountID = ""

	_, err := svc.RecordPayment(context.Background(), 2026, req)

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "account_id", verr.Field)
}

func TestDeleteDuesPayment_RestoresRecord(t *testing.T) {
	// GIVEN: Two dues payments, the second overpaying into credit
	// WHEN: The second is deleted through the compensation engine
	// THEN: Month slots and embedded credit equal the state after the first

	svc, mem := newService(t)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, 2026, duesPayment(7000))
	require.NoError(t, err)
	afterFirst, err := mem.LoadDues(ctx, unit, 2026)
	require.NoError(t, err)

	second, err := svc.RecordPayment(ctx, 2026, duesPayment(60000))
	require.NoError(t, err)

	engine := &generic.CompensationEngine{
		Store:  mem,
		Credit: generic.NewCreditLedger(mem),
		Audit:  mem,
	}
	result, err := engine.DeleteTransaction(ctx, second.Transaction.ID, "treasurer")
	require.NoError(t, err)
	require.NotNil(t, result.Dues)

	restored, err := mem.LoadDues(ctx, unit, 2026)
	require.NoError(t, err)
	for m := 0; m < generic.MonthsPerYear; m++ {
		assert.Equal(t, afterFirst.Months[m].Amount, restored.Months[m].Amount, "month %d", m)
		assert.Equal(t, afterFirst.Months[m].Reference, restored.Months[m].Reference, "month %d", m)
	}
	assert.Equal(t, afterFirst.CreditBalance, restored.CreditBalance)
	assert.Empty(t, restored.CreditHistory)
}

func TestStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.RecordPayment(ctx, 2026, duesPayment(7500))
	require.NoError(t, err)

	status, err := svc.Status(ctx, unit, 2026)

	require.NoError(t, err)
	require.Len(t, status.Months, 12)
	assert.Equal(t, generic.BillPaid, status.Months[0].Status)
	assert.Equal(t, generic.BillPartial, status.Months[1].Status)
	assert.Equal(t, generic.Cents(2500), status.Months[1].Unpaid)
	assert.Equal(t, generic.NewTimePoint(2026, time.February, 1), status.Months[1].DueDate)
	assert.Equal(t, generic.Cents(7500), status.TotalPaid)
	assert.Equal(t, generic.Cents(60000-7500), status.TotalDue)
}

func TestSchedule_Validation(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Schedule(context.Background(), unit, 2026, 0)

	assert.ErrorIs(t, err, generic.ErrValidation)
}
