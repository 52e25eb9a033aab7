package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/generic"
)

func duesRecord() generic.DuesRecord {
	return generic.DuesRecord{UnitID: testUnit, FiscalYear: 2026, ScheduledAmount: 5000}
}

func duesEntry(txID generic.TransactionID, amount generic.Cents) generic.PaymentEntry {
	return generic.PaymentEntry{Amount: amount, BaseChargePaid: amount, TransactionID: txID}
}

func TestDuesRecord_AsBills_SkipsPaidMonths(t *testing.T) {
	record := duesRecord()
	record.ApplyMonthPayment(0, duesEntry("tx-1", 5000), "")
	record.ApplyMonthPayment(1, duesEntry("tx-1", 2000), "")

	bills := record.AsBills(generic.DefaultFiscalConfig, 10)

	require.Len(t, bills, 11)
	assert.Equal(t, generic.BillID("2026-01"), bills[0].ID)
	assert.Equal(t, generic.Cents(2000), bills[0].BasePaid)
	assert.Equal(t, generic.BillPartial, bills[0].Status)
	assert.Equal(t, generic.NewTimePoint(2026, time.February, 10), bills[0].DueDate)
	assert.Equal(t, generic.Cents(0), bills[0].PenaltyAmount)
}

func TestDuesRecord_AsBills_DueDayClampedToMonthEnd(t *testing.T) {
	record := duesRecord()

	bills := record.AsBills(generic.DefaultFiscalConfig, 31)

	assert.Equal(t, generic.NewTimePoint(2026, time.February, 28), bills[1].DueDate)
}

func TestDuesRecord_ClearTransaction_SharedMonth(t *testing.T) {
	// GIVEN: Month 0 paid by tx-1 (3000) and tx-2 (2000)
	// WHEN: Clearing tx-2
	// THEN: Only tx-2's share leaves the slot; the reference falls back to tx-1

	record := duesRecord()
	record.ApplyMonthPayment(0, duesEntry("tx-1", 3000), "")
	record.ApplyMonthPayment(0, duesEntry("tx-2", 2000), "")
	require.Equal(t, generic.BillPaid, record.MonthStatus(0))

	cleanup := record.ClearTransaction("tx-2")

	assert.Equal(t, []int{0}, cleanup.ClearedMonths)
	assert.Equal(t, generic.Cents(2000), cleanup.AmountCleared)
	assert.Equal(t, generic.Cents(3000), record.Months[0].Amount)
	assert.Equal(t, "tx-1", record.Months[0].Reference)
	assert.Equal(t, generic.BillPartial, record.MonthStatus(0))
}

func TestDuesRecord_ClearTransaction_LegacySlot(t *testing.T) {
	// Legacy slots carry only amount and reference
	record := duesRecord()
	record.Months[3] = generic.MonthPayment{Amount: 5000, Reference: "legacy-tx"}
	record.Months[4] = generic.MonthPayment{Amount: 5000, Reference: "other-tx"}

	cleanup := record.ClearTransaction("legacy-tx")

	assert.Equal(t, []int{3}, cleanup.ClearedMonths)
	assert.Equal(t, generic.MonthPayment{}, record.Months[3])
	assert.Equal(t, generic.Cents(5000), record.Months[4].Amount)
}

func TestDuesRecord_ClearTransaction_ReversesEmbeddedCredit(t *testing.T) {
	record := duesRecord()
	record.AppendCredit(generic.CreditEntry{ID: "c1", TransactionID: "tx-1", Type: generic.CreditAdded, Amount: 4000})
	record.AppendCredit(generic.CreditEntry{ID: "c2", TransactionID: "tx-2", Type: generic.CreditUsed, Amount: 1500})
	require.Equal(t, generic.Cents(2500), record.CreditBalance)

	cleanup := record.ClearTransaction("tx-2")

	assert.True(t, cleanup.CreditReversal.Touched())
	assert.Equal(t, generic.Cents(1500), cleanup.CreditReversal.NetReversal)
	assert.Equal(t, generic.Cents(4000), record.CreditBalance)
	require.Len(t, record.CreditHistory, 1)
	assert.Equal(t, "c1", record.CreditHistory[0].ID)
}

func TestDuesRecord_Clone_IsDeep(t *testing.T) {
	record := duesRecord()
	record.ApplyMonthPayment(0, duesEntry("tx-1", 5000), "")

	clone := record.Clone()
	clone.Months[0].Entries[0].Amount = 1

	assert.Equal(t, generic.Cents(5000), record.Months[0].Entries[0].Amount)
}
