package generic

import (
	"time"
)

// =============================================================================
// DUES RECORD - Periodic dues month ledger
// =============================================================================

// MonthsPerYear is the number of month slots in a dues record.
const MonthsPerYear = 12

// MonthPayment is one month slot of a dues record. Reference is the id of
// the last transaction that paid into the slot; Entries holds every
// contribution so a deletion can remove exactly its own share. Records
// written before entries existed carry only Amount and Reference.
type MonthPayment struct {
	Amount    Cents
	Date      TimePoint
	Reference string
	Notes     string
	Entries   []PaymentEntry
}

// DuesRecord is the dues document of one unit for one fiscal year. Its
// credit balance and history are embedded in the document.
type DuesRecord struct {
	UnitID          UnitID
	FiscalYear      int
	ScheduledAmount Cents // Per month
	Months          [MonthsPerYear]MonthPayment
	CreditBalance   Cents
	CreditHistory   []CreditEntry
	UpdatedAt       time.Time
}

// MonthStatus returns the status of a month slot.
func (r DuesRecord) MonthStatus(month int) BillStatus {
	return StatusFor(r.Months[month].Amount, r.ScheduledAmount)
}

// MonthUnpaid returns what is still owed for a month slot.
func (r DuesRecord) MonthUnpaid(month int) Cents {
	return NonNegative(r.ScheduledAmount - r.Months[month].Amount)
}

// TotalPaid sums all month slots.
func (r DuesRecord) TotalPaid() Cents {
	var total Cents
	for _, m := range r.Months {
		total += m.Amount
	}
	return total
}

// AsBills presents unpaid month slots as zero-penalty bills so the
// distribution engine can walk them.
func (r DuesRecord) AsBills(fiscal FiscalConfig, dueDay int) []Bill {
	var bills []Bill
	for month := 0; month < MonthsPerYear; month++ {
		if r.MonthUnpaid(month) == 0 {
			continue
		}
		period := BillPeriod{FiscalYear: r.FiscalYear, FiscalMonth: month}
		due := fiscal.DueDate(r.FiscalYear, month, dueDay)
		bills = append(bills, Bill{
			UnitID:      r.UnitID,
			ID:          period.BillID(),
			FiscalYear:  r.FiscalYear,
			FiscalMonth: month,
			BaseCharge:  r.ScheduledAmount,
			BasePaid:    r.Months[month].Amount,
			Status:      r.MonthStatus(month),
			DueDate:     due,
		})
	}
	return bills
}

// ApplyMonthPayment records a contribution to a month slot.
func (r *DuesRecord) ApplyMonthPayment(month int, entry PaymentEntry, notes string) {
	slot := &r.Months[month]
	slot.Amount += entry.Amount
	slot.Date = entry.Date
	slot.Reference = string(entry.TransactionID)
	if notes != "" {
		slot.Notes = notes
	}
	slot.Entries = append(slot.Entries, entry)
}

// DuesCleanup reports what ClearTransaction removed.
type DuesCleanup struct {
	ClearedMonths  []int
	AmountCleared  Cents
	CreditReversal CreditReversal
}

// ClearTransaction removes every effect of txID from the record: its month
// contributions and its embedded credit history entries.
func (r *DuesRecord) ClearTransaction(txID TransactionID) DuesCleanup {
	var cleanup DuesCleanup

	for month := range r.Months {
		slot := &r.Months[month]
		removed := clearSlot(slot, txID)
		if removed > 0 {
			cleanup.ClearedMonths = append(cleanup.ClearedMonths, month)
			cleanup.AmountCleared += removed
		}
	}

	before := r.CreditBalance
	balance, kept, removed, net := reverseEntries(r.CreditBalance, r.CreditHistory, txID)
	cleanup.CreditReversal = CreditReversal{
		UnitID:          r.UnitID,
		FiscalYear:      r.FiscalYear,
		TransactionID:   txID,
		Removed:         removed,
		NetReversal:     net,
		PreviousBalance: before,
		NewBalance:      balance,
	}
	if len(removed) > 0 {
		r.CreditBalance = balance
		r.CreditHistory = kept
	}
	return cleanup
}

// clearSlot removes the contributions of txID from a slot and returns the
// amount removed. Legacy slots without entries are cleared only when their
// reference matches.
func clearSlot(slot *MonthPayment, txID TransactionID) Cents {
	if len(slot.Entries) == 0 {
		if slot.Reference != string(txID) || slot.Reference == "" {
			return 0
		}
		removed := slot.Amount
		*slot = MonthPayment{}
		return removed
	}

	var (
		kept    []PaymentEntry
		removed Cents
	)
	for _, e := range slot.Entries {
		if e.TransactionID == txID {
			removed += e.Amount
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0
	}
	if len(kept) == 0 {
		*slot = MonthPayment{}
		return removed
	}
	last := kept[len(kept)-1]
	slot.Entries = kept
	slot.Amount = NonNegative(slot.Amount - removed)
	slot.Date = last.Date
	slot.Reference = string(last.TransactionID)
	return removed
}

// AppendCredit adds an entry to the record's embedded credit history.
func (r *DuesRecord) AppendCredit(entry CreditEntry) {
	entry.BalanceBefore = r.CreditBalance
	entry.BalanceAfter = NonNegative(r.CreditBalance + entry.Effect())
	r.CreditBalance = entry.BalanceAfter
	r.CreditHistory = append(r.CreditHistory, entry)
}

// Clone returns a deep copy.
func (r DuesRecord) Clone() DuesRecord {
	out := r
	for i := range r.Months {
		out.Months[i].Entries = append([]PaymentEntry(nil), r.Months[i].Entries...)
	}
	out.CreditHistory = append([]CreditEntry(nil), r.CreditHistory...)
	return out
}
