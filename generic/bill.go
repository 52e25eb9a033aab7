package generic

import (
	"sort"
	"time"
)

// =============================================================================
// BILL - One charge period for one unit
// =============================================================================

type BillStatus string

const (
	BillUnpaid  BillStatus = "unpaid"
	BillPartial BillStatus = "partial"
	BillPaid    BillStatus = "paid"
)

// Bill is a single period's charge. The paid fields are derived from the
// payment entries: BasePaid = sum(BaseChargePaid), PenaltyPaid = sum(PenaltyPaid).
type Bill struct {
	UnitID      UnitID
	ID          BillID // Period key, see BillPeriod
	FiscalYear  int
	FiscalMonth int

	BaseCharge    Cents
	PenaltyAmount Cents
	BasePaid      Cents
	PenaltyPaid   Cents
	Status        BillStatus
	Payments      []PaymentEntry

	DueDate TimePoint

	// Water metadata; zero for non-metered bills.
	PreviousReading int64
	CurrentReading  int64
	Consumption     int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentEntry is one payment applied to a bill. Entries are only ever
// appended, except when a deletion removes the entries of its transaction.
type PaymentEntry struct {
	Amount         Cents
	BaseChargePaid Cents
	PenaltyPaid    Cents
	Date           TimePoint
	Method         PaymentMethod
	Reference      string
	TransactionID  TransactionID
	RecordedAt     time.Time
}

func (b Bill) Period() BillPeriod {
	return BillPeriod{FiscalYear: b.FiscalYear, FiscalMonth: b.FiscalMonth}
}

func (b Bill) TotalAmount() Cents { return b.BaseCharge + b.PenaltyAmount }
func (b Bill) PaidAmount() Cents  { return b.BasePaid + b.PenaltyPaid }

func (b Bill) UnpaidTotal() Cents   { return NonNegative(b.TotalAmount() - b.PaidAmount()) }
func (b Bill) UnpaidBase() Cents    { return NonNegative(b.BaseCharge - b.BasePaid) }
func (b Bill) UnpaidPenalty() Cents { return NonNegative(b.PenaltyAmount - b.PenaltyPaid) }

// StatusFor is the single status rule for every bill-like document.
// A zero-total bill counts as paid.
func StatusFor(paid, total Cents) BillStatus {
	switch {
	case paid >= total:
		return BillPaid
	case paid > 0:
		return BillPartial
	default:
		return BillUnpaid
	}
}

// RecomputeStatus refreshes Status from the paid fields.
func (b *Bill) RecomputeStatus() {
	b.Status = StatusFor(b.PaidAmount(), b.TotalAmount())
}

// ApplyPayment appends entry and adds its split to the paid fields.
func (b *Bill) ApplyPayment(entry PaymentEntry) {
	b.Payments = append(b.Payments, entry)
	b.BasePaid += entry.BaseChargePaid
	b.PenaltyPaid += entry.PenaltyPaid
	b.RecomputeStatus()
}

// RemovePaymentsFor removes the entries of a transaction and subtracts them
// from the paid fields, clamping at zero. It returns the removed entries.
func (b *Bill) RemovePaymentsFor(txID TransactionID) []PaymentEntry {
	var removed []PaymentEntry
	kept := b.Payments[:0:0]
	for _, p := range b.Payments {
		if p.TransactionID == txID {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	if len(removed) == 0 {
		return nil
	}
	for _, p := range removed {
		b.BasePaid = NonNegative(b.BasePaid - p.BaseChargePaid)
		b.PenaltyPaid = NonNegative(b.PenaltyPaid - p.PenaltyPaid)
	}
	b.Payments = kept
	b.RecomputeStatus()
	return removed
}

// HasPaymentFrom reports whether any entry references txID.
func (b Bill) HasPaymentFrom(txID TransactionID) bool {
	for _, p := range b.Payments {
		if p.TransactionID == txID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy (the payments slice is not shared).
func (b Bill) Clone() Bill {
	out := b
	if b.Payments != nil {
		out.Payments = append([]PaymentEntry(nil), b.Payments...)
	}
	return out
}

// SortBillsOldestFirst orders bills by fiscal period.
func SortBillsOldestFirst(bills []Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].Period().Before(bills[j].Period())
	})
}
