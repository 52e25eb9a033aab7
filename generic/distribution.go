/*
distribution.go - Splits one payment plus prepaid credit across unpaid bills

PURPOSE:
  A unit pays an amount; it may also hold a prepaid credit balance. The
  distributor walks the unit's unpaid bills oldest-first and decides how
  much of each bill's base charge and penalty the money settles, how much
  credit is drawn, and how much is left over as new credit.

  Distribute is a pure function of its input: it reads no clock, creates
  no ids, and touches no storage. The same plan serves a preview (nothing
  written) and a recorded payment (plan written by PaymentService).

WALK:
  available = payment + credit
  for each bill, oldest first:
    available >= unpaid  -> settle in full
    available > 0        -> settle partially per PartialPolicy, then stop
    otherwise            -> untouched

CREDIT OUTCOME (payment compared to total bills due):
  payment <  due: creditUsed = min(due - payment, credit), overpayment = 0
  payment >= due: overpayment = payment - due,            creditUsed = 0
  newCredit = credit - creditUsed + overpayment

CONSERVATION (exact, no tolerance):
  TotalPaidToBills + Overpayment - CreditUsed = PaymentAmount
  CreditUsed - Overpayment = CurrentCreditBalance - NewCreditBalance

SEE ALSO:
  - allocation.go: Turns a Distribution into allocations
  - payment.go: Preview and Record
  - metered.go: PenaltyPolicy used in backdated mode
*/
package generic

// =============================================================================
// PARTIAL PAYMENT POLICY
// =============================================================================

// PartialPolicy decides which part of a bill a partial payment settles first.
type PartialPolicy string

const (
	PenaltiesFirst PartialPolicy = "penalties_first"
	BaseFirst      PartialPolicy = "base_first"
)

// Valid reports whether p is a known policy. The empty policy means PenaltiesFirst.
func (p PartialPolicy) Valid() bool {
	return p == "" || p == PenaltiesFirst || p == BaseFirst
}

// split divides funds between the unpaid base and penalty of a bill.
func (p PartialPolicy) split(funds, unpaidBase, unpaidPenalty Cents) (base, penalty Cents) {
	if p == BaseFirst {
		base = MinCents(funds, unpaidBase)
		penalty = MinCents(funds-base, unpaidPenalty)
		return base, penalty
	}
	penalty = MinCents(funds, unpaidPenalty)
	base = MinCents(funds-penalty, unpaidBase)
	return base, penalty
}

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// DistributionInput is everything Distribute needs. Bills must be unpaid or
// partial bills of one unit; they are walked oldest-first regardless of order.
type DistributionInput struct {
	UnitID               UnitID
	PaymentAmount        Cents
	CurrentCreditBalance Cents
	Bills                []Bill

	// AsOf enables backdated mode when set and different from Today.
	AsOf  TimePoint
	Today TimePoint

	// MonthCutoff excludes bills whose fiscal month index exceeds it.
	MonthCutoff *int
}

// BillSettlement is the plan for one bill.
type BillSettlement struct {
	BillID        BillID
	Period        BillPeriod
	BaseCharge    Cents
	Penalty       Cents // Penalty used for the walk (recomputed in backdated mode)
	StoredPenalty Cents // Penalty on the bill before the walk
	Recomputed    bool  // Penalty differs from the stored value
	UnpaidBase    Cents
	UnpaidTotal   Cents

	BaseChargePaid Cents
	PenaltyPaid    Cents
	AmountPaid     Cents

	PreviousStatus BillStatus
	NewStatus      BillStatus
}

// Distribution is the plan produced for one payment.
type Distribution struct {
	UnitID        UnitID
	PaymentAmount Cents

	BillSettlements []BillSettlement
	ExcludedBills   []BillID // Removed by MonthCutoff

	TotalBillsDue    Cents
	TotalBaseCharges Cents // Base charge portion paid
	TotalPenalties   Cents // Penalty portion paid
	TotalPaidToBills Cents

	CreditUsed           Cents
	Overpayment          Cents
	CurrentCreditBalance Cents
	NewCreditBalance     Cents

	Backdated bool
	AsOf      TimePoint
}

// PaidSettlements returns the settlements that received money.
func (d Distribution) PaidSettlements() []BillSettlement {
	var out []BillSettlement
	for _, s := range d.BillSettlements {
		if s.AmountPaid > 0 {
			out = append(out, s)
		}
	}
	return out
}

// CreditDelta is the signed change of the credit balance.
func (d Distribution) CreditDelta() Cents {
	return d.NewCreditBalance - d.CurrentCreditBalance
}

// =============================================================================
// PAYMENT DISTRIBUTOR
// =============================================================================

// PaymentDistributor determines how a payment is split across bills.
type PaymentDistributor struct {
	Policy    PartialPolicy
	Penalties PenaltyPolicy // Used only in backdated mode
}

// Distribute computes a distribution plan. It never mutates the input bills.
func (pd *PaymentDistributor) Distribute(in DistributionInput) (Distribution, error) {
	if in.PaymentAmount < 0 {
		return Distribution{}, newValidationError("payment_amount", "must be non-negative, got %s", in.PaymentAmount)
	}
	if in.CurrentCreditBalance < 0 {
		return Distribution{}, newValidationError("credit_balance", "must be non-negative, got %s", in.CurrentCreditBalance)
	}
	if !pd.Policy.Valid() {
		return Distribution{}, newValidationError("partial_policy", "unknown policy %q", pd.Policy)
	}

	dist := Distribution{
		UnitID:               in.UnitID,
		PaymentAmount:        in.PaymentAmount,
		CurrentCreditBalance: in.CurrentCreditBalance,
		Backdated:            !in.AsOf.IsZero() && (in.Today.IsZero() || !in.AsOf.Equal(in.Today)),
		AsOf:                 in.AsOf,
	}

	// 1. Order and filter
	bills := make([]Bill, 0, len(in.Bills))
	for _, b := range in.Bills {
		if in.MonthCutoff != nil && b.FiscalMonth > *in.MonthCutoff {
			dist.ExcludedBills = append(dist.ExcludedBills, b.ID)
			continue
		}
		bills = append(bills, b.Clone())
	}
	SortBillsOldestFirst(bills)

	// 2. Backdated mode: penalties are a function of the effective date
	stored := make(map[BillID]Cents, len(bills))
	for _, b := range bills {
		stored[b.ID] = b.PenaltyAmount
	}
	if dist.Backdated {
		for i := range bills {
			penalty, err := pd.Penalties.RecalculatePenalty(bills[i], in.AsOf)
			if err != nil {
				return Distribution{}, err
			}
			bills[i].PenaltyAmount = penalty
		}
	}

	// 3. Walk oldest-first
	remaining := in.PaymentAmount + in.CurrentCreditBalance
	stopped := false
	for _, b := range bills {
		s := BillSettlement{
			BillID:         b.ID,
			Period:         b.Period(),
			BaseCharge:     b.BaseCharge,
			Penalty:        b.PenaltyAmount,
			StoredPenalty:  stored[b.ID],
			Recomputed:     b.PenaltyAmount != stored[b.ID],
			UnpaidBase:     b.UnpaidBase(),
			PreviousStatus: b.Status,
		}
		unpaidPenalty := b.UnpaidPenalty()
		s.UnpaidTotal = s.UnpaidBase + unpaidPenalty
		dist.TotalBillsDue += s.UnpaidTotal

		switch {
		case stopped || remaining <= 0:
			// Untouched
		case remaining >= s.UnpaidTotal:
			s.BaseChargePaid = s.UnpaidBase
			s.PenaltyPaid = unpaidPenalty
		default:
			s.BaseChargePaid, s.PenaltyPaid = pd.Policy.split(remaining, s.UnpaidBase, unpaidPenalty)
			stopped = true
		}

		s.AmountPaid = s.BaseChargePaid + s.PenaltyPaid
		remaining -= s.AmountPaid
		s.NewStatus = StatusFor(b.PaidAmount()+s.AmountPaid, b.TotalAmount())

		dist.TotalBaseCharges += s.BaseChargePaid
		dist.TotalPenalties += s.PenaltyPaid
		dist.TotalPaidToBills += s.AmountPaid
		dist.BillSettlements = append(dist.BillSettlements, s)
	}

	// 4. Credit outcome
	if in.PaymentAmount < dist.TotalBillsDue {
		dist.CreditUsed = MinCents(dist.TotalBillsDue-in.PaymentAmount, in.CurrentCreditBalance)
	} else {
		dist.Overpayment = in.PaymentAmount - dist.TotalBillsDue
	}
	dist.NewCreditBalance = in.CurrentCreditBalance - dist.CreditUsed + dist.Overpayment

	return dist, nil
}
