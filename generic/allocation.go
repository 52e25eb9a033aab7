/*
allocation.go - Auditable breakdown of where a payment went

PURPOSE:
  A Distribution says what the money does; allocations say it in
  accounting terms. Every recorded transaction carries the allocation list
  and a summary whose integrity check proves the parts add up to the
  transaction amount.

ALLOCATION RULES:
  - One bill_base allocation per bill with base charge paid
  - One bill_penalty allocation per bill with penalty paid
  - One credit_adjustment: positive for overpayment, negative for credit used
  - Ids are positional (alloc_001, alloc_002, ...) so the same plan always
    produces the same list

SIGN CONVENTION:
  Credit drawn from the balance is a negative allocation. The bill portions
  it helped pay are positive, so the signed sum still equals the cash
  amount of the transaction.

SEE ALSO:
  - distribution.go: Produces the Distribution
  - payment.go: Rejects a payment whose summary fails Validate
*/
package generic

import "fmt"

// =============================================================================
// ALLOCATION
// =============================================================================

type AllocationType string

const (
	AllocBillBase         AllocationType = "bill_base"
	AllocBillPenalty      AllocationType = "bill_penalty"
	AllocCreditAdjustment AllocationType = "credit_adjustment"
)

// Allocation is one line of a transaction's breakdown.
type Allocation struct {
	ID           string
	Type         AllocationType
	TargetID     string
	TargetName   string
	Amount       Cents // Signed
	CategoryID   string
	CategoryName string
	Metadata     AllocationMetadata
}

type AllocationMetadata struct {
	BillPeriod      string
	CleanupRequired bool // Deleting the transaction must touch the target
	Note            string
}

// IntegrityCheck compares allocations with the transaction amount.
type IntegrityCheck struct {
	ExpectedTotal Cents
	ActualTotal   Cents
	IsValid       bool
}

// AllocationSummary aggregates an allocation list.
type AllocationSummary struct {
	TotalAllocated  Cents // Signed sum of all allocations
	BillsTotal      Cents // Base + penalty portions
	AllocationCount int
	IntegrityCheck  IntegrityCheck
}

// Validate returns an IntegrityViolationError when the check failed.
func (s AllocationSummary) Validate() error {
	if s.IntegrityCheck.IsValid {
		return nil
	}
	return &IntegrityViolationError{
		Expected:  s.IntegrityCheck.ExpectedTotal,
		Actual:    s.IntegrityCheck.ActualTotal,
		Tolerance: IntegrityTolerance,
	}
}

// =============================================================================
// CATEGORIES
// =============================================================================

// SplitCategoryID and SplitCategoryName mark a transaction with more than
// one allocation.
const (
	SplitCategoryID   = "-split-"
	SplitCategoryName = "-Split-"
)

// Category is an accounting category reference.
type Category struct {
	ID   string
	Name string
}

// Categories maps allocation types to accounting categories for one billing module.
type Categories struct {
	Base        Category
	Penalty     Category
	Credit      Category
	TargetLabel string // "Water Bill", "HOA Dues"
}

var WaterCategories = Categories{
	Base:        Category{ID: "water-consumption", Name: "Water Consumption"},
	Penalty:     Category{ID: "water-penalties", Name: "Water Penalties"},
	Credit:      Category{ID: "account-credit", Name: "Account Credit"},
	TargetLabel: "Water Bill",
}

var DuesCategories = Categories{
	Base:        Category{ID: "hoa-dues", Name: "HOA Dues"},
	Penalty:     Category{ID: "hoa-penalties", Name: "HOA Penalties"},
	Credit:      Category{ID: "account-credit", Name: "Account Credit"},
	TargetLabel: "HOA Dues",
}

// =============================================================================
// BUILDER
// =============================================================================

// BuildAllocations turns a distribution into allocations and their summary.
// The expected total of the integrity check is the payment amount.
func BuildAllocations(dist Distribution, cats Categories) ([]Allocation, AllocationSummary) {
	var allocs []Allocation
	next := func() string { return fmt.Sprintf("alloc_%03d", len(allocs)+1) }

	for _, s := range dist.BillSettlements {
		period := s.Period.String()
		target := fmt.Sprintf("%s %s", cats.TargetLabel, period)
		if s.BaseChargePaid > 0 {
			allocs = append(allocs, Allocation{
				ID:           next(),
				Type:         AllocBillBase,
				TargetID:     string(s.BillID),
				TargetName:   target,
				Amount:       s.BaseChargePaid,
				CategoryID:   cats.Base.ID,
				CategoryName: cats.Base.Name,
				Metadata:     AllocationMetadata{BillPeriod: period, CleanupRequired: true},
			})
		}
		if s.PenaltyPaid > 0 {
			allocs = append(allocs, Allocation{
				ID:           next(),
				Type:         AllocBillPenalty,
				TargetID:     string(s.BillID),
				TargetName:   target + " Penalties",
				Amount:       s.PenaltyPaid,
				CategoryID:   cats.Penalty.ID,
				CategoryName: cats.Penalty.Name,
				Metadata:     AllocationMetadata{BillPeriod: period, CleanupRequired: true},
			})
		}
	}

	unitTarget := "credit:" + string(dist.UnitID)
	switch {
	case dist.Overpayment > 0:
		allocs = append(allocs, Allocation{
			ID:           next(),
			Type:         AllocCreditAdjustment,
			TargetID:     unitTarget,
			TargetName:   "Account Credit - Unit " + string(dist.UnitID),
			Amount:       dist.Overpayment,
			CategoryID:   cats.Credit.ID,
			CategoryName: cats.Credit.Name,
			Metadata:     AllocationMetadata{CleanupRequired: true, Note: "overpayment added to credit balance"},
		})
	case dist.CreditUsed > 0:
		allocs = append(allocs, Allocation{
			ID:           next(),
			Type:         AllocCreditAdjustment,
			TargetID:     unitTarget,
			TargetName:   "Account Credit - Unit " + string(dist.UnitID),
			Amount:       -dist.CreditUsed,
			CategoryID:   cats.Credit.ID,
			CategoryName: cats.Credit.Name,
			Metadata:     AllocationMetadata{CleanupRequired: true, Note: "credit balance applied to bills"},
		})
	}

	return allocs, Summarize(allocs, dist.PaymentAmount)
}

// Summarize computes the summary of allocs against the expected transaction amount.
func Summarize(allocs []Allocation, expected Cents) AllocationSummary {
	var sum AllocationSummary
	for _, a := range allocs {
		sum.TotalAllocated += a.Amount
		if a.Type == AllocBillBase || a.Type == AllocBillPenalty {
			sum.BillsTotal += a.Amount
		}
	}
	sum.AllocationCount = len(allocs)
	sum.IntegrityCheck = IntegrityCheck{
		ExpectedTotal: expected,
		ActualTotal:   sum.TotalAllocated,
		IsValid:       (expected - sum.TotalAllocated).Abs() <= IntegrityTolerance,
	}
	return sum
}

// ApplyCategory sets the transaction category from its allocations: the
// split sentinel for more than one, the allocation's own category for one.
func ApplyCategory(tx *Transaction) {
	switch len(tx.Allocations) {
	case 0:
		return
	case 1:
		tx.CategoryID = tx.Allocations[0].CategoryID
		tx.CategoryName = tx.Allocations[0].CategoryName
	default:
		tx.CategoryID = SplitCategoryID
		tx.CategoryName = SplitCategoryName
	}
}
