/*
Package generic provides the core accounting engine for unit billing.

PURPOSE:
  This package contains the domain types and algorithms that keep bills,
  the prepaid credit balance, account balances, and the transaction log
  consistent while payments are previewed, recorded, and deleted. Domain
  packages (water, dues) compose these pieces; the API layer only converts
  units and calls in.

KEY CONCEPTS IN THIS FILE (types.go):
  - Cents: Integer money in minor currency units (no floating point)
  - Transaction: The financial record a payment produces
  - Unit/Bill/Account IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Integer money: every internal amount is Cents; decimal only at the edge
  2. Purity: distribution and allocation are side-effect free
  3. Compensation: every write a payment makes can be exactly inverted
  4. Auditability: allocations and credit history explain every cent

USAGE:
  amount, _ := generic.ParseMajor("1250.50") // 125050 cents
  plan, _ := distributor.Distribute(generic.DistributionInput{
      UnitID:        "unit-101",
      PaymentAmount: amount,
      Bills:         bills,
  })

SEE ALSO:
  - distribution.go: Payment distribution across bills
  - allocation.go: Auditable allocation breakdown
  - compensation.go: Deleting a transaction and reversing its effects
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CENTS - Money in minor currency units
// =============================================================================

// Cents is an amount in minor currency units (centavos). All ledger
// arithmetic happens in Cents; conversion to display units happens at the
// API edge only.
type Cents int64

// MinorUnitsPerMajor is the fixed minor-unit scale of the single local currency.
const MinorUnitsPerMajor = 100

// IntegrityTolerance is the allowed difference between allocations and the
// transaction amount: one major unit.
const IntegrityTolerance Cents = MinorUnitsPerMajor

var hundred = decimal.NewFromInt(MinorUnitsPerMajor)

// FromMajor converts a display amount (e.g. 12.345 pesos) to Cents,
// rounding half away from zero to the nearest minor unit.
func FromMajor(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// ParseMajor parses a display amount string such as "1250.50".
func ParseMajor(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	return FromMajor(d), nil
}

// Major returns the display amount with exactly two decimal places.
func (c Cents) Major() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

func (c Cents) String() string { return c.Major().StringFixed(2) }

func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

func (c Cents) IsPositive() bool { return c > 0 }
func (c Cents) IsNegative() bool { return c < 0 }
func (c Cents) IsZero() bool     { return c == 0 }

// MinCents returns the smaller of a and b.
func MinCents(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

// MaxCents returns the larger of a and b.
func MaxCents(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

// NonNegative clamps c at zero.
func NonNegative(c Cents) Cents { return MaxCents(c, 0) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UnitID string
type BillID string
type TransactionID string
type AccountID string

// =============================================================================
// TRANSACTION - The financial record produced by a payment
// =============================================================================

type TransactionType string

const (
	TxIncome  TransactionType = "income"
	TxExpense TransactionType = "expense"
)

// PaymentMethod describes how money arrived.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheck        PaymentMethod = "check"
	MethodOther        PaymentMethod = "other"
)

// Transaction is the persisted financial record. The engine produces it on
// payment and reads it back on deletion to know what must be reversed.
type Transaction struct {
	ID         TransactionID
	UnitID     UnitID
	AccountID  AccountID
	FiscalYear int
	Date       TimePoint
	Amount     Cents // Signed: income is positive
	Type       TransactionType
	Method     PaymentMethod
	Reference  string
	Notes      string

	// Accounting category; the split sentinel when more than one allocation exists
	CategoryID   string
	CategoryName string

	Allocations       []Allocation
	AllocationSummary AllocationSummary
	Metadata          TransactionMetadata

	CreatedBy string
	CreatedAt time.Time
}

// TransactionSource says which payment flow created the transaction.
type TransactionSource string

const (
	SourceWaterBills TransactionSource = "water_bills"
	SourceHOADues    TransactionSource = "hoa_dues"
)

// TransactionMetadata is a snapshot of what the payment did, kept for
// descriptions and audits. It is not used to drive compensation.
type TransactionMetadata struct {
	Source           TransactionSource
	BillPayments     []BillPaymentRef
	CreditUsed       Cents
	Overpayment      Cents
	NewCreditBalance Cents
	Backdated        bool
	PenaltyOverrides []PenaltyOverride
}

// PenaltyOverride records a stored penalty replaced by a backdated payment,
// whether or not the bill received money. Deleting the payment puts
// Previous back.
type PenaltyOverride struct {
	BillID   BillID
	Previous Cents
	Applied  Cents
}

// BillPaymentRef records one bill touched by a payment.
type BillPaymentRef struct {
	BillID         BillID
	BaseChargePaid Cents
	PenaltyPaid    Cents
	AmountPaid     Cents
	Status         BillStatus
}
