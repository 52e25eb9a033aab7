/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Amounts cross
  the wire in major units (decimal) and are converted to Cents on entry.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Payments:
    PaymentRequestDTO, PaymentPlanDTO, DistributionDTO, SettlementDTO,
    AllocationDTO, PaymentResultDTO

  Bills and credit:
    BillDTO, PaymentEntryDTO, CreditDTO, CreditEntryDTO, BalanceDTO,
    AggregateDTO

  Water and dues:
    ReadingRequest, BillGeneratedDTO, PenaltyRecalcRequest, PenaltyRefreshDTO,
    ScheduleDuesRequest, DuesStatusDTO

  Transactions:
    TransactionDTO, CompensationDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request shapes are checked with validator/v10 struct tags. Amount rules
  (positive payment, non-negative preview) stay in the engines so the same
  rules apply to every caller.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/hoa-ledger/dues"
	"github.com/warp/hoa-ledger/generic"
	"github.com/warp/hoa-ledger/water"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PaymentRequestDTO is the body of payment preview and record calls.
type PaymentRequestDTO struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	AsOfDate    string          `json:"as_of_date" validate:"omitempty,datetime=2006-01-02"`
	MonthCutoff *int            `json:"month_cutoff" validate:"omitempty,min=0,max=11"`
	AccountID   string          `json:"account_id"`
	Method      string          `json:"method" validate:"omitempty,oneof=cash bank_transfer check other"`
	Reference   string          `json:"reference" validate:"max=200"`
	Notes       string          `json:"notes" validate:"max=1000"`
	ActorID     string          `json:"actor_id"`
}

// ReadingRequest is a meter reading that generates a water bill.
type ReadingRequest struct {
	FiscalYear      int    `json:"fiscal_year" validate:"required,min=2000,max=2200"`
	FiscalMonth     int    `json:"fiscal_month" validate:"min=0,max=11"`
	CurrentReading  int64  `json:"current_reading" validate:"gte=0"`
	PreviousReading *int64 `json:"previous_reading" validate:"omitempty,gte=0"`
	ActorID         string `json:"actor_id"`
}

type PenaltyRecalcRequest struct {
	AsOfDate string `json:"as_of_date" validate:"omitempty,datetime=2006-01-02"`
	ActorID  string `json:"actor_id"`
}

type ScheduleDuesRequest struct {
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
}

type SaveAccountRequest struct {
	ID   string `json:"id" validate:"required,max=100"`
	Name string `json:"name" validate:"required,max=200"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// PAYMENT RESPONSES
// =============================================================================

type SettlementDTO struct {
	BillID         string          `json:"bill_id"`
	Period         string          `json:"period"`
	BaseCharge     decimal.Decimal `json:"base_charge"`
	Penalty        decimal.Decimal `json:"penalty"`
	Recomputed     bool            `json:"penalty_recomputed"`
	UnpaidTotal    decimal.Decimal `json:"unpaid_total"`
	BaseChargePaid decimal.Decimal `json:"base_charge_paid"`
	PenaltyPaid    decimal.Decimal `json:"penalty_paid"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	PreviousStatus string          `json:"previous_status"`
	NewStatus      string          `json:"new_status"`
}

type DistributionDTO struct {
	UnitID               string          `json:"unit_id"`
	PaymentAmount        decimal.Decimal `json:"payment_amount"`
	Bills                []SettlementDTO `json:"bills"`
	ExcludedBills        int             `json:"excluded_bills"`
	TotalBillsDue        decimal.Decimal `json:"total_bills_due"`
	TotalBaseCharges     decimal.Decimal `json:"total_base_charges"`
	TotalPenalties       decimal.Decimal `json:"total_penalties"`
	TotalPaidToBills     decimal.Decimal `json:"total_paid_to_bills"`
	CreditUsed           decimal.Decimal `json:"credit_used"`
	Overpayment          decimal.Decimal `json:"overpayment"`
	CurrentCreditBalance decimal.Decimal `json:"current_credit_balance"`
	NewCreditBalance     decimal.Decimal `json:"new_credit_balance"`
	Backdated            bool            `json:"backdated"`
	AsOf                 string          `json:"as_of,omitempty"`
}

type AllocationDTO struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	TargetID        string          `json:"target_id"`
	TargetName      string          `json:"target_name"`
	Amount          decimal.Decimal `json:"amount"`
	CategoryID      string          `json:"category_id"`
	CategoryName    string          `json:"category_name"`
	BillPeriod      string          `json:"bill_period,omitempty"`
	CleanupRequired bool            `json:"cleanup_required"`
}

type SummaryDTO struct {
	TotalAllocated  decimal.Decimal `json:"total_allocated"`
	BillsTotal      decimal.Decimal `json:"bills_total"`
	AllocationCount int             `json:"allocation_count"`
	ExpectedTotal   decimal.Decimal `json:"expected_total"`
	IsValid         bool            `json:"is_valid"`
}

// PaymentPlanDTO is the preview response.
type PaymentPlanDTO struct {
	FiscalYear   int             `json:"fiscal_year"`
	Distribution DistributionDTO `json:"distribution"`
	Allocations  []AllocationDTO `json:"allocations"`
	Summary      SummaryDTO      `json:"summary"`
}

type CreditEntryDTO struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description"`
}

// PaymentResultDTO is the record response.
type PaymentResultDTO struct {
	Transaction   TransactionDTO   `json:"transaction"`
	Plan          PaymentPlanDTO   `json:"plan"`
	CreditEntries []CreditEntryDTO `json:"credit_entries"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID               string          `json:"id"`
	UnitID           string          `json:"unit_id"`
	AccountID        string          `json:"account_id,omitempty"`
	FiscalYear       int             `json:"fiscal_year"`
	Date             string          `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	Type             string          `json:"type"`
	Method           string          `json:"method,omitempty"`
	Reference        string          `json:"reference,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CategoryID       string          `json:"category_id"`
	CategoryName     string          `json:"category_name"`
	Source           string          `json:"source"`
	Allocations      []AllocationDTO `json:"allocations"`
	CreditUsed       decimal.Decimal `json:"credit_used"`
	Overpayment      decimal.Decimal `json:"overpayment"`
	NewCreditBalance decimal.Decimal `json:"new_credit_balance"`
	Backdated        bool            `json:"backdated"`
	CreatedBy        string          `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type BillReversalDTO struct {
	BillID         string          `json:"bill_id"`
	Period         string          `json:"period"`
	BaseChargePaid decimal.Decimal `json:"base_charge_paid"`
	PenaltyPaid    decimal.Decimal `json:"penalty_paid"`
	PreviousStatus string          `json:"previous_status"`
	NewStatus      string          `json:"new_status"`
	Penalty        decimal.Decimal `json:"penalty"`
}

// CompensationDTO is the delete response.
type CompensationDTO struct {
	TransactionID     string            `json:"transaction_id"`
	CreditEntries     int               `json:"credit_entries_removed"`
	CreditBefore      decimal.Decimal   `json:"credit_balance_before"`
	CreditAfter       decimal.Decimal   `json:"credit_balance_after"`
	BillsReversed     []BillReversalDTO `json:"bills_reversed"`
	DuesMonthsCleared []int             `json:"dues_months_cleared,omitempty"`
	Warnings          []string          `json:"warnings,omitempty"`
}

// =============================================================================
// BILLS, CREDIT, BALANCE
// =============================================================================

type PaymentEntryDTO struct {
	Amount         decimal.Decimal `json:"amount"`
	BaseChargePaid decimal.Decimal `json:"base_charge_paid"`
	PenaltyPaid    decimal.Decimal `json:"penalty_paid"`
	Date           string          `json:"date"`
	Method         string          `json:"method,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	TransactionID  string          `json:"transaction_id"`
}

type BillDTO struct {
	ID              string            `json:"id"`
	UnitID          string            `json:"unit_id"`
	FiscalYear      int               `json:"fiscal_year"`
	FiscalMonth     int               `json:"fiscal_month"`
	BaseCharge      decimal.Decimal   `json:"base_charge"`
	PenaltyAmount   decimal.Decimal   `json:"penalty_amount"`
	BasePaid        decimal.Decimal   `json:"base_paid"`
	PenaltyPaid     decimal.Decimal   `json:"penalty_paid"`
	Unpaid          decimal.Decimal   `json:"unpaid"`
	Status          string            `json:"status"`
	DueDate         string            `json:"due_date"`
	PreviousReading int64             `json:"previous_reading"`
	CurrentReading  int64             `json:"current_reading"`
	Consumption     int64             `json:"consumption"`
	Payments        []PaymentEntryDTO `json:"payments"`
}

type CreditDTO struct {
	UnitID         string           `json:"unit_id"`
	FiscalYear     int              `json:"fiscal_year"`
	CurrentBalance decimal.Decimal  `json:"current_balance"`
	History        []CreditEntryDTO `json:"history"`
}

type BalanceDTO struct {
	UnitID             string          `json:"unit_id"`
	OutstandingBase    decimal.Decimal `json:"outstanding_base"`
	OutstandingPenalty decimal.Decimal `json:"outstanding_penalty"`
	Outstanding        decimal.Decimal `json:"outstanding"`
	Credit             decimal.Decimal `json:"credit"`
	NetDue             decimal.Decimal `json:"net_due"`
	UnpaidBills        int             `json:"unpaid_bills"`
}

type AggregateDTO struct {
	Period      string          `json:"period"`
	Billed      decimal.Decimal `json:"billed"`
	Penalties   decimal.Decimal `json:"penalties"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	BillCount   int             `json:"bill_count"`
	PaidCount   int             `json:"paid_count"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type AccountDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// =============================================================================
// WATER AND DUES
// =============================================================================

type BillGeneratedDTO struct {
	Bill        BillDTO  `json:"bill"`
	Consumption int64    `json:"consumption"`
	Rollover    bool     `json:"rollover"`
	Warnings    []string `json:"warnings,omitempty"`
}

type PenaltyChangeDTO struct {
	BillID   string          `json:"bill_id"`
	Period   string          `json:"period"`
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
}

type PenaltyRefreshDTO struct {
	UnitID  string             `json:"unit_id"`
	AsOf    string             `json:"as_of"`
	Checked int                `json:"checked"`
	Changes []PenaltyChangeDTO `json:"changes"`
}

type DuesMonthDTO struct {
	Month     int             `json:"month"`
	Period    string          `json:"period"`
	DueDate   string          `json:"due_date"`
	Scheduled decimal.Decimal `json:"scheduled"`
	Paid      decimal.Decimal `json:"paid"`
	Unpaid    decimal.Decimal `json:"unpaid"`
	Status    string          `json:"status"`
	Reference string          `json:"reference,omitempty"`
}

type DuesStatusDTO struct {
	UnitID        string          `json:"unit_id"`
	FiscalYear    int             `json:"fiscal_year"`
	Months        []DuesMonthDTO  `json:"months"`
	TotalDue      decimal.Decimal `json:"total_due"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	CreditBalance decimal.Decimal `json:"credit_balance"`
}

// =============================================================================
// AUDIT, SCENARIOS, ERRORS
// =============================================================================

type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	UnitID    string         `json:"unit_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the error body of every failed call.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSettlementDTO(s generic.BillSettlement) SettlementDTO {
	return SettlementDTO{
		BillID:         string(s.BillID),
		Period:         s.Period.String(),
		BaseCharge:     s.BaseCharge.Major(),
		Penalty:        s.Penalty.Major(),
		Recomputed:     s.Recomputed,
		UnpaidTotal:    s.UnpaidTotal.Major(),
		BaseChargePaid: s.BaseChargePaid.Major(),
		PenaltyPaid:    s.PenaltyPaid.Major(),
		AmountPaid:     s.AmountPaid.Major(),
		PreviousStatus: string(s.PreviousStatus),
		NewStatus:      string(s.NewStatus),
	}
}

func toDistributionDTO(d generic.Distribution) DistributionDTO {
	bills := make([]SettlementDTO, len(d.BillSettlements))
	for i, s := range d.BillSettlements {
		bills[i] = toSettlementDTO(s)
	}
	return DistributionDTO{
		UnitID:               string(d.UnitID),
		PaymentAmount:        d.PaymentAmount.Major(),
		Bills:                bills,
		ExcludedBills:        len(d.ExcludedBills),
		TotalBillsDue:        d.TotalBillsDue.Major(),
		TotalBaseCharges:     d.TotalBaseCharges.Major(),
		TotalPenalties:       d.TotalPenalties.Major(),
		TotalPaidToBills:     d.TotalPaidToBills.Major(),
		CreditUsed:           d.CreditUsed.Major(),
		Overpayment:          d.Overpayment.Major(),
		CurrentCreditBalance: d.CurrentCreditBalance.Major(),
		NewCreditBalance:     d.NewCreditBalance.Major(),
		Backdated:            d.Backdated,
		AsOf:                 d.AsOf.String(),
	}
}

func toAllocationDTOs(allocs []generic.Allocation) []AllocationDTO {
	out := make([]AllocationDTO, len(allocs))
	for i, a := range allocs {
		out[i] = AllocationDTO{
			ID:              a.ID,
			Type:            string(a.Type),
			TargetID:        a.TargetID,
			TargetName:      a.TargetName,
			Amount:          a.Amount.Major(),
			CategoryID:      a.CategoryID,
			CategoryName:    a.CategoryName,
			BillPeriod:      a.Metadata.BillPeriod,
			CleanupRequired: a.Metadata.CleanupRequired,
		}
	}
	return out
}

func toSummaryDTO(s generic.AllocationSummary) SummaryDTO {
	return SummaryDTO{
		TotalAllocated:  s.TotalAllocated.Major(),
		BillsTotal:      s.BillsTotal.Major(),
		AllocationCount: s.AllocationCount,
		ExpectedTotal:   s.IntegrityCheck.ExpectedTotal.Major(),
		IsValid:         s.IntegrityCheck.IsValid,
	}
}

func toPlanDTO(p generic.PaymentPlan) PaymentPlanDTO {
	return PaymentPlanDTO{
		FiscalYear:   p.FiscalYear,
		Distribution: toDistributionDTO(p.Distribution),
		Allocations:  toAllocationDTOs(p.Allocations),
		Summary:      toSummaryDTO(p.Summary),
	}
}

func toCreditEntryDTOs(entries []generic.CreditEntry) []CreditEntryDTO {
	out := make([]CreditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = CreditEntryDTO{
			ID:            e.ID,
			Timestamp:     e.Timestamp,
			TransactionID: string(e.TransactionID),
			Type:          string(e.Type),
			Amount:        e.Amount.Major(),
			BalanceBefore: e.BalanceBefore.Major(),
			BalanceAfter:  e.BalanceAfter.Major(),
			Description:   e.Description,
		}
	}
	return out
}

func toPaymentResultDTO(r *generic.PaymentResult) PaymentResultDTO {
	return PaymentResultDTO{
		Transaction:   toTransactionDTO(r.Transaction),
		Plan:          toPlanDTO(r.Plan),
		CreditEntries: toCreditEntryDTOs(r.CreditEntries),
		Warnings:      r.Warnings,
	}
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:               string(tx.ID),
		UnitID:           string(tx.UnitID),
		AccountID:        string(tx.AccountID),
		FiscalYear:       tx.FiscalYear,
		Date:             tx.Date.String(),
		Amount:           tx.Amount.Major(),
		Type:             string(tx.Type),
		Method:           string(tx.Method),
		Reference:        tx.Reference,
		Notes:            tx.Notes,
		CategoryID:       tx.CategoryID,
		CategoryName:     tx.CategoryName,
		Source:           string(tx.Metadata.Source),
		Allocations:      toAllocationDTOs(tx.Allocations),
		CreditUsed:       tx.Metadata.CreditUsed.Major(),
		Overpayment:      tx.Metadata.Overpayment.Major(),
		NewCreditBalance: tx.Metadata.NewCreditBalance.Major(),
		Backdated:        tx.Metadata.Backdated,
		CreatedBy:        tx.CreatedBy,
		CreatedAt:        tx.CreatedAt,
	}
}

func toCompensationDTO(r *generic.CompensationResult) CompensationDTO {
	out := CompensationDTO{
		TransactionID: string(r.Transaction.ID),
		CreditEntries: len(r.CreditReversal.Removed),
		CreditBefore:  r.CreditReversal.PreviousBalance.Major(),
		CreditAfter:   r.CreditReversal.NewBalance.Major(),
		BillsReversed: make([]BillReversalDTO, len(r.BillsReversed)),
		Warnings:      r.Warnings,
	}
	for i, b := range r.BillsReversed {
		out.BillsReversed[i] = BillReversalDTO{
			BillID:         string(b.BillID),
			Period:         b.Period.String(),
			BaseChargePaid: b.BaseChargePaid.Major(),
			PenaltyPaid:    b.PenaltyPaid.Major(),
			PreviousStatus: string(b.PreviousStatus),
			NewStatus:      string(b.NewStatus),
			Penalty:        b.Penalty.Major(),
		}
	}
	if r.Dues != nil {
		out.DuesMonthsCleared = r.Dues.ClearedMonths
		if r.Dues.CreditReversal.Touched() {
			out.CreditEntries = len(r.Dues.CreditReversal.Removed)
			out.CreditBefore = r.Dues.CreditReversal.PreviousBalance.Major()
			out.CreditAfter = r.Dues.CreditReversal.NewBalance.Major()
		}
	}
	return out
}

func toBillDTO(b generic.Bill) BillDTO {
	payments := make([]PaymentEntryDTO, len(b.Payments))
	for i, p := range b.Payments {
		payments[i] = PaymentEntryDTO{
			Amount:         p.Amount.Major(),
			BaseChargePaid: p.BaseChargePaid.Major(),
			PenaltyPaid:    p.PenaltyPaid.Major(),
			Date:           p.Date.String(),
			Method:         string(p.Method),
			Reference:      p.Reference,
			TransactionID:  string(p.TransactionID),
		}
	}
	return BillDTO{
		ID:              string(b.ID),
		UnitID:          string(b.UnitID),
		FiscalYear:      b.FiscalYear,
		FiscalMonth:     b.FiscalMonth,
		BaseCharge:      b.BaseCharge.Major(),
		PenaltyAmount:   b.PenaltyAmount.Major(),
		BasePaid:        b.BasePaid.Major(),
		PenaltyPaid:     b.PenaltyPaid.Major(),
		Unpaid:          b.UnpaidTotal().Major(),
		Status:          string(b.Status),
		DueDate:         b.DueDate.String(),
		PreviousReading: b.PreviousReading,
		CurrentReading:  b.CurrentReading,
		Consumption:     b.Consumption,
		Payments:        payments,
	}
}

func toBillDTOs(bills []generic.Bill) []BillDTO {
	out := make([]BillDTO, len(bills))
	for i, b := range bills {
		out[i] = toBillDTO(b)
	}
	return out
}

func toCreditDTO(cb generic.CreditBalance) CreditDTO {
	return CreditDTO{
		UnitID:         string(cb.UnitID),
		FiscalYear:     cb.FiscalYear,
		CurrentBalance: cb.CurrentBalance.Major(),
		History:        toCreditEntryDTOs(cb.History),
	}
}

func toBalanceDTO(b generic.UnitBalance) BalanceDTO {
	return BalanceDTO{
		UnitID:             string(b.UnitID),
		OutstandingBase:    b.OutstandingBase.Major(),
		OutstandingPenalty: b.OutstandingPenalty.Major(),
		Outstanding:        b.Outstanding.Major(),
		Credit:             b.Credit.Major(),
		NetDue:             b.NetDue.Major(),
		UnpaidBills:        b.UnpaidBills,
	}
}

func toAggregateDTOs(aggs []generic.PeriodAggregate) []AggregateDTO {
	out := make([]AggregateDTO, len(aggs))
	for i, a := range aggs {
		out[i] = AggregateDTO{
			Period:      a.Period.String(),
			Billed:      a.Billed.Major(),
			Penalties:   a.Penalties.Major(),
			Paid:        a.Paid.Major(),
			Outstanding: a.Outstanding.Major(),
			BillCount:   a.BillCount,
			PaidCount:   a.PaidCount,
			UpdatedAt:   a.UpdatedAt,
		}
	}
	return out
}

func toAccountDTO(a generic.Account) AccountDTO {
	return AccountDTO{ID: string(a.ID), Name: a.Name, Balance: a.Balance.Major(), UpdatedAt: a.UpdatedAt}
}

func toBillGeneratedDTO(r *water.GenerateResult) BillGeneratedDTO {
	return BillGeneratedDTO{
		Bill:        toBillDTO(r.Bill),
		Consumption: r.Consumption.Consumption,
		Rollover:    r.Consumption.Rollover,
		Warnings:    r.Consumption.Warnings,
	}
}

func toPenaltyRefreshDTO(r *water.PenaltyRefresh) PenaltyRefreshDTO {
	out := PenaltyRefreshDTO{
		UnitID:  string(r.UnitID),
		AsOf:    r.AsOf.String(),
		Checked: r.Checked,
		Changes: make([]PenaltyChangeDTO, len(r.Changes)),
	}
	for i, c := range r.Changes {
		out.Changes[i] = PenaltyChangeDTO{
			BillID:   string(c.BillID),
			Period:   c.Period.String(),
			Previous: c.Previous.Major(),
			Current:  c.Current.Major(),
		}
	}
	return out
}

func toDuesStatusDTO(s *dues.Status) DuesStatusDTO {
	out := DuesStatusDTO{
		UnitID:        string(s.UnitID),
		FiscalYear:    s.FiscalYear,
		Months:        make([]DuesMonthDTO, len(s.Months)),
		TotalDue:      s.TotalDue.Major(),
		TotalPaid:     s.TotalPaid.Major(),
		CreditBalance: s.CreditBalance.Major(),
	}
	for i, m := range s.Months {
		out.Months[i] = DuesMonthDTO{
			Month:     m.Month,
			Period:    m.Period.String(),
			DueDate:   m.DueDate.String(),
			Scheduled: m.Scheduled.Major(),
			Paid:      m.Paid.Major(),
			Unpaid:    m.Unpaid.Major(),
			Status:    string(m.Status),
			Reference: m.Reference,
		}
	}
	return out
}

func toAuditDTOs(entries []generic.AuditEntry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			UnitID:    string(e.UnitID),
			Payload:   e.Payload,
		}
	}
	return out
}
