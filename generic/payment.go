/*
payment.go - Payment preview and recording

PURPOSE:
  Orchestrates a payment against a unit's bills:
  1. Preview: read bills and credit, distribute, allocate. Never writes.
  2. Record: the same plan, written.

RECORD FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │ validate ──▶ WithTx { read bills + credit                        │
  │                       distribute ──▶ allocate ──▶ integrity check │
  │                       create transaction                         │
  │                       credit ledger used/added                   │
  │                       persist recomputed penalties (backdated)   │
  │                       apply payment entries per bill }           │
  │          ──▶ account +amount          (best effort)              │
  │          ──▶ audit, aggregate refresh, metrics                   │
  └──────────────────────────────────────────────────────────────────┘

  Bills and credit are read and written inside the same WithTx, so two
  payments for one unit cannot lose each other's updates or spend the
  same credit twice. Credit entries are appended right after the
  transaction is created so they carry its id.

SEE ALSO:
  - distribution.go: The plan
  - allocation.go: The breakdown and integrity check
  - compensation.go: Undoing a recorded payment
*/
package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// PaymentRequest is a payment in minor units.
type PaymentRequest struct {
	UnitID      UnitID
	AccountID   AccountID
	Amount      Cents
	Date        TimePoint // Payment date; defaults to today
	AsOf        TimePoint // Effective date for penalties; zero = not backdated
	MonthCutoff *int
	Method      PaymentMethod
	Reference   string
	Notes       string
	ActorID     string
}

// PaymentPlan is what a payment would do.
type PaymentPlan struct {
	Distribution Distribution
	Allocations  []Allocation
	Summary      AllocationSummary
	FiscalYear   int
}

// PaymentResult is what a recorded payment did.
type PaymentResult struct {
	Transaction   Transaction
	Plan          PaymentPlan
	CreditEntries []CreditEntry
	Warnings      []string // Best-effort failures
}

// =============================================================================
// PAYMENT SERVICE
// =============================================================================

type PaymentService struct {
	Store       TxStore
	Credit      CreditLedger
	Distributor *PaymentDistributor
	Categories  Categories
	Fiscal      FiscalConfig
	Source      TransactionSource
	Audit       AuditLog
	Refresher   *BackgroundRefresher
	Metrics     Recorder
	Logger      *zap.Logger
	NewID       func() string
	Clock       func() time.Time
}

func (ps *PaymentService) logger() *zap.Logger {
	if ps.Logger == nil {
		return zap.NewNop()
	}
	return ps.Logger
}

func (ps *PaymentService) metrics() Recorder {
	if ps.Metrics == nil {
		return NopRecorder{}
	}
	return ps.Metrics
}

func (ps *PaymentService) now() time.Time {
	if ps.Clock == nil {
		return time.Now()
	}
	return ps.Clock()
}

func (ps *PaymentService) newID() string {
	if ps.NewID == nil {
		return uuid.NewString()
	}
	return ps.NewID()
}

func (ps *PaymentService) source() TransactionSource {
	if ps.Source == "" {
		return SourceWaterBills
	}
	return ps.Source
}

func (ps *PaymentService) normalize(req PaymentRequest) PaymentRequest {
	if req.Date.IsZero() {
		req.Date = DateOf(ps.now())
	}
	if req.Method == "" {
		req.Method = MethodCash
	}
	return req
}

// Preview computes the plan for req. Zero amounts are allowed so a unit's
// credit can be previewed against its bills.
func (ps *PaymentService) Preview(ctx context.Context, req PaymentRequest) (PaymentPlan, error) {
	req = ps.normalize(req)
	if req.UnitID == "" {
		return PaymentPlan{}, newValidationError("unit_id", "is required")
	}
	if req.Amount < 0 {
		return PaymentPlan{}, newValidationError("amount", "must be non-negative, got %s", req.Amount)
	}

	plan, err := ps.plan(ctx, ps.Store, req)
	if err != nil {
		return PaymentPlan{}, err
	}
	ps.metrics().PreviewComputed(ps.source())
	return plan, nil
}

// plan reads the unit's state through s and computes the payment plan.
func (ps *PaymentService) plan(ctx context.Context, s Store, req PaymentRequest) (PaymentPlan, error) {
	fiscalYear := ps.Fiscal.FiscalYearOf(req.Date)

	bills, err := s.ListUnpaidBills(ctx, req.UnitID)
	if err != nil {
		return PaymentPlan{}, fmt.Errorf("list unpaid bills for unit %s: %w", req.UnitID, err)
	}
	credit, err := s.LoadCredit(ctx, req.UnitID, fiscalYear)
	if err != nil {
		return PaymentPlan{}, fmt.Errorf("load credit for unit %s: %w", req.UnitID, err)
	}

	dist, err := ps.Distributor.Distribute(DistributionInput{
		UnitID:               req.UnitID,
		PaymentAmount:        req.Amount,
		CurrentCreditBalance: credit.CurrentBalance,
		Bills:                bills,
		AsOf:                 req.AsOf,
		Today:                DateOf(ps.now()),
		MonthCutoff:          req.MonthCutoff,
	})
	if err != nil {
		return PaymentPlan{}, err
	}

	allocs, summary := BuildAllocations(dist, ps.Categories)
	return PaymentPlan{
		Distribution: dist,
		Allocations:  allocs,
		Summary:      summary,
		FiscalYear:   fiscalYear,
	}, nil
}

// Record writes a payment. On any error before commit nothing is written.
func (ps *PaymentService) Record(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	req = ps.normalize(req)
	if err := ps.validateRecord(req); err != nil {
		return nil, err
	}

	log := ps.logger().With(zap.String("unit_id", string(req.UnitID)))
	now := ps.now()
	txID := TransactionID(ps.newID())

	var (
		plan    PaymentPlan
		tx      Transaction
		entries []CreditEntry
	)
	err := ps.Store.WithTx(ctx, func(s Store) error {
		var err error
		plan, err = ps.plan(ctx, s, req)
		if err != nil {
			return err
		}
		if err := plan.Summary.Validate(); err != nil {
			ps.metrics().IntegrityViolation(ps.source())
			return err
		}

		tx = NewPaymentTransaction(txID, req, plan, ps.source(), now)
		if err := s.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if entries, err = ps.recordCredit(ctx, s, req.UnitID, plan, txID); err != nil {
			return fmt.Errorf("credit ledger: %w", err)
		}

		for _, settlement := range plan.Distribution.BillSettlements {
			if settlement.Recomputed {
				if err := s.UpdateBillPenalty(ctx, req.UnitID, settlement.BillID, settlement.Penalty); err != nil {
					return fmt.Errorf("persist recomputed penalty for bill %s: %w", settlement.BillID, err)
				}
			}
			if settlement.AmountPaid == 0 {
				continue
			}
			entry := PaymentEntry{
				Amount:         settlement.AmountPaid,
				BaseChargePaid: settlement.BaseChargePaid,
				PenaltyPaid:    settlement.PenaltyPaid,
				Date:           req.Date,
				Method:         req.Method,
				Reference:      req.Reference,
				TransactionID:  txID,
				RecordedAt:     now,
			}
			if _, err := s.ApplyBillPayment(ctx, req.UnitID, settlement.BillID, entry); err != nil {
				return fmt.Errorf("apply payment to bill %s: %w", settlement.BillID, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("payment rejected", zap.Int64("amount_cents", int64(req.Amount)), zap.Error(err))
		return nil, err
	}

	result := &PaymentResult{Transaction: tx, Plan: plan, CreditEntries: entries}

	// Best effort: the payment stands even if the account is missing.
	if err := ps.Store.AdjustAccount(ctx, req.AccountID, req.Amount); err != nil {
		log.Warn("account adjustment failed",
			zap.String("transaction_id", string(txID)),
			zap.String("account_id", string(req.AccountID)),
			zap.Error(err),
		)
		ps.metrics().BestEffortFailure("account_adjust")
		result.Warnings = append(result.Warnings, fmt.Sprintf("account adjustment: %v", err))
	}

	ps.audit(ctx, AuditEntry{
		ID:        ps.newID(),
		Timestamp: now,
		ActorID:   req.ActorID,
		Action:    AuditPaymentRecorded,
		UnitID:    req.UnitID,
		Payload: map[string]any{
			"transaction_id":     string(txID),
			"amount_cents":       int64(req.Amount),
			"credit_used_cents":  int64(plan.Distribution.CreditUsed),
			"overpayment_cents":  int64(plan.Distribution.Overpayment),
			"bills_paid":         len(plan.Distribution.PaidSettlements()),
			"backdated":          plan.Distribution.Backdated,
			"new_credit_balance": int64(plan.Distribution.NewCreditBalance),
		},
	})

	ps.Refresher.Trigger(req.UnitID, affectedPeriods(plan.Distribution.BillSettlements))
	ps.metrics().PaymentRecorded(ps.source(), req.Amount)

	log.Info("payment recorded",
		zap.String("transaction_id", string(txID)),
		zap.Int64("amount_cents", int64(req.Amount)),
		zap.Int("allocations", len(plan.Allocations)),
	)
	return result, nil
}

func (ps *PaymentService) validateRecord(req PaymentRequest) error {
	if req.UnitID == "" {
		return newValidationError("unit_id", "is required")
	}
	if req.Amount <= 0 {
		return newValidationError("amount", "must be positive, got %s", req.Amount)
	}
	if req.AccountID == "" {
		return newValidationError("account_id", "is required")
	}
	return nil
}

// NewPaymentTransaction builds the income transaction recording plan.
func NewPaymentTransaction(id TransactionID, req PaymentRequest, plan PaymentPlan, source TransactionSource, now time.Time) Transaction {
	dist := plan.Distribution
	refs := make([]BillPaymentRef, 0, len(dist.BillSettlements))
	for _, s := range dist.PaidSettlements() {
		refs = append(refs, BillPaymentRef{
			BillID:         s.BillID,
			BaseChargePaid: s.BaseChargePaid,
			PenaltyPaid:    s.PenaltyPaid,
			AmountPaid:     s.AmountPaid,
			Status:         s.NewStatus,
		})
	}

	var overrides []PenaltyOverride
	for _, s := range dist.BillSettlements {
		if s.Recomputed {
			overrides = append(overrides, PenaltyOverride{BillID: s.BillID, Previous: s.StoredPenalty, Applied: s.Penalty})
		}
	}

	tx := Transaction{
		ID:                id,
		UnitID:            req.UnitID,
		AccountID:         req.AccountID,
		FiscalYear:        plan.FiscalYear,
		Date:              req.Date,
		Amount:            req.Amount,
		Type:              TxIncome,
		Method:            req.Method,
		Reference:         req.Reference,
		Notes:             req.Notes,
		Allocations:       plan.Allocations,
		AllocationSummary: plan.Summary,
		Metadata: TransactionMetadata{
			Source:           source,
			BillPayments:     refs,
			CreditUsed:       dist.CreditUsed,
			Overpayment:      dist.Overpayment,
			NewCreditBalance: dist.NewCreditBalance,
			Backdated:        dist.Backdated,
			PenaltyOverrides: overrides,
		},
		CreatedBy: req.ActorID,
		CreatedAt: now,
	}
	ApplyCategory(&tx)
	return tx
}

// recordCredit appends the credit entries of a payment through the
// tx-bound store s.
func (ps *PaymentService) recordCredit(ctx context.Context, s Store, unitID UnitID, plan PaymentPlan, txID TransactionID) ([]CreditEntry, error) {
	dist := plan.Distribution
	var entries []CreditEntry
	if dist.CreditUsed > 0 {
		e, err := ps.Credit.AppendEntryIn(ctx, s, CreditEntryRequest{
			UnitID:        unitID,
			FiscalYear:    plan.FiscalYear,
			TransactionID: txID,
			Type:          CreditUsed,
			Amount:        dist.CreditUsed,
			Description:   "credit applied to bills",
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if dist.Overpayment > 0 {
		e, err := ps.Credit.AppendEntryIn(ctx, s, CreditEntryRequest{
			UnitID:        unitID,
			FiscalYear:    plan.FiscalYear,
			TransactionID: txID,
			Type:          CreditAdded,
			Amount:        dist.Overpayment,
			Description:   "overpayment added to credit",
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (ps *PaymentService) audit(ctx context.Context, entry AuditEntry) {
	if ps.Audit == nil {
		return
	}
	if err := ps.Audit.AppendAudit(ctx, entry); err != nil {
		ps.logger().Warn("audit append failed", zap.String("action", string(entry.Action)), zap.Error(err))
		ps.metrics().BestEffortFailure("audit")
	}
}

func affectedPeriods(settlements []BillSettlement) []BillPeriod {
	seen := make(map[BillPeriod]bool)
	var out []BillPeriod
	for _, s := range settlements {
		if s.AmountPaid == 0 && !s.Recomputed {
			continue
		}
		if !seen[s.Period] {
			seen[s.Period] = true
			out = append(out, s.Period)
		}
	}
	return out
}
