/*
compensation.go - Deleting a transaction and reversing everything it did

PURPOSE:
  A recorded payment touches the credit ledger, one or more bills (or a
  dues record), an account balance and the transaction log. Deleting it
  must put every one of them back. The engine runs two phases, always in
  this order:

  PHASE A - credit reversal (simple, reversible)
    Remove the transaction's credit entries and invert their net effect,
    clamping the balance at zero. The reversal is kept for rollback.

  PHASE B - cleanup (atomic, inside TxStore.WithTx)
    Read:  bills holding payment entries of the transaction, bills whose
           penalty it overrode (backdated), and the dues record for dues
           payments (missing record: logged, skipped)
    Write: delete the transaction; account -amount (best effort);
           per bill remove the entry, subtract it, put back an overridden
           penalty, recompute status;
           dues: clear matching months, reverse embedded credit entries

FAILURE POLICY:
  ┌────────────────────────────────────────────────────────────────────┐
  │ Phase B fails ──▶ Restore(Phase A) ──ok──▶ CompensationError        │
  │                          │                                         │
  │                          └──fails──▶ FatalReconciliationError      │
  │                                      logged at DPanic + audited,   │
  │                                      original error still returned │
  └────────────────────────────────────────────────────────────────────┘
  The rollback is synchronous and attempted once. Retrying a financial
  correction blindly risks applying it twice.

  On success the affected periods are refreshed in the background; a
  refresh failure is logged and never fails the deletion.

SEE ALSO:
  - ledger.go: RemoveEntriesByTransaction / Restore
  - bill.go: RemovePaymentsFor
  - dues.go: ClearTransaction
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// COMPENSATION ENGINE
// =============================================================================

type CompensationEngine struct {
	Store     TxStore
	Credit    CreditLedger
	Audit     AuditLog
	Refresher *BackgroundRefresher
	Metrics   Recorder
	Logger    *zap.Logger
	NewID     func() string
	Clock     func() time.Time
}

// CompensationResult describes a completed deletion.
type CompensationResult struct {
	Transaction    Transaction
	CreditReversal CreditReversal
	BillsReversed  []BillReversal
	Dues           *DuesCleanup
	Warnings       []string
}

// BillReversal is one bill returned to its pre-payment state.
type BillReversal struct {
	BillID          BillID
	Period          BillPeriod
	BaseChargePaid  Cents
	PenaltyPaid     Cents
	PreviousStatus  BillStatus
	NewStatus       BillStatus
	PreviousPenalty Cents
	Penalty         Cents // Equal to PreviousPenalty unless an override was undone
}

func (ce *CompensationEngine) logger() *zap.Logger {
	if ce.Logger == nil {
		return zap.NewNop()
	}
	return ce.Logger
}

func (ce *CompensationEngine) metrics() Recorder {
	if ce.Metrics == nil {
		return NopRecorder{}
	}
	return ce.Metrics
}

func (ce *CompensationEngine) now() time.Time {
	if ce.Clock == nil {
		return time.Now()
	}
	return ce.Clock()
}

func (ce *CompensationEngine) newID() string {
	if ce.NewID == nil {
		return uuid.NewString()
	}
	return ce.NewID()
}

// DeleteTransaction deletes txID and reverses its effects.
func (ce *CompensationEngine) DeleteTransaction(ctx context.Context, txID TransactionID, actorID string) (*CompensationResult, error) {
	if txID == "" {
		return nil, newValidationError("transaction_id", "is required")
	}

	// 0. The transaction must exist before anything is touched
	tx, err := ce.Store.GetTransaction(ctx, txID)
	if err != nil {
		if IsNotFound(err) {
			ce.metrics().Compensation(OutcomeNotFound)
		}
		return nil, fmt.Errorf("delete transaction %s: %w", txID, err)
	}

	log := ce.logger().With(
		zap.String("transaction_id", string(txID)),
		zap.String("unit_id", string(tx.UnitID)),
		zap.Int("fiscal_year", tx.FiscalYear),
	)

	// 1. Phase A
	rev, err := ce.Credit.RemoveEntriesByTransaction(ctx, tx.UnitID, tx.FiscalYear, txID)
	if err != nil {
		log.Warn("credit reversal failed; nothing changed", zap.Error(err))
		return nil, &CompensationError{TransactionID: txID, Cause: err}
	}
	if rev.Touched() {
		log.Info("credit reversed",
			zap.Int("entries_removed", len(rev.Removed)),
			zap.Int64("previous_balance_cents", int64(rev.PreviousBalance)),
			zap.Int64("new_balance_cents", int64(rev.NewBalance)),
		)
	}

	// 2. Phase B
	result := &CompensationResult{Transaction: tx, CreditReversal: rev}
	err = ce.Store.WithTx(ctx, func(s Store) error {
		result.BillsReversed = nil
		result.Dues = nil
		result.Warnings = nil
		return ce.cleanup(ctx, s, tx, result, log)
	})

	// 3. Rollback on failure
	if err != nil {
		return nil, ce.rollback(ctx, tx, rev, err, actorID, log)
	}

	// 4. Success
	ce.audit(ctx, AuditEntry{
		ID:        ce.newID(),
		Timestamp: ce.now(),
		ActorID:   actorID,
		Action:    AuditTransactionDeleted,
		UnitID:    tx.UnitID,
		Payload: map[string]any{
			"transaction_id":       string(txID),
			"amount_cents":         int64(tx.Amount),
			"bills_reversed":       len(result.BillsReversed),
			"credit_entries":       len(rev.Removed),
			"credit_balance_cents": int64(rev.NewBalance),
		},
	})
	ce.Refresher.Trigger(tx.UnitID, result.affectedPeriods())
	ce.metrics().Compensation(OutcomeSuccess)

	log.Info("transaction deleted", zap.Int("bills_reversed", len(result.BillsReversed)))
	return result, nil
}

// cleanup is Phase B. It runs inside WithTx; any returned error rolls the
// store back.
func (ce *CompensationEngine) cleanup(ctx context.Context, s Store, tx Transaction, result *CompensationResult, log *zap.Logger) error {
	// Read phase
	bills, err := s.FindBillsByTransaction(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("find bills of transaction %s: %w", tx.ID, err)
	}
	// Backdated payments may have rewritten penalties on bills they never paid.
	seen := make(map[BillID]bool, len(bills))
	for _, b := range bills {
		seen[b.ID] = true
	}
	for _, o := range tx.Metadata.PenaltyOverrides {
		if seen[o.BillID] {
			continue
		}
		bill, err := s.GetBill(ctx, tx.UnitID, o.BillID)
		switch {
		case IsNotFound(err):
			log.Warn("bill with overridden penalty not found", zap.String("bill_id", string(o.BillID)))
			result.Warnings = append(result.Warnings, fmt.Sprintf("bill %s not found", o.BillID))
			continue
		case err != nil:
			return fmt.Errorf("load bill %s: %w", o.BillID, err)
		}
		seen[o.BillID] = true
		bills = append(bills, bill)
	}
	overrides := make(map[BillID]PenaltyOverride, len(tx.Metadata.PenaltyOverrides))
	for _, o := range tx.Metadata.PenaltyOverrides {
		overrides[o.BillID] = o
	}

	var dues *DuesRecord
	if tx.Metadata.Source == SourceHOADues {
		record, err := s.LoadDues(ctx, tx.UnitID, tx.FiscalYear)
		switch {
		case IsNotFound(err):
			log.Warn("dues record not found; skipping dues cleanup")
			result.Warnings = append(result.Warnings, "dues record not found")
		case err != nil:
			return fmt.Errorf("load dues record: %w", err)
		default:
			dues = &record
		}
	}

	// Write phase
	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		return fmt.Errorf("delete transaction record: %w", err)
	}

	if tx.AccountID != "" {
		if err := s.AdjustAccount(ctx, tx.AccountID, -tx.Amount); err != nil {
			log.Warn("account adjustment failed",
				zap.String("account_id", string(tx.AccountID)),
				zap.Int64("amount_cents", int64(-tx.Amount)),
				zap.Error(err),
			)
			ce.metrics().BestEffortFailure("account_adjust")
			result.Warnings = append(result.Warnings, fmt.Sprintf("account adjustment: %v", err))
		}
	}

	for _, bill := range bills {
		previous := bill.Status
		previousPenalty := bill.PenaltyAmount
		removed := bill.RemovePaymentsFor(tx.ID)
		restored := false
		if o, ok := overrides[bill.ID]; ok {
			restored = restorePenalty(&bill, o, log)
		}
		if len(removed) == 0 && !restored {
			continue
		}
		bill.RecomputeStatus()
		bill.UpdatedAt = ce.now()
		if err := s.SaveBill(ctx, bill); err != nil {
			return fmt.Errorf("save bill %s: %w", bill.ID, err)
		}
		rev := BillReversal{
			BillID:          bill.ID,
			Period:          bill.Period(),
			PreviousStatus:  previous,
			NewStatus:       bill.Status,
			PreviousPenalty: previousPenalty,
			Penalty:         bill.PenaltyAmount,
		}
		for _, p := range removed {
			rev.BaseChargePaid += p.BaseChargePaid
			rev.PenaltyPaid += p.PenaltyPaid
		}
		result.BillsReversed = append(result.BillsReversed, rev)
	}

	if dues != nil {
		cleanup := dues.ClearTransaction(tx.ID)
		dues.UpdatedAt = ce.now()
		if err := s.SaveDues(ctx, *dues); err != nil {
			return fmt.Errorf("save dues record: %w", err)
		}
		result.Dues = &cleanup
	}
	return nil
}

// restorePenalty puts back the penalty a backdated payment replaced. A
// penalty changed again since then is left alone. The restored value never
// drops below what has been paid toward it.
func restorePenalty(bill *Bill, o PenaltyOverride, log *zap.Logger) bool {
	if bill.PenaltyAmount != o.Applied {
		log.Warn("penalty changed since the payment; not restored",
			zap.String("bill_id", string(bill.ID)),
			zap.Int64("applied_cents", int64(o.Applied)),
			zap.Int64("current_cents", int64(bill.PenaltyAmount)),
		)
		return false
	}
	penalty := MaxCents(o.Previous, bill.PenaltyPaid)
	if penalty == bill.PenaltyAmount {
		return false
	}
	bill.PenaltyAmount = penalty
	return true
}

// rollback restores Phase A after a Phase B failure and builds the error
// returned to the caller.
func (ce *CompensationEngine) rollback(ctx context.Context, tx Transaction, rev CreditReversal, cause error, actorID string, log *zap.Logger) error {
	restoreErr := ce.Credit.Restore(ctx, rev)
	if restoreErr == nil {
		log.Warn("compensation failed; credit reversal rolled back", zap.Error(cause))
		ce.metrics().Compensation(OutcomeRolledBack)
		ce.audit(ctx, AuditEntry{
			ID:        ce.newID(),
			Timestamp: ce.now(),
			ActorID:   actorID,
			Action:    AuditCompensationRolledBack,
			UnitID:    tx.UnitID,
			Payload: map[string]any{
				"transaction_id": string(tx.ID),
				"error":          cause.Error(),
			},
		})
		return &CompensationError{TransactionID: tx.ID, Cause: cause}
	}

	actual := rev.NewBalance
	if credit, err := ce.Credit.Balance(ctx, tx.UnitID, tx.FiscalYear); err == nil {
		actual = credit.CurrentBalance
	}
	fatal := &FatalReconciliationError{
		UnitID:          tx.UnitID,
		FiscalYear:      tx.FiscalYear,
		TransactionID:   tx.ID,
		ExpectedBalance: rev.PreviousBalance,
		ActualBalance:   actual,
		Err:             restoreErr,
	}

	log.DPanic("manual reconciliation required: credit rollback failed",
		zap.Int64("expected_balance_cents", int64(fatal.ExpectedBalance)),
		zap.Int64("actual_balance_cents", int64(fatal.ActualBalance)),
		zap.Int("entries_to_restore", len(rev.Removed)),
		zap.NamedError("cause", cause),
		zap.NamedError("rollback_error", restoreErr),
	)
	ce.metrics().Compensation(OutcomeFatal)
	ce.audit(ctx, AuditEntry{
		ID:        ce.newID(),
		Timestamp: ce.now(),
		ActorID:   actorID,
		Action:    AuditReconciliationRequired,
		UnitID:    tx.UnitID,
		Payload: map[string]any{
			"transaction_id":         string(tx.ID),
			"fiscal_year":            tx.FiscalYear,
			"expected_balance_cents": int64(fatal.ExpectedBalance),
			"actual_balance_cents":   int64(fatal.ActualBalance),
			"error":                  errors.Join(cause, restoreErr).Error(),
		},
	})
	return &CompensationError{TransactionID: tx.ID, Cause: cause, RollbackErr: fatal}
}

func (ce *CompensationEngine) audit(ctx context.Context, entry AuditEntry) {
	if ce.Audit == nil {
		return
	}
	if err := ce.Audit.AppendAudit(ctx, entry); err != nil {
		ce.logger().Warn("audit append failed", zap.String("action", string(entry.Action)), zap.Error(err))
		ce.metrics().BestEffortFailure("audit")
	}
}

func (r *CompensationResult) affectedPeriods() []BillPeriod {
	seen := make(map[BillPeriod]bool)
	var out []BillPeriod
	for _, b := range r.BillsReversed {
		if !seen[b.Period] {
			seen[b.Period] = true
			out = append(out, b.Period)
		}
	}
	if r.Dues != nil {
		for _, m := range r.Dues.ClearedMonths {
			p := BillPeriod{FiscalYear: r.Transaction.FiscalYear, FiscalMonth: m}
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
