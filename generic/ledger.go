/*
ledger.go - Credit balance ledger

PURPOSE:
  The credit ledger owns every change to a unit's prepaid credit balance.
  Payments append credit_used / credit_added entries inside their own atomic
  unit, right after the transaction is created, so each entry carries the
  transaction id and the balance that was planned with is the one spent. Deletions remove the
  entries of a transaction and invert their net effect (Phase A of the
  compensation engine); a failed deletion puts them back with Restore.

INVARIANTS:
  1. CurrentBalance >= 0 at all times (reversals clamp at zero)
  2. Every entry records BalanceBefore/BalanceAfter at the time it was written
  3. Removing a transaction's entries deletes them from the history, it does
     not append an inverse, so the history stays a faithful replay log
  4. Remaining entries are not re-chained after a removal

EXAMPLE FLOW:
  1. Overpayment of 200: credit_added +200       balance 0 -> 200
  2. Underpayment uses 150: credit_used -150     balance 200 -> 50
  3. Payment 2 deleted: entry removed, +150      balance 50 -> 200
  4. Phase B fails: Restore re-inserts the entry balance 200 -> 50

SEE ALSO:
  - credit.go: CreditBalance and CreditEntry
  - compensation.go: Phase A and rollback
*/
package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CREDIT LEDGER
// =============================================================================

// CreditLedger is the only writer of credit balance documents.
type CreditLedger interface {
	// Balance returns the credit document (empty when none exists).
	Balance(ctx context.Context, unitID UnitID, fiscalYear int) (CreditBalance, error)

	// AppendEntry records a change. Amount must be positive.
	AppendEntry(ctx context.Context, req CreditEntryRequest) (CreditEntry, error)

	// AppendEntryIn records a change through s, a store already bound to an
	// enclosing WithTx. The entry commits or rolls back with that unit.
	AppendEntryIn(ctx context.Context, s Store, req CreditEntryRequest) (CreditEntry, error)

	// RemoveEntriesByTransaction removes every entry of txID and inverts
	// their net effect. A transaction without entries yields an empty reversal.
	RemoveEntriesByTransaction(ctx context.Context, unitID UnitID, fiscalYear int, txID TransactionID) (CreditReversal, error)

	// Restore undoes a reversal returned by RemoveEntriesByTransaction.
	Restore(ctx context.Context, rev CreditReversal) error
}

// CreditEntryRequest describes an entry to append.
type CreditEntryRequest struct {
	UnitID        UnitID
	FiscalYear    int
	TransactionID TransactionID
	Type          CreditEntryType
	Amount        Cents
	Description   string
}

// =============================================================================
// DEFAULT CREDIT LEDGER - Implementation using TxStore
// =============================================================================

type DefaultCreditLedger struct {
	Store TxStore
	NewID func() string
	Clock func() time.Time
}

func NewCreditLedger(store TxStore) *DefaultCreditLedger {
	return &DefaultCreditLedger{Store: store, NewID: uuid.NewString, Clock: time.Now}
}

func (l *DefaultCreditLedger) now() time.Time {
	if l.Clock == nil {
		return time.Now()
	}
	return l.Clock()
}

func (l *DefaultCreditLedger) newID() string {
	if l.NewID == nil {
		return uuid.NewString()
	}
	return l.NewID()
}

func (l *DefaultCreditLedger) Balance(ctx context.Context, unitID UnitID, fiscalYear int) (CreditBalance, error) {
	return l.Store.LoadCredit(ctx, unitID, fiscalYear)
}

func (l *DefaultCreditLedger) AppendEntry(ctx context.Context, req CreditEntryRequest) (CreditEntry, error) {
	var entry CreditEntry
	err := l.Store.WithTx(ctx, func(s Store) error {
		var err error
		entry, err = l.appendEntry(ctx, s, req)
		return err
	})
	if err != nil {
		return CreditEntry{}, fmt.Errorf("append credit entry for unit %s: %w", req.UnitID, err)
	}
	return entry, nil
}

func (l *DefaultCreditLedger) AppendEntryIn(ctx context.Context, s Store, req CreditEntryRequest) (CreditEntry, error) {
	entry, err := l.appendEntry(ctx, s, req)
	if err != nil {
		return CreditEntry{}, fmt.Errorf("append credit entry for unit %s: %w", req.UnitID, err)
	}
	return entry, nil
}

func (l *DefaultCreditLedger) appendEntry(ctx context.Context, s Store, req CreditEntryRequest) (CreditEntry, error) {
	if !req.Type.Valid() {
		return CreditEntry{}, newValidationError("type", "unknown credit entry type %q", req.Type)
	}
	if req.Amount <= 0 {
		return CreditEntry{}, newValidationError("amount", "credit entry amount must be positive, got %s", req.Amount)
	}

	credit, err := s.LoadCredit(ctx, req.UnitID, req.FiscalYear)
	if err != nil {
		return CreditEntry{}, err
	}

	after := credit.CurrentBalance + req.Type.Sign()*req.Amount
	if after < 0 {
		return CreditEntry{}, newValidationError("amount", "%s of %s exceeds credit balance %s",
			req.Type, req.Amount, credit.CurrentBalance)
	}

	now := l.now()
	entry := CreditEntry{
		ID:            l.newID(),
		Timestamp:     now,
		TransactionID: req.TransactionID,
		Type:          req.Type,
		Amount:        req.Amount,
		BalanceBefore: credit.CurrentBalance,
		BalanceAfter:  after,
		Description:   req.Description,
	}
	credit.UnitID = req.UnitID
	credit.FiscalYear = req.FiscalYear
	credit.CurrentBalance = after
	credit.History = append(credit.History, entry)
	credit.UpdatedAt = now
	if err := s.SaveCredit(ctx, credit); err != nil {
		return CreditEntry{}, err
	}
	return entry, nil
}

func (l *DefaultCreditLedger) RemoveEntriesByTransaction(ctx context.Context, unitID UnitID, fiscalYear int, txID TransactionID) (CreditReversal, error) {
	rev := CreditReversal{UnitID: unitID, FiscalYear: fiscalYear, TransactionID: txID}

	err := l.Store.WithTx(ctx, func(s Store) error {
		credit, err := s.LoadCredit(ctx, unitID, fiscalYear)
		if err != nil {
			return err
		}
		rev.PreviousBalance = credit.CurrentBalance

		newBalance, kept, removed, net := reverseEntries(credit.CurrentBalance, credit.History, txID)
		rev.NewBalance = newBalance
		rev.Removed = removed
		rev.NetReversal = net
		if len(removed) == 0 {
			return nil
		}

		credit.CurrentBalance = newBalance
		credit.History = kept
		credit.UpdatedAt = l.now()
		return s.SaveCredit(ctx, credit)
	})
	if err != nil {
		return CreditReversal{}, fmt.Errorf("reverse credit entries of transaction %s: %w", txID, err)
	}
	return rev, nil
}

// Restore re-inserts the removed entries and applies the inverse of the
// balance change made by the reversal.
func (l *DefaultCreditLedger) Restore(ctx context.Context, rev CreditReversal) error {
	if !rev.Touched() {
		return nil
	}
	err := l.Store.WithTx(ctx, func(s Store) error {
		credit, err := s.LoadCredit(ctx, rev.UnitID, rev.FiscalYear)
		if err != nil {
			return err
		}
		credit.CurrentBalance = NonNegative(credit.CurrentBalance + (rev.PreviousBalance - rev.NewBalance))
		credit.History = restoreEntries(credit.History, rev.Removed)
		credit.UpdatedAt = l.now()
		return s.SaveCredit(ctx, credit)
	})
	if err != nil {
		return fmt.Errorf("restore credit entries of transaction %s: %w", rev.TransactionID, err)
	}
	return nil
}
