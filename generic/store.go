/*
store.go - Persistence interfaces for bills, credit, transactions and accounts

PURPOSE:
  Defines the interface between the accounting engine and the database.
  Engines depend on these interfaces only; the concrete store is chosen in
  the factory at startup.

KEY INTERFACES:
  BillStore:        Bill documents and their payment entries
  CreditStore:      Credit balance documents (per unit, per fiscal year)
  TransactionStore: Financial transactions
  AccountStore:     Cash/bank accounts affected by transactions
  DuesStore:        Periodic dues month ledgers
  Store:            All of the above
  TxStore:          Store plus WithTx for atomic read-modify-write

ATOMICITY:
  Bill totals are only ever read-then-written inside WithTx. A store must
  guarantee that no other writer interleaves with fn: sqlite holds its
  mutex and an sql.Tx, the memory store holds its lock and restores a
  snapshot when fn fails.

NORMALIZATION:
  Stores return canonical shapes only. Legacy encodings (for example the
  fixed 12-slot payment array) are converted before a Bill leaves the store.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - payment.go: Writes a payment inside WithTx
  - compensation.go: Phase B runs inside WithTx
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORES
// =============================================================================

// BillStore persists bills.
type BillStore interface {
	// ListUnpaidBills returns unpaid and partial bills of a unit, oldest first.
	ListUnpaidBills(ctx context.Context, unitID UnitID) ([]Bill, error)

	// ListBills returns the bills of a unit, oldest first. fiscalYear 0 = all.
	ListBills(ctx context.Context, unitID UnitID, fiscalYear int) ([]Bill, error)

	GetBill(ctx context.Context, unitID UnitID, billID BillID) (Bill, error)

	// CreateBill fails with ErrDuplicateID if the period already has a bill.
	CreateBill(ctx context.Context, bill Bill) error

	// SaveBill replaces the bill document, payments included.
	SaveBill(ctx context.Context, bill Bill) error

	UpdateBillPenalty(ctx context.Context, unitID UnitID, billID BillID, penalty Cents) error

	// ApplyBillPayment appends entry and adds its split to the bill totals.
	ApplyBillPayment(ctx context.Context, unitID UnitID, billID BillID, entry PaymentEntry) (Bill, error)

	// FindBillsByTransaction returns every bill holding a payment entry of txID.
	FindBillsByTransaction(ctx context.Context, txID TransactionID) ([]Bill, error)

	ListUnitIDs(ctx context.Context) ([]UnitID, error)
}

// CreditStore persists credit balance documents. LoadCredit returns an
// empty balance (not an error) when the unit has no document yet.
type CreditStore interface {
	LoadCredit(ctx context.Context, unitID UnitID, fiscalYear int) (CreditBalance, error)
	SaveCredit(ctx context.Context, credit CreditBalance) error
}

type TransactionStore interface {
	// CreateTransaction fails with ErrDuplicateID if the id exists.
	CreateTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)
	DeleteTransaction(ctx context.Context, id TransactionID) error
	ListTransactions(ctx context.Context, unitID UnitID) ([]Transaction, error)
}

// AccountStore persists accounts. AdjustAccount is called best-effort by
// the engines: its failure is logged and never aborts a payment or deletion.
type AccountStore interface {
	GetAccount(ctx context.Context, id AccountID) (Account, error)
	SaveAccount(ctx context.Context, account Account) error
	AdjustAccount(ctx context.Context, id AccountID, delta Cents) error
}

// DuesStore persists periodic dues records. LoadDues returns a
// NotFoundError when the record does not exist.
type DuesStore interface {
	LoadDues(ctx context.Context, unitID UnitID, fiscalYear int) (DuesRecord, error)
	SaveDues(ctx context.Context, record DuesRecord) error
}

// Store is the full set of document stores.
type Store interface {
	BillStore
	CreditStore
	TransactionStore
	AccountStore
	DuesStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Account is a cash or bank account that receives payments.
type Account struct {
	ID        AccountID
	Name      string
	Balance   Cents
	UpdatedAt time.Time
}

// =============================================================================
// AUDIT LOG - Separate from transactions, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string // who performed the action
	Action    AuditAction
	UnitID    UnitID
	Payload   map[string]any // action-specific data
}

type AuditAction string

const (
	AuditPaymentRecorded        AuditAction = "payment_recorded"
	AuditTransactionDeleted     AuditAction = "transaction_deleted"
	AuditCompensationRolledBack AuditAction = "compensation_rolled_back"
	AuditReconciliationRequired AuditAction = "reconciliation_required"
	AuditPenaltiesRecalculated  AuditAction = "penalties_recalculated"
	AuditBillGenerated          AuditAction = "bill_generated"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	UnitID  *UnitID
	ActorID *string
	Actions []AuditAction
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Matches reports whether entry passes the filter (Limit is not applied).
func (f AuditFilter) Matches(entry AuditEntry) bool {
	if f.UnitID != nil && entry.UnitID != *f.UnitID {
		return false
	}
	if f.ActorID != nil && entry.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == entry.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && entry.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && entry.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// AggregateRefresher recomputes cached per-period aggregates of a unit.
type AggregateRefresher interface {
	Refresh(ctx context.Context, unitID UnitID, periods []BillPeriod) error
}

// Recorder receives engine metrics.
type Recorder interface {
	PaymentRecorded(source TransactionSource, amount Cents)
	PreviewComputed(source TransactionSource)
	Compensation(outcome string)
	BestEffortFailure(kind string)
	IntegrityViolation(source TransactionSource)
}

// Compensation outcomes reported to Recorder.
const (
	OutcomeSuccess    = "success"
	OutcomeRolledBack = "rolled_back"
	OutcomeFatal      = "fatal"
	OutcomeNotFound   = "not_found"
)

// NopRecorder discards metrics.
type NopRecorder struct{}

func (NopRecorder) PaymentRecorded(TransactionSource, Cents) {}
func (NopRecorder) PreviewComputed(TransactionSource)        {}
func (NopRecorder) Compensation(string)                      {}
func (NopRecorder) BestEffortFailure(string)                 {}
func (NopRecorder) IntegrityViolation(TransactionSource)     {}
