/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore and generic.AuditLog using SQLite. Documents
  with nested lists (bill payments, credit history, allocations, dues
  months) are stored as JSON columns next to the scalar columns queries
  filter on.

INTERFACES IMPLEMENTED:
  generic.BillStore, CreditStore, TransactionStore, AccountStore, DuesStore
  generic.TxStore:  WithTx over a single sql.Tx
  generic.AuditLog: Append-only audit_log table

KEY TABLES:
  bills:           One row per unit and bill period, payments_json holds entries
  credit_balances: One row per unit and fiscal year, history_json holds entries
  transactions:    Financial transactions with allocations and metadata
  accounts:        Cash/bank accounts
  dues_records:    Dues month grid per unit and fiscal year
  audit_log:       Who did what when

LEGACY SHAPES:
  Older bill rows stored payments as a fixed 12-slot array keyed by month,
  each slot holding an amount and the paying transaction's id in
  "reference". normalizePayments converts both shapes to []PaymentEntry on
  read; writes always use the open list.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole callback, and the store handed to the callback runs its queries on
  the sql.Tx without taking the lock again.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/hoa.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/hoa-ledger/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := NewFromDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewFromDB wraps an open database without migrating it.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS bills (
		unit_id TEXT NOT NULL,
		bill_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		fiscal_month INTEGER NOT NULL,
		base_charge INTEGER NOT NULL,
		penalty_amount INTEGER NOT NULL DEFAULT 0,
		base_paid INTEGER NOT NULL DEFAULT 0,
		penalty_paid INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		payments_json TEXT NOT NULL DEFAULT '[]',
		due_date TEXT,
		previous_reading INTEGER NOT NULL DEFAULT 0,
		current_reading INTEGER NOT NULL DEFAULT 0,
		consumption INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (unit_id, bill_id)
	);

	-- Unpaid bill lookups (payment hot path)
	CREATE INDEX IF NOT EXISTS idx_bills_unit_status
		ON bills(unit_id, status, fiscal_year, fiscal_month);

	CREATE TABLE IF NOT EXISTS credit_balances (
		unit_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		current_balance INTEGER NOT NULL CHECK (current_balance >= 0),
		history_json TEXT NOT NULL DEFAULT '[]',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (unit_id, fiscal_year)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL,
		account_id TEXT,
		fiscal_year INTEGER NOT NULL,
		date TEXT NOT NULL,
		amount INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		method TEXT,
		reference TEXT,
		notes TEXT,
		category_id TEXT,
		category_name TEXT,
		allocations_json TEXT NOT NULL DEFAULT '[]',
		summary_json TEXT,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_unit
		ON transactions(unit_id, created_at);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dues_records (
		unit_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		scheduled_amount INTEGER NOT NULL,
		months_json TEXT NOT NULL,
		credit_balance INTEGER NOT NULL DEFAULT 0,
		credit_history_json TEXT NOT NULL DEFAULT '[]',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (unit_id, fiscal_year)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		unit_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_unit_time
		ON audit_log(unit_id, timestamp);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) read() *conn { return &conn{q: s.db} }

// =============================================================================
// LOCKED ACCESSORS
// =============================================================================

func (s *Store) ListUnpaidBills(ctx context.Context, unitID generic.UnitID) ([]generic.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListUnpaidBills(ctx, unitID)
}

func (s *Store) ListBills(ctx context.Context, unitID generic.UnitID, fiscalYear int) ([]generic.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListBills(ctx, unitID, fiscalYear)
}

func (s *Store) GetBill(ctx context.Context, unitID generic.UnitID, billID generic.BillID) (generic.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBill(ctx, unitID, billID)
}

func (s *Store) CreateBill(ctx context.Context, bill generic.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreateBill(ctx, bill)
}

func (s *Store) SaveBill(ctx context.Context, bill generic.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveBill(ctx, bill)
}

func (s *Store) UpdateBillPenalty(ctx context.Context, unitID generic.UnitID, billID generic.BillID, penalty generic.Cents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdateBillPenalty(ctx, unitID, billID, penalty)
}

// ApplyBillPayment reads and writes the bill, so outside WithTx it runs in
// its own sql.Tx.
func (s *Store) ApplyBillPayment(ctx context.Context, unitID generic.UnitID, billID generic.BillID, entry generic.PaymentEntry) (generic.Bill, error) {
	var bill generic.Bill
	err := s.WithTx(ctx, func(st generic.Store) error {
		var err error
		bill, err = st.ApplyBillPayment(ctx, unitID, billID, entry)
		return err
	})
	return bill, err
}

func (s *Store) FindBillsByTransaction(ctx context.Context, txID generic.TransactionID) ([]generic.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindBillsByTransaction(ctx, txID)
}

func (s *Store) ListUnitIDs(ctx context.Context) ([]generic.UnitID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListUnitIDs(ctx)
}

func (s *Store) LoadCredit(ctx context.Context, unitID generic.UnitID, fiscalYear int) (generic.CreditBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().LoadCredit(ctx, unitID, fiscalYear)
}

func (s *Store) SaveCredit(ctx context.Context, credit generic.CreditBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveCredit(ctx, credit)
}

func (s *Store) CreateTransaction(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreateTransaction(ctx, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id generic.TransactionID) (generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetTransaction(ctx, id)
}

func (s *Store) DeleteTransaction(ctx context.Context, id generic.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, unitID generic.UnitID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListTransactions(ctx, unitID)
}

func (s *Store) GetAccount(ctx context.Context, id generic.AccountID) (generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetAccount(ctx, id)
}

func (s *Store) SaveAccount(ctx context.Context, account generic.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveAccount(ctx, account)
}

func (s *Store) AdjustAccount(ctx context.Context, id generic.AccountID, delta generic.Cents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().AdjustAccount(ctx, id, delta)
}

func (s *Store) LoadDues(ctx context.Context, unitID generic.UnitID, fiscalYear int) (generic.DuesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().LoadDues(ctx, unitID, fiscalYear)
}

func (s *Store) SaveDues(ctx context.Context, record generic.DuesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveDues(ctx, record)
}

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().appendAudit(ctx, entry)
}

func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().queryAudit(ctx, filter)
}

// Reset deletes all data. Used by the demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"bills", "credit_balances", "transactions", "accounts", "dues_records", "audit_log"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}

var (
	_ generic.TxStore  = (*Store)(nil)
	_ generic.AuditLog = (*Store)(nil)
)
