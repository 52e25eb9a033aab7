// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/hoa-ledger/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TxStore and generic.AuditLog.
type Memory struct {
	mu    sync.RWMutex
	state *memoryState
	audit []generic.AuditEntry
}

type billKey struct {
	UnitID generic.UnitID
	BillID generic.BillID
}

type yearKey struct {
	UnitID     generic.UnitID
	FiscalYear int
}

type memoryState struct {
	bills        map[billKey]generic.Bill
	credits      map[yearKey]generic.CreditBalance
	transactions map[generic.TransactionID]generic.Transaction
	accounts     map[generic.AccountID]generic.Account
	dues         map[yearKey]generic.DuesRecord
}

func newMemoryState() *memoryState {
	return &memoryState{
		bills:        make(map[billKey]generic.Bill),
		credits:      make(map[yearKey]generic.CreditBalance),
		transactions: make(map[generic.TransactionID]generic.Transaction),
		accounts:     make(map[generic.AccountID]generic.Account),
		dues:         make(map[yearKey]generic.DuesRecord),
	}
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The view handed to fn does not lock; the store lock is held throughout.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memoryView{state: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *Memory) read() *memoryView {
	return &memoryView{state: m.state}
}

// =============================================================================
// LOCKED ACCESSORS
// =============================================================================

func (m *Memory) ListUnpaidBills(ctx context.Context, unitID generic.UnitID) ([]generic.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListUnpaidBills(ctx, unitID)
}

func (m *Memory) ListBills(ctx context.Context, unitID generic.UnitID, fiscalYear int) ([]generic.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListBills(ctx, unitID, fiscalYear)
}

func (m *Memory) GetBill(ctx context.Context, unitID generic.UnitID, billID generic.BillID) (generic.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetBill(ctx, unitID, billID)
}

func (m *Memory) CreateBill(ctx context.Context, bill generic.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().CreateBill(ctx, bill)
}

func (m *Memory) SaveBill(ctx context.Context, bill generic.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SaveBill(ctx, bill)
}

func (m *Memory) UpdateBillPenalty(ctx context.Context, unitID generic.UnitID, billID generic.BillID, penalty generic.Cents) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdateBillPenalty(ctx, unitID, billID, penalty)
}

func (m *Memory) ApplyBillPayment(ctx context.Context, unitID generic.UnitID, billID generic.BillID, entry generic.PaymentEntry) (generic.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().ApplyBillPayment(ctx, unitID, billID, entry)
}

func (m *Memory) FindBillsByTransaction(ctx context.Context, txID generic.TransactionID) ([]generic.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().FindBillsByTransaction(ctx, txID)
}

func (m *Memory) ListUnitIDs(ctx context.Context) ([]generic.UnitID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListUnitIDs(ctx)
}

func (m *Memory) LoadCredit(ctx context.Context, unitID generic.UnitID, fiscalYear int) (generic.CreditBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().LoadCredit(ctx, unitID, fiscalYear)
}

func (m *Memory) SaveCredit(ctx context.Context, credit generic.CreditBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SaveCredit(ctx, credit)
}

func (m *Memory) CreateTransaction(ctx context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().CreateTransaction(ctx, tx)
}

func (m *Memory) GetTransaction(ctx context.Context, id generic.TransactionID) (generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetTransaction(ctx, id)
}

func (m *Memory) DeleteTransaction(ctx context.Context, id generic.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().DeleteTransaction(ctx, id)
}

func (m *Memory) ListTransactions(ctx context.Context, unitID generic.UnitID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListTransactions(ctx, unitID)
}

func (m *Memory) GetAccount(ctx context.Context, id generic.AccountID) (generic.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetAccount(ctx, id)
}

func (m *Memory) SaveAccount(ctx context.Context, account generic.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SaveAccount(ctx, account)
}

func (m *Memory) AdjustAccount(ctx context.Context, id generic.AccountID, delta generic.Cents) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().AdjustAccount(ctx, id, delta)
}

func (m *Memory) LoadDues(ctx context.Context, unitID generic.UnitID, fiscalYear int) (generic.DuesRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().LoadDues(ctx, unitID, fiscalYear)
}

func (m *Memory) SaveDues(ctx context.Context, record generic.DuesRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SaveDues(ctx, record)
}

// Reset deletes all data. Used by the demo scenarios.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newMemoryState()
	m.audit = nil
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.AuditEntry
	for _, e := range m.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// =============================================================================
// VIEW - Unlocked operations on the state
// =============================================================================

type memoryView struct {
	state *memoryState
}

func (v *memoryView) ListUnpaidBills(_ context.Context, unitID generic.UnitID) ([]generic.Bill, error) {
	var out []generic.Bill
	for k, b := range v.state.bills {
		if k.UnitID == unitID && b.Status != generic.BillPaid {
			out = append(out, b.Clone())
		}
	}
	generic.SortBillsOldestFirst(out)
	return out, nil
}

func (v *memoryView) ListBills(_ context.Context, unitID generic.UnitID, fiscalYear int) ([]generic.Bill, error) {
	var out []generic.Bill
	for k, b := range v.state.bills {
		if k.UnitID != unitID {
			continue
		}
		if fiscalYear != 0 && b.FiscalYear != fiscalYear {
			continue
		}
		out = append(out, b.Clone())
	}
	generic.SortBillsOldestFirst(out)
	return out, nil
}

func (v *memoryView) GetBill(_ context.Context, unitID generic.UnitID, billID generic.BillID) (generic.Bill, error) {
	b, ok := v.state.bills[billKey{unitID, billID}]
	if !ok {
		return generic.Bill{}, generic.NewNotFound("bill", string(unitID)+"/"+string(billID))
	}
	return b.Clone(), nil
}

func (v *memoryView) CreateBill(_ context.Context, bill generic.Bill) error {
	k := billKey{bill.UnitID, bill.ID}
	if _, exists := v.state.bills[k]; exists {
		return generic.ErrDuplicateID
	}
	bill.RecomputeStatus()
	v.state.bills[k] = bill.Clone()
	return nil
}

func (v *memoryView) SaveBill(_ context.Context, bill generic.Bill) error {
	k := billKey{bill.UnitID, bill.ID}
	if _, exists := v.state.bills[k]; !exists {
		return generic.NewNotFound("bill", string(bill.UnitID)+"/"+string(bill.ID))
	}
	v.state.bills[k] = bill.Clone()
	return nil
}

func (v *memoryView) UpdateBillPenalty(_ context.Context, unitID generic.UnitID, billID generic.BillID, penalty generic.Cents) error {
	k := billKey{unitID, billID}
	b, ok := v.state.bills[k]
	if !ok {
		return generic.NewNotFound("bill", string(unitID)+"/"+string(billID))
	}
	b.PenaltyAmount = penalty
	b.RecomputeStatus()
	b.UpdatedAt = time.Now()
	v.state.bills[k] = b
	return nil
}

func (v *memoryView) ApplyBillPayment(_ context.Context, unitID generic.UnitID, billID generic.BillID, entry generic.PaymentEntry) (generic.Bill, error) {
	k := billKey{unitID, billID}
	b, ok := v.state.bills[k]
	if !ok {
		return generic.Bill{}, generic.NewNotFound("bill", string(unitID)+"/"+string(billID))
	}
	b = b.Clone()
	b.ApplyPayment(entry)
	b.UpdatedAt = time.Now()
	v.state.bills[k] = b
	return b.Clone(), nil
}

func (v *memoryView) FindBillsByTransaction(_ context.Context, txID generic.TransactionID) ([]generic.Bill, error) {
	var out []generic.Bill
	for _, b := range v.state.bills {
		if b.HasPaymentFrom(txID) {
			out = append(out, b.Clone())
		}
	}
	generic.SortBillsOldestFirst(out)
	return out, nil
}

func (v *memoryView) ListUnitIDs(_ context.Context) ([]generic.UnitID, error) {
	seen := make(map[generic.UnitID]bool)
	for k := range v.state.bills {
		seen[k.UnitID] = true
	}
	for k := range v.state.dues {
		seen[k.UnitID] = true
	}
	out := make([]generic.UnitID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (v *memoryView) LoadCredit(_ context.Context, unitID generic.UnitID, fiscalYear int) (generic.CreditBalance, error) {
	c, ok := v.state.credits[yearKey{unitID, fiscalYear}]
	if !ok {
		return generic.CreditBalance{UnitID: unitID, FiscalYear: fiscalYear}, nil
	}
	return c.Clone(), nil
}

func (v *memoryView) SaveCredit(_ context.Context, credit generic.CreditBalance) error {
	v.state.credits[yearKey{credit.UnitID, credit.FiscalYear}] = credit.Clone()
	return nil
}

func (v *memoryView) CreateTransaction(_ context.Context, tx generic.Transaction) error {
	if _, exists := v.state.transactions[tx.ID]; exists {
		return generic.ErrDuplicateID
	}
	v.state.transactions[tx.ID] = tx
	return nil
}

func (v *memoryView) GetTransaction(_ context.Context, id generic.TransactionID) (generic.Transaction, error) {
	tx, ok := v.state.transactions[id]
	if !ok {
		return generic.Transaction{}, generic.NewNotFound("transaction", string(id))
	}
	return tx, nil
}

func (v *memoryView) DeleteTransaction(_ context.Context, id generic.TransactionID) error {
	if _, ok := v.state.transactions[id]; !ok {
		return generic.NewNotFound("transaction", string(id))
	}
	delete(v.state.transactions, id)
	return nil
}

func (v *memoryView) ListTransactions(_ context.Context, unitID generic.UnitID) ([]generic.Transaction, error) {
	var out []generic.Transaction
	for _, tx := range v.state.transactions {
		if unitID == "" || tx.UnitID == unitID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *memoryView) GetAccount(_ context.Context, id generic.AccountID) (generic.Account, error) {
	a, ok := v.state.accounts[id]
	if !ok {
		return generic.Account{}, generic.NewNotFound("account", string(id))
	}
	return a, nil
}

func (v *memoryView) SaveAccount(_ context.Context, account generic.Account) error {
	v.state.accounts[account.ID] = account
	return nil
}

func (v *memoryView) AdjustAccount(_ context.Context, id generic.AccountID, delta generic.Cents) error {
	a, ok := v.state.accounts[id]
	if !ok {
		return generic.NewNotFound("account", string(id))
	}
	a.Balance += delta
	a.UpdatedAt = time.Now()
	v.state.accounts[id] = a
	return nil
}

func (v *memoryView) LoadDues(_ context.Context, unitID generic.UnitID, fiscalYear int) (generic.DuesRecord, error) {
	r, ok := v.state.dues[yearKey{unitID, fiscalYear}]
	if !ok {
		return generic.DuesRecord{}, generic.NewNotFound("dues", string(unitID))
	}
	return r.Clone(), nil
}

func (v *memoryView) SaveDues(_ context.Context, record generic.DuesRecord) error {
	v.state.dues[yearKey{record.UnitID, record.FiscalYear}] = record.Clone()
	return nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.bills {
		c.bills[k] = v.Clone()
	}
	for k, v := range s.credits {
		c.credits[k] = v.Clone()
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.dues {
		c.dues[k] = v.Clone()
	}
	return c
}

var (
	_ generic.TxStore  = (*Memory)(nil)
	_ generic.AuditLog = (*Memory)(nil)
)
