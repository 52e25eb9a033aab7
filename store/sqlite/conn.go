package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/hoa-ledger/generic"
)

// conn runs the store operations on a querier without locking. Store
// hands one over *sql.DB to its locked accessors and one over *sql.Tx to
// WithTx callbacks.
type conn struct {
	q querier
}

// =============================================================================
// BILLS (generic.BillStore interface)
// =============================================================================

const billColumns = `unit_id, bill_id, fiscal_year, fiscal_month, base_charge, penalty_amount,
	base_paid, penalty_paid, status, payments_json, due_date,
	previous_reading, current_reading, consumption, created_at, updated_at`

func (c *conn) ListUnpaidBills(ctx context.Context, unitID generic.UnitID) ([]generic.Bill, error) {
	return c.queryBills(ctx, `
		SELECT `+billColumns+` FROM bills
		WHERE unit_id = ? AND status != ?
		ORDER BY fiscal_year, fiscal_month
	`, string(unitID), string(generic.BillPaid))
}

func (c *conn) ListBills(ctx context.Context, unitID generic.UnitID, fiscalYear int) ([]generic.Bill, error) {
	if fiscalYear == 0 {
		return c.queryBills(ctx, `
			SELECT `+billColumns+` FROM bills
			WHERE unit_id = ?
			ORDER BY fiscal_year, fiscal_month
		`, string(unitID))
	}
	return c.queryBills(ctx, `
		SELECT `+billColumns+` FROM bills
		WHERE unit_id = ? AND fiscal_year = ?
		ORDER BY fiscal_month
	`, string(unitID), fiscalYear)
}

func (c *conn) GetBill(ctx context.Context, unitID generic.UnitID, billID generic.BillID) (generic.Bill, error) {
	bills, err := c.queryBills(ctx, `
		SELECT `+billColumns+` FROM bills
		WHERE unit_id = ? AND bill_id = ?
	`, string(unitID), string(billID))
	if err != nil {
		return generic.Bill{}, err
	}
	if len(bills) == 0 {
		return generic.Bill{}, generic.NewNotFound("bill", string(unitID)+"/"+string(billID))
	}
	return bills[0], nil
}

func (c *conn) CreateBill(ctx context.Context, bill generic.Bill) error {
	bill.RecomputeStatus()
	payments, err := encodePayments(bill.Payments)
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO bills (`+billColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(bill.UnitID), string(bill.ID), bill.FiscalYear, bill.FiscalMonth,
		int64(bill.BaseCharge), int64(bill.PenaltyAmount), int64(bill.BasePaid), int64(bill.PenaltyPaid),
		string(bill.Status), payments, nullString(bill.DueDate.String()),
		bill.PreviousReading, bill.CurrentReading, bill.Consumption,
		formatTime(bill.CreatedAt), formatTime(bill.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return generic.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	return nil
}

func (c *conn) SaveBill(ctx context.Context, bill generic.Bill) error {
	payments, err := encodePayments(bill.Payments)
	if err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, `
		UPDATE bills SET
			base_charge = ?, penalty_amount = ?, base_paid = ?, penalty_paid = ?,
			status = ?, payments_json = ?, due_date = ?, updated_at = ?
		WHERE unit_id = ? AND bill_id = ?
	`,
		int64(bill.BaseCharge), int64(bill.PenaltyAmount), int64(bill.BasePaid), int64(bill.PenaltyPaid),
		string(bill.Status), payments, nullString(bill.DueDate.String()), formatTime(time.Now()),
		string(bill.UnitID), string(bill.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}
	return requireRow(res, generic.NewNotFound("bill", string(bill.UnitID)+"/"+string(bill.ID)))
}

func (c *conn) UpdateBillPenalty(ctx context.Context, unitID generic.UnitID, billID generic.BillID, penalty generic.Cents) error {
	bill, err := c.GetBill(ctx, unitID, billID)
	if err != nil {
		return err
	}
	bill.PenaltyAmount = penalty
	bill.RecomputeStatus()
	return c.SaveBill(ctx, bill)
}

func (c *conn) ApplyBillPayment(ctx context.Context, unitID generic.UnitID, billID generic.BillID, entry generic.PaymentEntry) (generic.Bill, error) {
	bill, err := c.GetBill(ctx, unitID, billID)
	if err != nil {
		return generic.Bill{}, err
	}
	bill.ApplyPayment(entry)
	if err := c.SaveBill(ctx, bill); err != nil {
		return generic.Bill{}, err
	}
	return bill, nil
}

// FindBillsByTransaction narrows candidates in SQL (canonical entries by
// transaction_id, legacy slots by reference) and confirms on the
// normalized entries.
func (c *conn) FindBillsByTransaction(ctx context.Context, txID generic.TransactionID) ([]generic.Bill, error) {
	candidates, err := c.queryBills(ctx, `
		SELECT `+billColumns+` FROM bills
		WHERE EXISTS (
			SELECT 1 FROM json_each(bills.payments_json)
			WHERE json_extract(json_each.value, '$.transaction_id') = ?
			   OR json_extract(json_each.value, '$.reference') = ?
		)
		ORDER BY fiscal_year, fiscal_month
	`, string(txID), string(txID))
	if err != nil {
		return nil, err
	}
	var out []generic.Bill
	for _, b := range candidates {
		if b.HasPaymentFrom(txID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (c *conn) ListUnitIDs(ctx context.Context) ([]generic.UnitID, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT unit_id FROM bills
		UNION
		SELECT unit_id FROM dues_records
		ORDER BY unit_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var out []generic.UnitID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, generic.UnitID(id))
	}
	return out, rows.Err()
}

func (c *conn) queryBills(ctx context.Context, query string, args ...any) ([]generic.Bill, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var out []generic.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBill(rows *sql.Rows) (generic.Bill, error) {
	var (
		b                                     generic.Bill
		unitID, billID, status, payments      string
		dueDate                               sql.NullString
		base, penalty, basePaid, penaltyPaid  int64
		createdAt, updatedAt                  string
	)
	err := rows.Scan(
		&unitID, &billID, &b.FiscalYear, &b.FiscalMonth, &base, &penalty,
		&basePaid, &penaltyPaid, &status, &payments, &dueDate,
		&b.PreviousReading, &b.CurrentReading, &b.Consumption, &createdAt, &updatedAt,
	)
	if err != nil {
		return b, err
	}

	b.UnitID = generic.UnitID(unitID)
	b.ID = generic.BillID(billID)
	b.BaseCharge = generic.Cents(base)
	b.PenaltyAmount = generic.Cents(penalty)
	b.BasePaid = generic.Cents(basePaid)
	b.PenaltyPaid = generic.Cents(penaltyPaid)
	b.Status = generic.BillStatus(status)
	b.DueDate = parseDate(dueDate.String)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)

	b.Payments, err = normalizePayments(payments)
	if err != nil {
		return b, fmt.Errorf("bill %s/%s: %w", unitID, billID, err)
	}
	return b, nil
}

// =============================================================================
// CREDIT (generic.CreditStore interface)
// =============================================================================

func (c *conn) LoadCredit(ctx context.Context, unitID generic.UnitID, fiscalYear int) (generic.CreditBalance, error) {
	credit := generic.CreditBalance{UnitID: unitID, FiscalYear: fiscalYear}
	var (
		balance   int64
		history   string
		updatedAt string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT current_balance, history_json, updated_at
		FROM credit_balances WHERE unit_id = ? AND fiscal_year = ?
	`, string(unitID), fiscalYear).Scan(&balance, &history, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return credit, nil
	}
	if err != nil {
		return credit, fmt.Errorf("failed to load credit: %w", err)
	}

	credit.CurrentBalance = generic.Cents(balance)
	credit.UpdatedAt = parseTime(updatedAt)
	if err := decodeJSON([]byte(history), &credit.History); err != nil {
		return credit, fmt.Errorf("decode credit history: %w", err)
	}
	return credit, nil
}

func (c *conn) SaveCredit(ctx context.Context, credit generic.CreditBalance) error {
	history, err := encodeJSON(nonNilHistory(credit.History))
	if err != nil {
		return fmt.Errorf("encode credit history: %w", err)
	}
	updatedAt := credit.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO credit_balances (unit_id, fiscal_year, current_balance, history_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unit_id, fiscal_year) DO UPDATE SET
			current_balance = excluded.current_balance,
			history_json = excluded.history_json,
			updated_at = excluded.updated_at
	`, string(credit.UnitID), credit.FiscalYear, int64(credit.CurrentBalance), history, formatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("failed to save credit: %w", err)
	}
	return nil
}

func nonNilHistory(h []generic.CreditEntry) []generic.CreditEntry {
	if h == nil {
		return []generic.CreditEntry{}
	}
	return h
}

// =============================================================================
// TRANSACTIONS (generic.TransactionStore interface)
// =============================================================================

const transactionColumns = `id, unit_id, account_id, fiscal_year, date, amount, tx_type, method,
	reference, notes, category_id, category_name, allocations_json, summary_json,
	metadata_json, created_by, created_at`

func (c *conn) CreateTransaction(ctx context.Context, tx generic.Transaction) error {
	allocs := tx.Allocations
	if allocs == nil {
		allocs = []generic.Allocation{}
	}
	allocations, err := encodeJSON(allocs)
	if err != nil {
		return fmt.Errorf("encode allocations: %w", err)
	}
	summary, _ := encodeJSON(tx.AllocationSummary)
	metadata, _ := encodeJSON(tx.Metadata)

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(tx.ID), string(tx.UnitID), nullString(string(tx.AccountID)), tx.FiscalYear,
		tx.Date.String(), int64(tx.Amount), string(tx.Type), nullString(string(tx.Method)),
		nullString(tx.Reference), nullString(tx.Notes), nullString(tx.CategoryID), nullString(tx.CategoryName),
		allocations, summary, metadata, nullString(tx.CreatedBy), formatTime(tx.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return generic.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (c *conn) GetTransaction(ctx context.Context, id generic.TransactionID) (generic.Transaction, error) {
	txs, err := c.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = ?
	`, string(id))
	if err != nil {
		return generic.Transaction{}, err
	}
	if len(txs) == 0 {
		return generic.Transaction{}, generic.NewNotFound("transaction", string(id))
	}
	return txs[0], nil
}

func (c *conn) DeleteTransaction(ctx context.Context, id generic.TransactionID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireRow(res, generic.NewNotFound("transaction", string(id)))
}

// ListTransactions returns a unit's transactions oldest first. An empty
// unitID lists all.
func (c *conn) ListTransactions(ctx context.Context, unitID generic.UnitID) ([]generic.Transaction, error) {
	if unitID == "" {
		return c.queryTransactions(ctx, `
			SELECT `+transactionColumns+` FROM transactions ORDER BY created_at, id
		`)
	}
	return c.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE unit_id = ?
		ORDER BY created_at, id
	`, string(unitID))
}

func (c *conn) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx                                    generic.Transaction
		id, unitID, date, txType, createdAt   string
		amount                                int64
		accountID, method, reference, notes   sql.NullString
		categoryID, categoryName, createdBy   sql.NullString
		allocations                           string
		summary, metadata                     sql.NullString
	)
	err := rows.Scan(
		&id, &unitID, &accountID, &tx.FiscalYear, &date, &amount, &txType, &method,
		&reference, &notes, &categoryID, &categoryName, &allocations, &summary,
		&metadata, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, err
	}

	tx.ID = generic.TransactionID(id)
	tx.UnitID = generic.UnitID(unitID)
	tx.AccountID = generic.AccountID(accountID.String)
	tx.Date = parseDate(date)
	tx.Amount = generic.Cents(amount)
	tx.Type = generic.TransactionType(txType)
	tx.Method = generic.PaymentMethod(method.String)
	tx.Reference = reference.String
	tx.Notes = notes.String
	tx.CategoryID = categoryID.String
	tx.CategoryName = categoryName.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = parseTime(createdAt)

	if err := decodeJSON([]byte(allocations), &tx.Allocations); err != nil {
		return tx, fmt.Errorf("transaction %s: decode allocations: %w", id, err)
	}
	if err := decodeJSON([]byte(summary.String), &tx.AllocationSummary); err != nil {
		return tx, fmt.Errorf("transaction %s: decode summary: %w", id, err)
	}
	if err := decodeJSON([]byte(metadata.String), &tx.Metadata); err != nil {
		return tx, fmt.Errorf("transaction %s: decode metadata: %w", id, err)
	}
	return tx, nil
}

// =============================================================================
// ACCOUNTS (generic.AccountStore interface)
// =============================================================================

func (c *conn) GetAccount(ctx context.Context, id generic.AccountID) (generic.Account, error) {
	account := generic.Account{ID: id}
	var (
		balance   int64
		updatedAt string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT name, balance, updated_at FROM accounts WHERE id = ?
	`, string(id)).Scan(&account.Name, &balance, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Account{}, generic.NewNotFound("account", string(id))
	}
	if err != nil {
		return generic.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	account.Balance = generic.Cents(balance)
	account.UpdatedAt = parseTime(updatedAt)
	return account, nil
}

func (c *conn) SaveAccount(ctx context.Context, account generic.Account) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO accounts (id, name, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`, string(account.ID), account.Name, int64(account.Balance), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (c *conn) AdjustAccount(ctx context.Context, id generic.AccountID, delta generic.Cents) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?
	`, int64(delta), formatTime(time.Now()), string(id))
	if err != nil {
		return fmt.Errorf("failed to adjust account: %w", err)
	}
	return requireRow(res, generic.NewNotFound("account", string(id)))
}

// =============================================================================
// DUES (generic.DuesStore interface)
// =============================================================================

func (c *conn) LoadDues(ctx context.Context, unitID generic.UnitID, fiscalYear int) (generic.DuesRecord, error) {
	record := generic.DuesRecord{UnitID: unitID, FiscalYear: fiscalYear}
	var (
		scheduled, credit       int64
		months, history, update string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT scheduled_amount, months_json, credit_balance, credit_history_json, updated_at
		FROM dues_records WHERE unit_id = ? AND fiscal_year = ?
	`, string(unitID), fiscalYear).Scan(&scheduled, &months, &credit, &history, &update)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.DuesRecord{}, generic.NewNotFound("dues", string(unitID))
	}
	if err != nil {
		return generic.DuesRecord{}, fmt.Errorf("failed to load dues: %w", err)
	}

	record.ScheduledAmount = generic.Cents(scheduled)
	record.CreditBalance = generic.Cents(credit)
	record.UpdatedAt = parseTime(update)
	if record.Months, err = decodeMonths(months); err != nil {
		return generic.DuesRecord{}, fmt.Errorf("dues %s/%d: %w", unitID, fiscalYear, err)
	}
	if err := decodeJSON([]byte(history), &record.CreditHistory); err != nil {
		return generic.DuesRecord{}, fmt.Errorf("dues %s/%d: decode credit history: %w", unitID, fiscalYear, err)
	}
	return record, nil
}

func (c *conn) SaveDues(ctx context.Context, record generic.DuesRecord) error {
	months, err := encodeMonths(record.Months)
	if err != nil {
		return err
	}
	history, err := encodeJSON(nonNilHistory(record.CreditHistory))
	if err != nil {
		return fmt.Errorf("encode dues credit history: %w", err)
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO dues_records (unit_id, fiscal_year, scheduled_amount, months_json, credit_balance, credit_history_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unit_id, fiscal_year) DO UPDATE SET
			scheduled_amount = excluded.scheduled_amount,
			months_json = excluded.months_json,
			credit_balance = excluded.credit_balance,
			credit_history_json = excluded.credit_history_json,
			updated_at = excluded.updated_at
	`, string(record.UnitID), record.FiscalYear, int64(record.ScheduledAmount), months,
		int64(record.CreditBalance), history, formatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("failed to save dues: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (c *conn) appendAudit(ctx context.Context, entry generic.AuditEntry) error {
	payload, err := encodeJSON(entry.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	if entry.Payload == nil {
		payload = nil
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, unit_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, formatTime(entry.Timestamp), nullString(entry.ActorID), string(entry.Action),
		nullString(string(entry.UnitID)), payload)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (c *conn) queryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.UnitID != nil {
		where = append(where, "unit_id = ?")
		args = append(args, string(*filter.UnitID))
	}
	if filter.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, formatTime(*filter.To))
	}

	query := "SELECT id, timestamp, actor_id, action, unit_id, payload_json FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp, rowid"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e                         generic.AuditEntry
			ts, action                string
			actor, unitID, payload    sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &actor, &action, &unitID, &payload); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.ActorID = actor.String
		e.Action = generic.AuditAction(action)
		e.UnitID = generic.UnitID(unitID.String)
		if err := decodeJSON([]byte(payload.String), &e.Payload); err != nil {
			return nil, fmt.Errorf("audit %s: decode payload: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// requireRow turns an update that matched nothing into notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ generic.Store = (*conn)(nil)
