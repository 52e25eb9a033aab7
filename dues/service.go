// Package dues records periodic HOA dues payments.
//
// A dues record is a 12-slot month grid per unit per fiscal year with its
// own embedded credit balance. Payments reuse the generic distribution
// engine by presenting each unpaid month as a zero-penalty bill; deletions
// go through generic.CompensationEngine like every other payment.
package dues

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/generic"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store       generic.TxStore
	Distributor *generic.PaymentDistributor
	Fiscal      generic.FiscalConfig
	DueDay      int
	Audit       generic.AuditLog
	Refresher   *generic.BackgroundRefresher
	Metrics     generic.Recorder
	Logger      *zap.Logger
	NewID       func() string
	Clock       func() time.Time
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) metrics() generic.Recorder {
	if s.Metrics == nil {
		return generic.NopRecorder{}
	}
	return s.Metrics
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

// Schedule creates the record of a fiscal year or changes its monthly amount.
func (s *Service) Schedule(ctx context.Context, unitID generic.UnitID, fiscalYear int, monthly generic.Cents) (generic.DuesRecord, error) {
	if unitID == "" {
		return generic.DuesRecord{}, &generic.ValidationError{Field: "unit_id", Message: "is required"}
	}
	if monthly <= 0 {
		return generic.DuesRecord{}, &generic.ValidationError{Field: "scheduled_amount", Message: fmt.Sprintf("must be positive, got %s", monthly)}
	}

	var record generic.DuesRecord
	err := s.Store.WithTx(ctx, func(st generic.Store) error {
		existing, err := st.LoadDues(ctx, unitID, fiscalYear)
		switch {
		case generic.IsNotFound(err):
			existing = generic.DuesRecord{UnitID: unitID, FiscalYear: fiscalYear}
		case err != nil:
			return err
		}
		existing.ScheduledAmount = monthly
		existing.UpdatedAt = s.now()
		record = existing
		return st.SaveDues(ctx, existing)
	})
	return record, err
}

// =============================================================================
// PAYMENT
// =============================================================================

// RecordPayment applies a dues payment to the unit's record for fiscalYear.
// Month slots, embedded credit and the transaction are written in one
// WithTx; the account adjustment afterwards is best effort.
func (s *Service) RecordPayment(ctx context.Context, fiscalYear int, req generic.PaymentRequest) (*generic.PaymentResult, error) {
	if req.UnitID == "" {
		return nil, &generic.ValidationError{Field: "unit_id", Message: "is required"}
	}
	if req.Amount <= 0 {
		return nil, &generic.ValidationError{Field: "amount", Message: fmt.Sprintf("must be positive, got %s", req.Amount)}
	}
	if req.AccountID == "" {
		return nil, &generic.ValidationError{Field: "account_id", Message: "is required"}
	}
	now := s.now()
	if req.Date.IsZero() {
		req.Date = generic.DateOf(now)
	}
	if req.Method == "" {
		req.Method = generic.MethodCash
	}

	log := s.logger().With(zap.String("unit_id", string(req.UnitID)), zap.Int("fiscal_year", fiscalYear))
	txID := generic.TransactionID(s.newID())
	result := &generic.PaymentResult{}

	err := s.Store.WithTx(ctx, func(st generic.Store) error {
		record, err := st.LoadDues(ctx, req.UnitID, fiscalYear)
		if err != nil {
			return fmt.Errorf("load dues record: %w", err)
		}

		dist, err := s.Distributor.Distribute(generic.DistributionInput{
			UnitID:               req.UnitID,
			PaymentAmount:        req.Amount,
			CurrentCreditBalance: record.CreditBalance,
			Bills:                record.AsBills(s.Fiscal, s.DueDay),
			MonthCutoff:          req.MonthCutoff,
		})
		if err != nil {
			return err
		}
		allocs, summary := generic.BuildAllocations(dist, generic.DuesCategories)
		if err := summary.Validate(); err != nil {
			s.metrics().IntegrityViolation(generic.SourceHOADues)
			return err
		}
		plan := generic.PaymentPlan{Distribution: dist, Allocations: allocs, Summary: summary, FiscalYear: fiscalYear}

		for _, settlement := range dist.PaidSettlements() {
			record.ApplyMonthPayment(settlement.Period.FiscalMonth, generic.PaymentEntry{
				Amount:         settlement.AmountPaid,
				BaseChargePaid: settlement.BaseChargePaid,
				Date:           req.Date,
				Method:         req.Method,
				Reference:      req.Reference,
				TransactionID:  txID,
				RecordedAt:     now,
			}, req.Notes)
		}
		result.CreditEntries = s.applyCredit(&record, dist, txID, now)
		record.UpdatedAt = now
		if err := st.SaveDues(ctx, record); err != nil {
			return fmt.Errorf("save dues record: %w", err)
		}

		tx := generic.NewPaymentTransaction(txID, req, plan, generic.SourceHOADues, now)
		if err := st.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		result.Transaction = tx
		result.Plan = plan
		return nil
	})
	if err != nil {
		log.Warn("dues payment rejected", zap.Int64("amount_cents", int64(req.Amount)), zap.Error(err))
		return nil, err
	}

	if err := s.Store.AdjustAccount(ctx, req.AccountID, req.Amount); err != nil {
		log.Warn("account adjustment failed", zap.String("transaction_id", string(txID)), zap.Error(err))
		s.metrics().BestEffortFailure("account_adjust")
		result.Warnings = append(result.Warnings, fmt.Sprintf("account adjustment: %v", err))
	}

	dist := result.Plan.Distribution
	s.audit(ctx, generic.AuditEntry{
		ID:        s.newID(),
		Timestamp: now,
		ActorID:   req.ActorID,
		Action:    generic.AuditPaymentRecorded,
		UnitID:    req.UnitID,
		Payload: map[string]any{
			"transaction_id":    string(txID),
			"source":            string(generic.SourceHOADues),
			"amount_cents":      int64(req.Amount),
			"months_paid":       len(dist.PaidSettlements()),
			"credit_used_cents": int64(dist.CreditUsed),
			"overpayment_cents": int64(dist.Overpayment),
		},
	})

	periods := make([]generic.BillPeriod, 0, len(dist.BillSettlements))
	for _, st := range dist.PaidSettlements() {
		periods = append(periods, st.Period)
	}
	s.Refresher.Trigger(req.UnitID, periods)
	s.metrics().PaymentRecorded(generic.SourceHOADues, req.Amount)

	log.Info("dues payment recorded",
		zap.String("transaction_id", string(txID)),
		zap.Int64("amount_cents", int64(req.Amount)),
		zap.Int("months_paid", len(periods)),
	)
	return result, nil
}

// applyCredit writes the credit side of dist into the record's embedded history.
func (s *Service) applyCredit(record *generic.DuesRecord, dist generic.Distribution, txID generic.TransactionID, now time.Time) []generic.CreditEntry {
	var entries []generic.CreditEntry
	add := func(typ generic.CreditEntryType, amount generic.Cents, desc string) {
		record.AppendCredit(generic.CreditEntry{
			ID:            s.newID(),
			Timestamp:     now,
			TransactionID: txID,
			Type:          typ,
			Amount:        amount,
			Description:   desc,
		})
		entries = append(entries, record.CreditHistory[len(record.CreditHistory)-1])
	}
	if dist.CreditUsed > 0 {
		add(generic.CreditUsed, dist.CreditUsed, "credit applied to dues")
	}
	if dist.Overpayment > 0 {
		add(generic.CreditAdded, dist.Overpayment, "dues overpayment added to credit")
	}
	return entries
}

// =============================================================================
// STATUS
// =============================================================================

// MonthStatus is one row of the dues grid.
type MonthStatus struct {
	Month     int
	Period    generic.BillPeriod
	DueDate   generic.TimePoint
	Scheduled generic.Cents
	Paid      generic.Cents
	Unpaid    generic.Cents
	Status    generic.BillStatus
	Reference string
}

// Status is the dues position of a unit for one fiscal year.
type Status struct {
	UnitID        generic.UnitID
	FiscalYear    int
	Months        []MonthStatus
	TotalDue      generic.Cents
	TotalPaid     generic.Cents
	CreditBalance generic.Cents
}

// Status returns the month grid of a unit's dues record.
func (s *Service) Status(ctx context.Context, unitID generic.UnitID, fiscalYear int) (*Status, error) {
	record, err := s.Store.LoadDues(ctx, unitID, fiscalYear)
	if err != nil {
		return nil, err
	}
	out := &Status{
		UnitID:        unitID,
		FiscalYear:    fiscalYear,
		Months:        make([]MonthStatus, 0, generic.MonthsPerYear),
		TotalPaid:     record.TotalPaid(),
		CreditBalance: record.CreditBalance,
	}
	for m := 0; m < generic.MonthsPerYear; m++ {
		out.Months = append(out.Months, MonthStatus{
			Month:     m,
			Period:    generic.BillPeriod{FiscalYear: fiscalYear, FiscalMonth: m},
			DueDate:   s.Fiscal.DueDate(fiscalYear, m, s.DueDay),
			Scheduled: record.ScheduledAmount,
			Paid:      record.Months[m].Amount,
			Unpaid:    record.MonthUnpaid(m),
			Status:    record.MonthStatus(m),
			Reference: record.Months[m].Reference,
		})
		out.TotalDue += record.MonthUnpaid(m)
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, entry generic.AuditEntry) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.AppendAudit(ctx, entry); err != nil {
		s.logger().Warn("audit append failed", zap.String("action", string(entry.Action)), zap.Error(err))
		s.metrics().BestEffortFailure("audit")
	}
}
