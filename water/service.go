/*
service.go - Water bill generation and penalty refresh

PURPOSE:
  Turns meter readings into bills and keeps stored penalties current.
  The arithmetic lives in generic.MeteredBilling; this service holds one
  and adds the water-specific rules around it.

BILL GENERATION:
  1. Previous reading: given, or the current reading of the unit's latest
     earlier bill, or 0 for a first bill
  2. Consumption via MeteredBilling (rollover aware, ceiling enforced)
  3. Base charge = max(MinimumCharge, consumption * RatePerUnit)
  4. Due date = DueDay of the period's calendar month

PENALTY REFRESH:
  Recomputes the compound penalty of every unpaid or partial bill as of a
  date and persists the ones that changed. The scheduler runs it for all
  units; the API runs it for one.

SEE ALSO:
  - generic/metered.go: Consumption and CompoundPenalty
  - generic/payment.go: Pays the bills generated here
*/
package water

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/generic"
)

// Rates are the tariff of the water module.
type Rates struct {
	RatePerUnit   generic.Cents // Per consumption unit
	MinimumCharge generic.Cents
	DueDay        int // Day of month bills fall due
}

// Service composes the metered billing calculator with bill storage.
type Service struct {
	Metered   generic.MeteredBilling
	Penalties generic.PenaltyPolicy
	Rates     Rates
	Fiscal    generic.FiscalConfig
	Store     generic.TxStore
	Audit     generic.AuditLog
	Refresher *generic.BackgroundRefresher
	Logger    *zap.Logger
	NewID     func() string
	Clock     func() time.Time
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
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

// =============================================================================
// BILL GENERATION
// =============================================================================

// ReadingRequest is a meter reading for one unit and period.
type ReadingRequest struct {
	UnitID          generic.UnitID
	Period          generic.BillPeriod
	CurrentReading  int64
	PreviousReading *int64 // nil = latest earlier bill's reading
	ActorID         string
}

// GenerateResult is a new bill and how its consumption was derived.
type GenerateResult struct {
	Bill        generic.Bill
	Consumption generic.ConsumptionResult
}

// BaseCharge prices a consumption.
func (s *Service) BaseCharge(consumption int64) generic.Cents {
	return generic.MaxCents(s.Rates.MinimumCharge, generic.Cents(consumption)*s.Rates.RatePerUnit)
}

// GenerateBill creates the bill of a period from a meter reading.
func (s *Service) GenerateBill(ctx context.Context, req ReadingRequest) (*GenerateResult, error) {
	if req.UnitID == "" {
		return nil, &generic.ValidationError{Field: "unit_id", Message: "is required"}
	}
	if req.Period.FiscalMonth < 0 || req.Period.FiscalMonth >= generic.MonthsPerYear {
		return nil, &generic.ValidationError{Field: "period", Message: fmt.Sprintf("fiscal month %d out of range", req.Period.FiscalMonth)}
	}

	var result GenerateResult
	err := s.Store.WithTx(ctx, func(st generic.Store) error {
		previous := int64(0)
		if req.PreviousReading != nil {
			previous = *req.PreviousReading
		} else {
			last, err := s.latestReading(ctx, st, req.UnitID, req.Period)
			if err != nil {
				return err
			}
			previous = last
		}

		consumption, err := s.Metered.Consumption(req.CurrentReading, previous)
		if err != nil {
			return err
		}

		now := s.now()
		bill := generic.Bill{
			UnitID:          req.UnitID,
			ID:              req.Period.BillID(),
			FiscalYear:      req.Period.FiscalYear,
			FiscalMonth:     req.Period.FiscalMonth,
			BaseCharge:      s.BaseCharge(consumption.Consumption),
			Status:          generic.BillUnpaid,
			DueDate:         s.Fiscal.DueDate(req.Period.FiscalYear, req.Period.FiscalMonth, s.Rates.DueDay),
			PreviousReading: previous,
			CurrentReading:  req.CurrentReading,
			Consumption:     consumption.Consumption,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := st.CreateBill(ctx, bill); err != nil {
			if errors.Is(err, generic.ErrDuplicateID) {
				return fmt.Errorf("bill %s for unit %s: %w", bill.ID, req.UnitID, err)
			}
			return fmt.Errorf("create bill: %w", err)
		}
		bill.RecomputeStatus()
		result = GenerateResult{Bill: bill, Consumption: consumption}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := s.logger().With(zap.String("unit_id", string(req.UnitID)), zap.String("bill_id", string(result.Bill.ID)))
	for _, w := range result.Consumption.Warnings {
		log.Warn("meter reading warning", zap.String("warning", w))
	}
	s.audit(ctx, generic.AuditEntry{
		ID:        s.newID(),
		Timestamp: s.now(),
		ActorID:   req.ActorID,
		Action:    generic.AuditBillGenerated,
		UnitID:    req.UnitID,
		Payload: map[string]any{
			"bill_id":           string(result.Bill.ID),
			"consumption":       result.Consumption.Consumption,
			"base_charge_cents": int64(result.Bill.BaseCharge),
			"rollover":          result.Consumption.Rollover,
		},
	})
	s.Refresher.Trigger(req.UnitID, []generic.BillPeriod{req.Period})
	log.Info("water bill generated",
		zap.Int64("consumption", result.Consumption.Consumption),
		zap.Int64("base_charge_cents", int64(result.Bill.BaseCharge)),
	)
	return &result, nil
}

// latestReading returns the current reading of the unit's newest bill
// before period, or 0 when there is none.
func (s *Service) latestReading(ctx context.Context, st generic.Store, unitID generic.UnitID, period generic.BillPeriod) (int64, error) {
	bills, err := st.ListBills(ctx, unitID, 0)
	if err != nil {
		return 0, fmt.Errorf("list bills for unit %s: %w", unitID, err)
	}
	var reading int64
	for _, b := range bills {
		if b.Period().Before(period) {
			reading = b.CurrentReading
		}
	}
	return reading, nil
}

// =============================================================================
// PENALTY REFRESH
// =============================================================================

// PenaltyChange is one bill whose stored penalty changed.
type PenaltyChange struct {
	BillID   generic.BillID
	Period   generic.BillPeriod
	Previous generic.Cents
	Current  generic.Cents
}

// PenaltyRefresh reports a recalculation for one unit.
type PenaltyRefresh struct {
	UnitID  generic.UnitID
	AsOf    generic.TimePoint
	Checked int
	Changes []PenaltyChange
}

// RecalculatePenalties recomputes and stores the penalties of a unit's
// open bills as of asOf (zero = today).
func (s *Service) RecalculatePenalties(ctx context.Context, unitID generic.UnitID, asOf generic.TimePoint, actorID string) (*PenaltyRefresh, error) {
	if asOf.IsZero() {
		asOf = generic.DateOf(s.now())
	}
	refresh := &PenaltyRefresh{UnitID: unitID, AsOf: asOf}

	err := s.Store.WithTx(ctx, func(st generic.Store) error {
		refresh.Checked = 0
		refresh.Changes = nil

		bills, err := st.ListUnpaidBills(ctx, unitID)
		if err != nil {
			return fmt.Errorf("list unpaid bills for unit %s: %w", unitID, err)
		}
		for _, b := range bills {
			refresh.Checked++
			penalty, err := s.Penalties.RecalculatePenalty(b, asOf)
			if err != nil {
				return fmt.Errorf("penalty for bill %s: %w", b.ID, err)
			}
			if penalty == b.PenaltyAmount {
				continue
			}
			if err := st.UpdateBillPenalty(ctx, unitID, b.ID, penalty); err != nil {
				return fmt.Errorf("update penalty of bill %s: %w", b.ID, err)
			}
			refresh.Changes = append(refresh.Changes, PenaltyChange{
				BillID:   b.ID,
				Period:   b.Period(),
				Previous: b.PenaltyAmount,
				Current:  penalty,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(refresh.Changes) == 0 {
		return refresh, nil
	}

	periods := make([]generic.BillPeriod, 0, len(refresh.Changes))
	for _, c := range refresh.Changes {
		periods = append(periods, c.Period)
	}
	s.audit(ctx, generic.AuditEntry{
		ID:        s.newID(),
		Timestamp: s.now(),
		ActorID:   actorID,
		Action:    generic.AuditPenaltiesRecalculated,
		UnitID:    unitID,
		Payload: map[string]any{
			"as_of":         asOf.String(),
			"bills_changed": len(refresh.Changes),
		},
	})
	s.Refresher.Trigger(unitID, periods)
	s.logger().Info("penalties recalculated",
		zap.String("unit_id", string(unitID)),
		zap.String("as_of", asOf.String()),
		zap.Int("bills_changed", len(refresh.Changes)),
	)
	return refresh, nil
}

// RecalculateAll refreshes penalties for every unit with bills. A failing
// unit is logged and skipped; the returned error joins all failures.
func (s *Service) RecalculateAll(ctx context.Context, asOf generic.TimePoint) ([]PenaltyRefresh, error) {
	units, err := s.Store.ListUnitIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	var (
		out  []PenaltyRefresh
		errs []error
	)
	for _, unitID := range units {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := s.RecalculatePenalties(ctx, unitID, asOf, "scheduler")
		if err != nil {
			s.logger().Warn("penalty refresh failed", zap.String("unit_id", string(unitID)), zap.Error(err))
			errs = append(errs, fmt.Errorf("unit %s: %w", unitID, err))
			continue
		}
		out = append(out, *r)
	}
	return out, errors.Join(errs...)
}

func (s *Service) audit(ctx context.Context, entry generic.AuditEntry) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.AppendAudit(ctx, entry); err != nil {
		s.logger().Warn("audit append failed", zap.String("action", string(entry.Action)), zap.Error(err))
	}
}
