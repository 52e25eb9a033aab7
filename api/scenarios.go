/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos. Each scenario creates accounts, bills, credit and dues
	through the same engines the API uses, so what is loaded is exactly
	what a sequence of API calls would have produced.

AVAILABLE SCENARIOS:

	water-arrears:   Three months of water bills, late fees accrued
	credit-on-file:  Two bills (500 + 700) and 300 of credit on file
	dues-partial:    Monthly dues with one payment covering two and a half months
	paid-then-void:  A paid bill with overpayment, ready for deletion

HOW SCENARIOS WORK:
 1. Reset store and aggregate cache
 2. Create the receiving account
 3. Generate bills / schedule dues / add credit
 4. Optionally record payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "credit-on-file"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.
	All dates are in the current fiscal year.

SEE ALSO:
  - handlers.go: Engine endpoints used to explore the loaded data
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/generic"
	"github.com/warp/hoa-ledger/water"
)

const (
	scenarioActor   = "scenario-loader"
	scenarioAccount = generic.AccountID("bank-main")
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "water-arrears",
		Name:        "Water Arrears",
		Description: "Unit A-101 with three unpaid water bills and compound late fees",
	},
	{
		ID:          "credit-on-file",
		Name:        "Credit On File",
		Description: "Unit B-202 with bills of 500 and 700 and a 300 credit balance",
	},
	{
		ID:          "dues-partial",
		Name:        "Partial Dues",
		Description: "Unit C-303 paying 150/month dues, one 375 payment recorded",
	},
	{
		ID:          "paid-then-void",
		Name:        "Paid Then Void",
		Description: "Unit D-404 with a paid bill and overpayment credit; delete the payment to see compensation",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var loader func(context.Context) error
	switch req.ScenarioID {
	case "water-arrears":
		loader = h.loadWaterArrearsScenario
	case "credit-on-file":
		loader = h.loadCreditOnFileScenario
	case "dues-partial":
		loader = h.loadDuesPartialScenario
	case "paid-then-void":
		loader = h.loadPaidThenVoidScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := loader(ctx); err != nil {
		h.Logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	// Settle async refreshes before reporting success.
	h.App.Refresher.Wait()

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	h.App.Refresher.Wait()
	if err := h.App.Store.Reset(ctx); err != nil {
		return err
	}
	if err := h.App.Aggregates.Clear(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) seedAccount(ctx context.Context) error {
	return h.App.Store.SaveAccount(ctx, generic.Account{ID: scenarioAccount, Name: "Main Bank Account"})
}

// readings generates one water bill per reading, starting at fiscal month 0.
func (h *Handler) readings(ctx context.Context, unitID generic.UnitID, fiscalYear int, readings ...int64) error {
	for month, reading := range readings {
		_, err := h.App.Water.GenerateBill(ctx, water.ReadingRequest{
			UnitID:         unitID,
			Period:         generic.BillPeriod{FiscalYear: fiscalYear, FiscalMonth: month},
			CurrentReading: reading,
			ActorID:        scenarioActor,
		})
		if err != nil {
			return fmt.Errorf("reading for month %d: %w", month, err)
		}
	}
	return nil
}

func (h *Handler) loadWaterArrearsScenario(ctx context.Context) error {
	if err := h.seedAccount(ctx); err != nil {
		return err
	}
	fy := h.currentFiscalYear()
	if err := h.readings(ctx, "A-101", fy, 12, 25, 41); err != nil {
		return err
	}
	_, err := h.App.Water.RecalculatePenalties(ctx, "A-101", generic.Today(), scenarioActor)
	return err
}

func (h *Handler) loadCreditOnFileScenario(ctx context.Context) error {
	if err := h.seedAccount(ctx); err != nil {
		return err
	}
	fy := h.currentFiscalYear()
	fiscal := h.App.Config.Fiscal()
	for month, base := range []generic.Cents{50000, 70000} {
		period := generic.BillPeriod{FiscalYear: fy, FiscalMonth: month}
		bill := generic.Bill{
			UnitID:      "B-202",
			ID:          period.BillID(),
			FiscalYear:  fy,
			FiscalMonth: month,
			BaseCharge:  base,
			Status:      generic.BillUnpaid,
			DueDate:     fiscal.DueDate(fy, month, h.App.Config.Water.DueDay),
		}
		if err := h.App.Store.CreateBill(ctx, bill); err != nil {
			return err
		}
	}
	_, err := h.App.Credit.AppendEntry(ctx, generic.CreditEntryRequest{
		UnitID:      "B-202",
		FiscalYear:  fy,
		Type:        generic.CreditAdded,
		Amount:      30000,
		Description: "opening credit",
	})
	return err
}

func (h *Handler) loadDuesPartialScenario(ctx context.Context) error {
	if err := h.seedAccount(ctx); err != nil {
		return err
	}
	fy := h.currentFiscalYear()
	if _, err := h.App.Dues.Schedule(ctx, "C-303", fy, 15000); err != nil {
		return err
	}
	_, err := h.App.Dues.RecordPayment(ctx, fy, generic.PaymentRequest{
		UnitID:    "C-303",
		AccountID: scenarioAccount,
		Amount:    37500,
		Method:    generic.MethodBankTransfer,
		Reference: "DUES-0001",
		ActorID:   scenarioActor,
	})
	return err
}

func (h *Handler) loadPaidThenVoidScenario(ctx context.Context) error {
	if err := h.seedAccount(ctx); err != nil {
		return err
	}
	fy := h.currentFiscalYear()
	if err := h.readings(ctx, "D-404", fy, 8); err != nil {
		return err
	}
	bills, err := h.App.Store.ListUnpaidBills(ctx, "D-404")
	if err != nil {
		return err
	}
	due := generic.ComputeUnitBalance("D-404", bills, 0).Outstanding
	_, err = h.App.Payments.Record(ctx, generic.PaymentRequest{
		UnitID:    "D-404",
		AccountID: scenarioAccount,
		Amount:    due + 10000,
		Method:    generic.MethodCash,
		Reference: "RCPT-0001",
		Notes:     "overpaid by 100",
		ActorID:   scenarioActor,
	})
	return err
}
