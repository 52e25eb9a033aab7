/*
handlers.go - HTTP API handlers for the HOA ledger

PURPOSE:
  Exposes the payment, compensation, water and dues engines via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  engines built by the factory.

ENDPOINTS:
  Payments:
    POST   /api/units/{unitID}/payments/preview   Distribution preview, no writes
    POST   /api/units/{unitID}/payments           Record a water-bill payment

  Bills and balances:
    GET    /api/units/{unitID}/bills              ?unpaid=true&fiscal_year=
    GET    /api/units/{unitID}/balance            Outstanding minus credit
    GET    /api/units/{unitID}/credit             ?fiscal_year=
    GET    /api/units/{unitID}/transactions       Transaction history
    GET    /api/units/{unitID}/aggregates         Cached per-period totals

  Water:
    POST   /api/units/{unitID}/readings           Generate a bill from a reading
    POST   /api/units/{unitID}/penalties/recalculate

  Dues:
    PUT    /api/units/{unitID}/dues/{fiscalYear}           Set monthly amount
    GET    /api/units/{unitID}/dues/{fiscalYear}           Month grid
    POST   /api/units/{unitID}/dues/{fiscalYear}/payments  Record a dues payment

  Transactions:
    GET    /api/transactions/{id}
    DELETE /api/transactions/{id}                 Compensating deletion

  Admin:
    GET    /api/audit                             ?unit_id=&actor_id=&action=&limit=
    GET    /api/accounts/{id}
    POST   /api/accounts
    POST   /api/admin/refresh                     Penalty + aggregate refresh now

REQUEST FLOW:
  1. Decode JSON body, validate struct tags
  2. Convert major-unit amounts to Cents
  3. Call the engine
  4. Convert the result to DTOs

ERROR HANDLING:
  writeDomainError maps engine errors to statuses:
  - 400: Validation errors, invalid input, inconsistent readings
  - 404: Missing bill, transaction, dues record, account
  - 409: Duplicate id, concurrent modification
  - 422: Allocation integrity violation
  - 500: Compensation failure, fatal reconciliation, anything else

SECURITY NOTE:
  No authentication. actor_id is taken from the request as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/factory"
	"github.com/warp/hoa-ledger/generic"
	"github.com/warp/hoa-ledger/water"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	App      *factory.App
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over a built engine graph.
func NewHandler(app *factory.App, gatherer prometheus.Gatherer) *Handler {
	v := validator.New()
	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	log := app.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{App: app, Gatherer: gatherer, Logger: log.Named("api"), validate: v}
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// PreviewPayment computes a distribution without writing anything.
func (h *Handler) PreviewPayment(w http.ResponseWriter, r *http.Request) {
	var body PaymentRequestDTO
	if !h.decode(w, r, &body) {
		return
	}
	req, err := toPaymentRequest(unitParam(r), body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	plan, err := h.App.Payments.Preview(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(plan))
}

// RecordPayment applies a payment to the unit's water bills.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var body PaymentRequestDTO
	if !h.decode(w, r, &body) {
		return
	}
	req, err := toPaymentRequest(unitParam(r), body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.App.Payments.Record(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResultDTO(result))
}

func toPaymentRequest(unitID generic.UnitID, body PaymentRequestDTO) (generic.PaymentRequest, error) {
	req := generic.PaymentRequest{
		UnitID:      unitID,
		AccountID:   generic.AccountID(body.AccountID),
		Amount:      generic.FromMajor(body.Amount),
		MonthCutoff: body.MonthCutoff,
		Method:      generic.PaymentMethod(body.Method),
		Reference:   body.Reference,
		Notes:       body.Notes,
		ActorID:     body.ActorID,
	}
	var err error
	if body.Date != "" {
		if req.Date, err = generic.ParseDate(body.Date); err != nil {
			return req, &generic.ValidationError{Field: "date", Message: err.Error()}
		}
	}
	if body.AsOfDate != "" {
		if req.AsOf, err = generic.ParseDate(body.AsOfDate); err != nil {
			return req, &generic.ValidationError{Field: "as_of_date", Message: err.Error()}
		}
	}
	return req, nil
}

// =============================================================================
// BILL, BALANCE AND CREDIT HANDLERS
// =============================================================================

// ListBills returns a unit's bills, oldest first.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	unitID := unitParam(r)
	fiscalYear, err := intQuery(r, "fiscal_year", 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var bills []generic.Bill
	if r.URL.Query().Get("unpaid") == "true" {
		bills, err = h.App.Store.ListUnpaidBills(r.Context(), unitID)
		if err == nil && fiscalYear != 0 {
			bills = filterFiscalYear(bills, fiscalYear)
		}
	} else {
		bills, err = h.App.Store.ListBills(r.Context(), unitID, fiscalYear)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTOs(bills))
}

func filterFiscalYear(bills []generic.Bill, fiscalYear int) []generic.Bill {
	out := bills[:0]
	for _, b := range bills {
		if b.FiscalYear == fiscalYear {
			out = append(out, b)
		}
	}
	return out
}

// GetBalance returns the unit's outstanding position net of current credit.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	unitID := unitParam(r)
	bills, err := h.App.Store.ListUnpaidBills(r.Context(), unitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	credit, err := h.App.Credit.Balance(r.Context(), unitID, h.currentFiscalYear())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(generic.ComputeUnitBalance(unitID, bills, credit.CurrentBalance)))
}

// GetCredit returns the credit document for a fiscal year (default current).
func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	fiscalYear, err := intQuery(r, "fiscal_year", h.currentFiscalYear())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	credit, err := h.App.Credit.Balance(r.Context(), unitParam(r), fiscalYear)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(credit))
}

// ListTransactions returns the unit's transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.App.Store.ListTransactions(r.Context(), unitParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		out[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAggregates returns the cached per-period totals, computing on a miss.
func (h *Handler) GetAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.App.Aggregates.Get(r.Context(), unitParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAggregateDTOs(aggs))
}

// =============================================================================
// WATER HANDLERS
// =============================================================================

// GenerateBill turns a meter reading into a bill.
func (h *Handler) GenerateBill(w http.ResponseWriter, r *http.Request) {
	var body ReadingRequest
	if !h.decode(w, r, &body) {
		return
	}

	result, err := h.App.Water.GenerateBill(r.Context(), water.ReadingRequest{
		UnitID:          unitParam(r),
		Period:          generic.BillPeriod{FiscalYear: body.FiscalYear, FiscalMonth: body.FiscalMonth},
		CurrentReading:  body.CurrentReading,
		PreviousReading: body.PreviousReading,
		ActorID:         body.ActorID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillGeneratedDTO(result))
}

// RecalculatePenalties refreshes the stored penalties of one unit.
func (h *Handler) RecalculatePenalties(w http.ResponseWriter, r *http.Request) {
	var body PenaltyRecalcRequest
	if !h.decode(w, r, &body) {
		return
	}
	var asOf generic.TimePoint
	if body.AsOfDate != "" {
		var err error
		if asOf, err = generic.ParseDate(body.AsOfDate); err != nil {
			writeDomainError(w, &generic.ValidationError{Field: "as_of_date", Message: err.Error()})
			return
		}
	}

	result, err := h.App.Water.RecalculatePenalties(r.Context(), unitParam(r), asOf, body.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyRefreshDTO(result))
}

// =============================================================================
// DUES HANDLERS
// =============================================================================

// ScheduleDues sets the monthly dues amount of a unit for a fiscal year.
func (h *Handler) ScheduleDues(w http.ResponseWriter, r *http.Request) {
	fiscalYear, ok := fiscalYearParam(w, r)
	if !ok {
		return
	}
	var body ScheduleDuesRequest
	if !h.decode(w, r, &body) {
		return
	}

	if _, err := h.App.Dues.Schedule(r.Context(), unitParam(r), fiscalYear, generic.FromMajor(body.MonthlyAmount)); err != nil {
		writeDomainError(w, err)
		return
	}
	status, err := h.App.Dues.Status(r.Context(), unitParam(r), fiscalYear)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDuesStatusDTO(status))
}

// GetDuesStatus returns the month grid of a unit's dues.
func (h *Handler) GetDuesStatus(w http.ResponseWriter, r *http.Request) {
	fiscalYear, ok := fiscalYearParam(w, r)
	if !ok {
		return
	}
	status, err := h.App.Dues.Status(r.Context(), unitParam(r), fiscalYear)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDuesStatusDTO(status))
}

// RecordDuesPayment applies a payment to the unit's dues months.
func (h *Handler) RecordDuesPayment(w http.ResponseWriter, r *http.Request) {
	fiscalYear, ok := fiscalYearParam(w, r)
	if !ok {
		return
	}
	var body PaymentRequestDTO
	if !h.decode(w, r, &body) {
		return
	}
	req, err := toPaymentRequest(unitParam(r), body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.App.Dues.RecordPayment(r.Context(), fiscalYear, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResultDTO(result))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.App.Store.GetTransaction(r.Context(), generic.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// DeleteTransaction runs the compensating deletion of a transaction.
// The actor is taken from the actor_id query parameter.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	txID := generic.TransactionID(chi.URLParam(r, "id"))
	actorID := r.URL.Query().Get("actor_id")

	result, err := h.App.Compensation.DeleteTransaction(r.Context(), txID, actorID)
	if err != nil {
		if errors.Is(err, generic.ErrFatalReconciliation) {
			h.Logger.Error("deletion left credit inconsistent",
				zap.String("transaction_id", string(txID)),
				zap.String("request_id", requestID(r)),
				zap.Error(err),
			)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompensationDTO(result))
}

// =============================================================================
// AUDIT AND ACCOUNTS
// =============================================================================

// QueryAudit lists audit entries matching the query filters.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intQuery(r, "limit", 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	filter := generic.AuditFilter{Limit: limit}
	if v := q.Get("unit_id"); v != "" {
		unitID := generic.UnitID(v)
		filter.UnitID = &unitID
	}
	if v := q.Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, generic.AuditAction(a))
	}

	entries, err := h.App.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.App.Store.GetAccount(r.Context(), generic.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// SaveAccount creates or renames an account. The balance is untouched.
func (h *Handler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	var body SaveAccountRequest
	if !h.decode(w, r, &body) {
		return
	}
	ctx := r.Context()
	acct, err := h.App.Store.GetAccount(ctx, generic.AccountID(body.ID))
	switch {
	case generic.IsNotFound(err):
		acct = generic.Account{ID: generic.AccountID(body.ID)}
	case err != nil:
		writeDomainError(w, err)
		return
	}
	acct.Name = body.Name
	if err := h.App.Store.SaveAccount(ctx, acct); err != nil {
		writeDomainError(w, err)
		return
	}
	acct, err = h.App.Store.GetAccount(ctx, acct.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// TriggerRefresh runs the periodic penalty and aggregate refresh now.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	run, err := RunRefresh(r.Context(), h.App, generic.Today())
	if err != nil {
		h.Logger.Warn("manual refresh finished with errors", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, run)
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.App.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) currentFiscalYear() int {
	return h.App.Config.Fiscal().FiscalYearOf(generic.Today())
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure. An empty body decodes to the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			resp := ErrorResponse{Error: "Request validation failed"}
			for _, fe := range verrs {
				resp.Fields = append(resp.Fields, FieldError{Field: fe.Field(), Message: validationMessage(fe)})
			}
			writeJSON(w, http.StatusBadRequest, resp)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "datetime":
		return "Must be a date in YYYY-MM-DD format"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "min", "gte":
		return "Must be at least " + fe.Param()
	case "max":
		return "Must be at most " + fe.Param()
	default:
		return "Failed on " + fe.Tag()
	}
}

func unitParam(r *http.Request) generic.UnitID {
	return generic.UnitID(chi.URLParam(r, "unitID"))
}

func fiscalYearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	fy, err := strconv.Atoi(chi.URLParam(r, "fiscalYear"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fiscal year", err)
		return 0, false
	}
	return fy, true
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &generic.ValidationError{Field: name, Message: fmt.Sprintf("must be an integer, got %q", raw)}
	}
	return n, nil
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps an engine error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	// Compensation errors wrap their cause, so they are matched before the
	// client and not-found cases the cause may also satisfy.
	var verr *generic.ValidationError
	switch {
	case errors.Is(err, generic.ErrFatalReconciliation):
		writeError(w, http.StatusInternalServerError, "Manual reconciliation required", err)
	case errors.Is(err, generic.ErrCompensationFailed) && generic.IsRetryable(err):
		writeError(w, http.StatusConflict, "Deletion conflicted and was rolled back", err)
	case errors.Is(err, generic.ErrCompensationFailed):
		writeError(w, http.StatusInternalServerError, "Deletion failed and was rolled back", err)
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: err.Error(),
			Fields:  []FieldError{{Field: verr.Field, Message: verr.Message}},
		})
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrIntegrityViolation):
		writeError(w, http.StatusUnprocessableEntity, "Allocation integrity check failed", err)
	case errors.Is(err, generic.ErrDuplicateID), generic.IsRetryable(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
