package generic_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/generic"
	"github.com/warp/hoa-ledger/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const testUnit generic.UnitID = "unit-101"

var testNow = time.Date(2026, time.February, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// sequentialIDs returns an id generator producing prefix-001, prefix-002, ...
func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func waterBill(month int, base, penalty generic.Cents) generic.Bill {
	period := generic.BillPeriod{FiscalYear: 2026, FiscalMonth: month}
	return generic.Bill{
		UnitID:        testUnit,
		ID:            period.BillID(),
		FiscalYear:    2026,
		FiscalMonth:   month,
		BaseCharge:    base,
		PenaltyAmount: penalty,
		Status:        generic.BillUnpaid,
		DueDate:       generic.NewTimePoint(2026, time.Month(month+1), 10),
	}
}

func testPenalties() generic.PenaltyPolicy {
	return generic.PenaltyPolicy{
		MonthlyRate: decimal.RequireFromString("0.05"),
		Calculator:  generic.NewMeteredBilling(),
	}
}

// recordingRefresher remembers every refresh request.
type recordingRefresher struct {
	mu    sync.Mutex
	calls map[generic.UnitID][]generic.BillPeriod
	err   error
}

func (r *recordingRefresher) Refresh(_ context.Context, unitID generic.UnitID, periods []generic.BillPeriod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[generic.UnitID][]generic.BillPeriod)
	}
	r.calls[unitID] = append(r.calls[unitID], periods...)
	return r.err
}

func (r *recordingRefresher) periods(unitID generic.UnitID) []generic.BillPeriod {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]generic.BillPeriod(nil), r.calls[unitID]...)
}

// testEnv wires the engines against the memory store.
type testEnv struct {
	store     *store.Memory
	ledger    *generic.DefaultCreditLedger
	payments  *generic.PaymentService
	deletions *generic.CompensationEngine
	refresher *recordingRefresher
}

func newTestEnv(t *testing.T, bills ...generic.Bill) *testEnv {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	for _, b := range bills {
		require.NoError(t, mem.CreateBill(ctx, b))
	}
	require.NoError(t, mem.SaveAccount(ctx, generic.Account{ID: "bank", Name: "Operating Bank"}))

	ledger := generic.NewCreditLedger(mem)
	ledger.NewID = sequentialIDs("credit")
	ledger.Clock = fixedClock

	refresher := &recordingRefresher{}
	bg := &generic.BackgroundRefresher{Refresher: refresher}

	return &testEnv{
		store:     mem,
		ledger:    ledger,
		refresher: refresher,
		payments: &generic.PaymentService{
			Store:       mem,
			Credit:      ledger,
			Distributor: &generic.PaymentDistributor{Policy: generic.PenaltiesFirst, Penalties: testPenalties()},
			Categories:  generic.WaterCategories,
			Fiscal:      generic.DefaultFiscalConfig,
			Source:      generic.SourceWaterBills,
			Audit:       mem,
			Refresher:   bg,
			Logger:      zap.NewNop(),
			NewID:       sequentialIDs("tx"),
			Clock:       fixedClock,
		},
		deletions: &generic.CompensationEngine{
			Store:     mem,
			Credit:    ledger,
			Audit:     mem,
			Refresher: bg,
			Logger:    zap.NewNop(),
			NewID:     sequentialIDs("audit"),
			Clock:     fixedClock,
		},
	}
}

// seedCredit gives the unit a credit balance through the ledger.
func (env *testEnv) seedCredit(t *testing.T, amount generic.Cents) {
	t.Helper()
	_, err := env.ledger.AppendEntry(context.Background(), generic.CreditEntryRequest{
		UnitID:        testUnit,
		FiscalYear:    2026,
		TransactionID: "seed",
		Type:          generic.CreditAdded,
		Amount:        amount,
		Description:   "opening credit",
	})
	require.NoError(t, err)
}

func (env *testEnv) bills(t *testing.T) []generic.Bill {
	t.Helper()
	bills, err := env.store.ListBills(context.Background(), testUnit, 0)
	require.NoError(t, err)
	return bills
}

func (env *testEnv) credit(t *testing.T) generic.CreditBalance {
	t.Helper()
	credit, err := env.store.LoadCredit(context.Background(), testUnit, 2026)
	require.NoError(t, err)
	return credit
}

func payment(amount generic.Cents) generic.PaymentRequest {
	return generic.PaymentRequest{
		UnitID:    testUnit,
		AccountID: "bank",
		Amount:    amount,
		Date:      generic.NewTimePoint(2026, time.February, 15),
		Method:    generic.MethodBankTransfer,
		Reference: "REF-1",
		ActorID:   "treasurer",
	}
}

func intPtr(n int) *int { return &n }
