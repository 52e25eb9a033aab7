package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/config"
	"github.com/warp/hoa-ledger/generic"
	"github.com/warp/hoa-ledger/generic/store"
	"github.com/warp/hoa-ledger/store/sqlite"
	"github.com/warp/hoa-ledger/water"
)

func testConfig(t *testing.T, dbPath string) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join("testdata", "hoa.toml"))
	require.NoError(t, err)
	cfg.Database.Path = dbPath
	cfg.Refresh.Async = false
	return cfg
}

func TestBuild_MemoryStore(t *testing.T) {
	app, err := Build(testConfig(t, ""), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &store.Memory{}, app.Store)
	assert.Equal(t, generic.Cents(2500), app.Water.Rates.RatePerUnit)
	assert.Equal(t, generic.BaseFirst, app.Payments.Distributor.Policy)
	assert.Equal(t, 3, app.Water.Penalties.GraceDays)
}

func TestBuild_SqliteEndToEnd(t *testing.T) {
	// GIVEN: A graph over a sqlite file
	// WHEN: Generating a bill and paying it
	// THEN: The payment lands and the aggregate cache sees it

	dbPath := filepath.Join(t.TempDir(), "data", "hoa.db")
	app, err := Build(testConfig(t, dbPath), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()
	ctx := context.Background()

	assert.IsType(t, &sqlite.Store{}, app.Store)
	require.NoError(t, app.Store.SaveAccount(ctx, generic.Account{ID: "bank", Name: "Bank"}))

	zero := int64(0)
	gen, err := app.Water.GenerateBill(ctx, water.ReadingRequest{
		UnitID: "u1", Period: generic.BillPeriod{FiscalYear: 2026, FiscalMonth: 0}, CurrentReading: 10, PreviousReading: &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(25000), gen.Bill.BaseCharge)

	_, err = app.Payments.Record(ctx, generic.PaymentRequest{
		UnitID: "u1", AccountID: "bank", Amount: 25000, Date: generic.NewTimePoint(2026, 1, 5),
	})
	require.NoError(t, err)

	aggs, err := app.Aggregates.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, generic.Cents(25000), aggs[0].Paid)
}
