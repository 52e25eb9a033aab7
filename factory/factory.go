/*
Package factory builds the engine graph from configuration.

PURPOSE:
  Every engine takes its collaborators as struct fields; this package is
  the one place that decides which concrete store, cache backend, metrics
  recorder and calculators they get. The API and the CLI only ever see a
  built *App.

GRAPH:
  Store (sqlite or memory) ─┬─ CreditLedger
                            ├─ PaymentService (water bills)
                            ├─ CompensationEngine
                            ├─ water.Service
                            └─ dues.Service
  cache.Aggregates (memory or Redis backend) ← BackgroundRefresher ← all writers
  metrics.Recorder ← all engines

USAGE:
  cfg, _ := config.Load("")
  app, err := factory.Build(cfg, log, prometheus.NewRegistry())
  defer app.Close()
*/
package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/cache"
	"github.com/warp/hoa-ledger/config"
	"github.com/warp/hoa-ledger/dues"
	"github.com/warp/hoa-ledger/generic"
	"github.com/warp/hoa-ledger/generic/store"
	"github.com/warp/hoa-ledger/metrics"
	"github.com/warp/hoa-ledger/store/sqlite"
	"github.com/warp/hoa-ledger/water"
)

// Store is what the factory needs from a concrete store.
type Store interface {
	generic.TxStore
	generic.AuditLog
	Reset(ctx context.Context) error
}

// App is the built engine graph.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   Store
	Metrics *metrics.Recorder

	Credit       *generic.DefaultCreditLedger
	Payments     *generic.PaymentService
	Compensation *generic.CompensationEngine
	Water        *water.Service
	Dues         *dues.Service
	Aggregates   *cache.Aggregates
	Refresher    *generic.BackgroundRefresher

	closers []func() error
}

// Build wires the graph. reg receives the engine metrics.
func Build(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: log}

	st, closeStore, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	app.Store = st
	app.closers = append(app.closers, closeStore)

	backend, closeBackend, err := openBackend(cfg.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closeBackend)

	app.Metrics = metrics.New(reg)
	app.Aggregates = cache.NewAggregates(st, backend)
	app.Refresher = &generic.BackgroundRefresher{
		Refresher: app.Aggregates,
		Async:     cfg.Refresh.Async,
		Timeout:   cfg.Refresh.Timeout,
		Logger:    log.Named("refresh"),
		Metrics:   app.Metrics,
	}

	fiscal := cfg.Fiscal()
	metered := generic.MeteredBilling{
		MeterMax:           cfg.Water.MeterMax,
		ConsumptionCeiling: cfg.Water.ConsumptionCeiling,
		HighUsageThreshold: cfg.Water.HighUsageThreshold,
	}
	penaltyRate, err := cfg.Water.MonthlyPenaltyRate()
	if err != nil {
		app.Close()
		return nil, err
	}
	penalties := generic.PenaltyPolicy{
		MonthlyRate: penaltyRate,
		GraceDays:   cfg.Water.GraceDays,
		Calculator:  metered,
	}
	rate, err := cfg.Water.Rate()
	if err != nil {
		app.Close()
		return nil, err
	}
	minimum, err := cfg.Water.Minimum()
	if err != nil {
		app.Close()
		return nil, err
	}
	policy := generic.PartialPolicy(cfg.Billing.PartialPolicy)

	app.Credit = generic.NewCreditLedger(st)
	app.Payments = &generic.PaymentService{
		Store:       st,
		Credit:      app.Credit,
		Distributor: &generic.PaymentDistributor{Policy: policy, Penalties: penalties},
		Categories:  generic.WaterCategories,
		Fiscal:      fiscal,
		Source:      generic.SourceWaterBills,
		Audit:       st,
		Refresher:   app.Refresher,
		Metrics:     app.Metrics,
		Logger:      log.Named("payments"),
	}
	app.Compensation = &generic.CompensationEngine{
		Store:     st,
		Credit:    app.Credit,
		Audit:     st,
		Refresher: app.Refresher,
		Metrics:   app.Metrics,
		Logger:    log.Named("compensation"),
	}
	app.Water = &water.Service{
		Metered:   metered,
		Penalties: penalties,
		Rates:     water.Rates{RatePerUnit: rate, MinimumCharge: minimum, DueDay: cfg.Water.DueDay},
		Fiscal:    fiscal,
		Store:     st,
		Audit:     st,
		Refresher: app.Refresher,
		Logger:    log.Named("water"),
	}
	app.Dues = &dues.Service{
		Store:       st,
		Distributor: &generic.PaymentDistributor{Policy: policy},
		Fiscal:      fiscal,
		DueDay:      cfg.Dues.DueDay,
		Audit:       st,
		Refresher:   app.Refresher,
		Metrics:     app.Metrics,
		Logger:      log.Named("dues"),
	}

	log.Info("engine graph built",
		zap.Bool("sqlite", cfg.Database.Path != ""),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("partial_policy", string(policy)),
		zap.Int("fiscal_start_month", cfg.Billing.FiscalStartMonth),
	)
	return app, nil
}

// Close drains background refreshes and closes the store and cache.
func (a *App) Close() error {
	a.Refresher.Wait()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openStore uses sqlite for a database path and the memory store otherwise.
func openStore(cfg config.DatabaseConfig) (Store, func() error, error) {
	if cfg.Path == "" {
		return store.NewMemory(), func() error { return nil }, nil
	}
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	s, err := sqlite.New(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return s, s.Close, nil
}

func openBackend(cfg config.RedisConfig) (cache.Backend, func() error, error) {
	if !cfg.Enabled {
		return cache.NewMemory(), func() error { return nil }, nil
	}
	r, err := cache.NewRedis(cache.RedisOptions{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		TTL:      cfg.TTL,
	})
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}
