/*
Package config loads server configuration with viper.

SOURCES (highest priority first):
 1. Environment variables with the HOA_ prefix (HOA_DATABASE_PATH, HOA_WATER_RATE_PER_UNIT)
 2. hoa.toml (current directory, ./config, /etc/hoa-ledger, or an explicit path)
 3. Built-in defaults (setDefaults)

Money settings are written in major units ("50.00") like every other
human-facing amount and converted to cents by the accessors below.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/hoa-ledger/generic"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Billing  BillingConfig
	Water    WaterConfig
	Dues     DuesConfig
	Redis    RedisConfig
	Refresh  RefreshConfig
	HTTP     HTTPConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig selects the store. An empty Path uses the in-memory store.
type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// BillingConfig holds settings shared by every billing module.
type BillingConfig struct {
	FiscalStartMonth int    // 1-12
	PartialPolicy    string // penalties_first, base_first
}

// WaterConfig is the water tariff, meter limits and late-fee rule.
type WaterConfig struct {
	RatePerUnit        string // major units per consumption unit
	MinimumCharge      string // major units
	MeterMax           int64
	ConsumptionCeiling int64
	HighUsageThreshold int64
	PenaltyRate        string // monthly, e.g. "0.05"
	GraceDays          int
	DueDay             int
}

type DuesConfig struct {
	DueDay int
}

// RedisConfig enables the Redis aggregate cache. Disabled means in-process.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RefreshConfig controls aggregate refresh after writes and the periodic
// scheduler (Interval 0 disables it).
type RefreshConfig struct {
	Async    bool
	Timeout  time.Duration
	Interval time.Duration
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string
}

// Load reads configuration. An empty path searches for hoa.toml; a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hoa")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/hoa-ledger")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("HOA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Billing: BillingConfig{
			FiscalStartMonth: v.GetInt("billing.fiscal_start_month"),
			PartialPolicy:    v.GetString("billing.partial_policy"),
		},
		Water: WaterConfig{
			RatePerUnit:        v.GetString("water.rate_per_unit"),
			MinimumCharge:      v.GetString("water.minimum_charge"),
			MeterMax:           v.GetInt64("water.meter_max"),
			ConsumptionCeiling: v.GetInt64("water.consumption_ceiling"),
			HighUsageThreshold: v.GetInt64("water.high_usage_threshold"),
			PenaltyRate:        v.GetString("water.penalty_rate"),
			GraceDays:          v.GetInt("water.grace_days"),
			DueDay:             v.GetInt("water.due_day"),
		},
		Dues: DuesConfig{
			DueDay: v.GetInt("dues.due_day"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		Refresh: RefreshConfig{
			Async:    v.GetBool("refresh.async"),
			Timeout:  v.GetDuration("refresh.timeout"),
			Interval: v.GetDuration("refresh.interval"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hoa-ledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.path", "./data/hoa.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("billing.fiscal_start_month", 1)
	v.SetDefault("billing.partial_policy", string(generic.PenaltiesFirst))

	v.SetDefault("water.rate_per_unit", "50.00")
	v.SetDefault("water.minimum_charge", "0.00")
	v.SetDefault("water.meter_max", generic.DefaultMeterMax)
	v.SetDefault("water.consumption_ceiling", generic.DefaultConsumptionCeiling)
	v.SetDefault("water.high_usage_threshold", generic.DefaultHighUsageThreshold)
	v.SetDefault("water.penalty_rate", "0.05")
	v.SetDefault("water.grace_days", 0)
	v.SetDefault("water.due_day", 10)

	v.SetDefault("dues.due_day", 1)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("refresh.async", true)
	v.SetDefault("refresh.timeout", 30*time.Second)
	v.SetDefault("refresh.interval", time.Hour)

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_allow_origins", []string{"*"})
}

// Validate rejects settings the engines cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.App.Port == "" {
		errs = append(errs, errors.New("app.port is required"))
	}
	if c.Billing.FiscalStartMonth < 1 || c.Billing.FiscalStartMonth > 12 {
		errs = append(errs, fmt.Errorf("billing.fiscal_start_month must be 1-12, got %d", c.Billing.FiscalStartMonth))
	}
	if !generic.PartialPolicy(c.Billing.PartialPolicy).Valid() {
		errs = append(errs, fmt.Errorf("billing.partial_policy %q is unknown", c.Billing.PartialPolicy))
	}
	if _, err := c.Water.Rate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Water.Minimum(); err != nil {
		errs = append(errs, err)
	}
	if rate, err := c.Water.MonthlyPenaltyRate(); err != nil {
		errs = append(errs, err)
	} else if rate.IsNegative() {
		errs = append(errs, fmt.Errorf("water.penalty_rate must not be negative, got %s", rate))
	}
	if c.Water.MeterMax <= 0 || c.Water.ConsumptionCeiling <= 0 {
		errs = append(errs, errors.New("water.meter_max and water.consumption_ceiling must be positive"))
	}
	if c.Water.GraceDays < 0 {
		errs = append(errs, fmt.Errorf("water.grace_days must not be negative, got %d", c.Water.GraceDays))
	}
	for name, day := range map[string]int{"water.due_day": c.Water.DueDay, "dues.due_day": c.Dues.DueDay} {
		if day < 1 || day > 31 {
			errs = append(errs, fmt.Errorf("%s must be 1-31, got %d", name, day))
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Refresh.Interval < 0 {
		errs = append(errs, errors.New("refresh.interval must not be negative"))
	}
	return errors.Join(errs...)
}

// Fiscal returns the fiscal calendar.
func (c *Config) Fiscal() generic.FiscalConfig {
	return generic.FiscalConfig{StartMonth: time.Month(c.Billing.FiscalStartMonth)}
}

// Rate is the price of one consumption unit.
func (w WaterConfig) Rate() (generic.Cents, error) {
	c, err := generic.ParseMajor(w.RatePerUnit)
	if err != nil {
		return 0, fmt.Errorf("water.rate_per_unit: %w", err)
	}
	if c < 0 {
		return 0, fmt.Errorf("water.rate_per_unit must not be negative, got %s", c)
	}
	return c, nil
}

func (w WaterConfig) Minimum() (generic.Cents, error) {
	c, err := generic.ParseMajor(w.MinimumCharge)
	if err != nil {
		return 0, fmt.Errorf("water.minimum_charge: %w", err)
	}
	if c < 0 {
		return 0, fmt.Errorf("water.minimum_charge must not be negative, got %s", c)
	}
	return c, nil
}

func (w WaterConfig) MonthlyPenaltyRate() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(w.PenaltyRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("water.penalty_rate %q: %w", w.PenaltyRate, err)
	}
	return d, nil
}
