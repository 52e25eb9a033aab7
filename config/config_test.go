package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/generic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hoa.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "penalties_first", cfg.Billing.PartialPolicy)
	assert.Equal(t, generic.DefaultFiscalConfig, cfg.Fiscal())
	assert.Equal(t, 10, cfg.Water.DueDay)
	assert.Equal(t, time.Hour, cfg.Refresh.Interval)
	assert.False(t, cfg.Redis.Enabled)

	rate, err := cfg.Water.Rate()
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(5000), rate)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
[billing]
fiscal_start_month = 7
partial_policy = "base_first"

[water]
rate_per_unit = "12.50"
minimum_charge = "100"
penalty_rate = "0.03"
grace_days = 5

[redis]
enabled = true
addr = "cache:6379"
ttl = "2h"
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, time.July, cfg.Fiscal().StartMonth)
	assert.Equal(t, "base_first", cfg.Billing.PartialPolicy)
	minimum, err := cfg.Water.Minimum()
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(10000), minimum)
	rate, err := cfg.Water.MonthlyPenaltyRate()
	require.NoError(t, err)
	assert.Equal(t, "0.03", rate.String())
	assert.Equal(t, 5, cfg.Water.GraceDays)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Redis.TTL)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "[app]\nport = \"9000\"\n")
	t.Setenv("HOA_APP_PORT", "9100")
	t.Setenv("HOA_DATABASE_PATH", ":memory:")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.App.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"fiscal month", "[billing]\nfiscal_start_month = 13\n", "fiscal_start_month"},
		{"partial policy", "[billing]\npartial_policy = \"oldest\"\n", "partial_policy"},
		{"rate", "[water]\nrate_per_unit = \"abc\"\n", "rate_per_unit"},
		{"negative penalty", "[water]\npenalty_rate = \"-0.01\"\n", "penalty_rate"},
		{"due day", "[dues]\ndue_day = 0\n", "dues.due_day"},
		{"redis addr", "[redis]\nenabled = true\naddr = \"\"\n", "redis.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))

	assert.Error(t, err)
}
