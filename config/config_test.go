package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViper(values map[string]any) *viper.Viper {
	v := newViper()
	v.Set("ENVIRONMENT", "test")
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(testViper(nil))
	require.NoError(t, err)

	assert.True(t, cfg.DefaultBettingAmount.Equal(decimal.RequireFromString("0.25")))
	assert.True(t, cfg.PlatformFeeRate.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, 5, cfg.ReportBanThreshold)
	assert.Equal(t, 50, cfg.ChatHistoryLimit)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(testViper(map[string]any{
		"DEFAULT_BETTING_AMOUNT": "1.50",
		"REPORT_BAN_THRESHOLD":   3,
		"LOG_FORMAT":             "JSON",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.DefaultBettingAmount.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 3, cfg.ReportBanThreshold)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"non numeric stake", map[string]any{"DEFAULT_BETTING_AMOUNT": "lots"}},
		{"zero stake", map[string]any{"DEFAULT_BETTING_AMOUNT": "0"}},
		{"fee rate of one", map[string]any{"PLATFORM_FEE_RATE": "1"}},
		{"zero ban threshold", map[string]any{"REPORT_BAN_THRESHOLD": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(testViper(tt.values))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProductionRequiresDatabase(t *testing.T) {
	v := newViper()
	v.Set("ENVIRONMENT", "production")
	v.Set("DATABASE_URL", "")
	v.Set("JWT_SECRET", "secret")

	_, err := load(v)
	assert.Error(t, err)
}
