package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "DRY_RUN", c.Mode)
	assert.Equal(t, 75, c.Strategy.LotSize)
	assert.Equal(t, 10.0, c.Strategy.BreakoutPct)
	assert.Equal(t, "09:20", c.Strategy.AnalysisTime)
}

func TestLoadConfigAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `
mode: LIVE
strategy:
  stoploss_pct: 25
`)
	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "LIVE", c.Mode)
	assert.Equal(t, 25.0, c.Strategy.StoplossPct)
	// Untouched knobs keep their defaults.
	assert.Equal(t, 2.0, c.Strategy.RiskRewardRatio)
	assert.Equal(t, 500, c.Strategy.MaxStrikeDistance)
	assert.Equal(t, "STEP", c.Strategy.Trailing.Mode)
	assert.Equal(t, 86400, c.GTT.ExpirySeconds)
}

func TestLoadConfigRejectsBadMode(t *testing.T) {
	path := writeConfig(t, "mode: PAPER\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestLoadConfigRejectsBadTrailingMode(t *testing.T) {
	path := writeConfig(t, `
mode: DRY_RUN
strategy:
  trailing:
    mode: ATR
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing.mode")
}

func TestLoadConfigRejectsBadClock(t *testing.T) {
	path := writeConfig(t, `
mode: DRY_RUN
market:
  open_time: "9 am"
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market.open_time")
}

func TestValidateStoplossBounds(t *testing.T) {
	c := Default()
	c.Strategy.StoplossPct = 120
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stoploss_pct")
}
