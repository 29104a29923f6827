package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvParlikar/perpetra/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "PERP-USDC", cfg.Market.Symbol)
	assert.Equal(t, 50, cfg.Engine.MaxLeverage)
}

func TestLoadAppliesYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perpetra.yaml")
	yaml := []byte("market:\n  symbol: TEST-USDC\nengine:\n  max_leverage: 20\n")
	require.NoError(t, os.WriteFile(path, yaml, 0644))

	cfg, err := config.Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "TEST-USDC", cfg.Market.Symbol)
	assert.Equal(t, 20, cfg.Engine.MaxLeverage)
}

func TestLoadAppliesEnvOverrideAboveYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perpetra.yaml")
	yaml := []byte("engine:\n  max_leverage: 20\n")
	require.NoError(t, os.WriteFile(path, yaml, 0644))

	t.Setenv("PERPETRA_MAX_LEVERAGE", "5")
	cfg, err := config.Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Engine.MaxLeverage, "an env var overrides both the YAML file and the default")
}

func TestValidateRejectsBadLeverage(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.MaxLeverage = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsLiquidationThresholdOutOfRange(t *testing.T) {
	cfg := config.Default()
	cfg.Risk.LiquidationThreshold = cfg.Risk.LiquidationThreshold.Neg()
	assert.Error(t, cfg.Validate())
}
