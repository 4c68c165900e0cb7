package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresMateriality(t *testing.T) {
	t.Setenv("VW_RECON_MATERIALITY_ABS", "0")
	t.Setenv("VW_RECON_MATERIALITY_PCT", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "materiality")

	t.Setenv("VW_RECON_MATERIALITY_ABS", "1000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, cfg.ReconMaterialityAbs)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "damodaran", cfg.ProviderKind)
	assert.Equal(t, 0.80, cfg.MinMapConfidence)
}

func TestLoadPolicyBundled(t *testing.T) {
	p, err := LoadPolicy("../../resources/valuation_policy.yaml")
	require.NoError(t, err)

	assert.NoError(t, p.MethodWeights.Validate())
	assert.NotEmpty(t, p.GPCM.Multiples)
	assert.NotEmpty(t, p.GTM.Multiples)
	assert.Greater(t, p.Sensitivity.Steps, 0)

	m, err := p.Forecast.New()
	require.NoError(t, err)
	assert.NotEmpty(t, m.Name())
}

func TestLoadPolicyRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("method_weights:\n  dcf: 0.9\n  gpcm: 0.3\n"), 0o644))

	_, err := LoadPolicy(path)
	require.Error(t, err)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
