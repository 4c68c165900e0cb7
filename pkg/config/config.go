// Package config loads process configuration from the environment and the
// engagement policy file. Environment variables carry deployment wiring;
// the policy file carries valuation judgment calls that reviewers sign off
// on per engagement.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"valuation_workbench/pkg/core/forecast"
	"valuation_workbench/pkg/core/valuation"
)

// Config is the process-level configuration, loaded from VW_* environment
// variables. Materiality has no default on purpose: a reconciliation
// tolerance is an engagement decision, not a deployment accident.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash-exp"`

	ProviderKind    string        `envconfig:"PROVIDER" default:"damodaran"`
	ProviderBaseURL string        `envconfig:"PROVIDER_BASE_URL"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`
	PitchBookAPIKey string        `envconfig:"PITCHBOOK_API_KEY"`

	ReconMaterialityAbs float64 `envconfig:"RECON_MATERIALITY_ABS"`
	ReconMaterialityPct float64 `envconfig:"RECON_MATERIALITY_PCT"`
	MinMapConfidence    float64 `envconfig:"MIN_MAP_CONFIDENCE" default:"0.80"`

	PolicyPath string `envconfig:"POLICY_PATH" default:"resources/valuation_policy.yaml"`
	COAPath    string `envconfig:"COA_PATH" default:"resources/canonical_coa.hjson"`
}

// Load reads VW_*-prefixed environment variables and enforces the required
// settings.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("vw", &cfg); err != nil {
		return nil, fmt.Errorf("load environment config: %w", err)
	}
	if cfg.ReconMaterialityAbs <= 0 && cfg.ReconMaterialityPct <= 0 {
		return nil, fmt.Errorf("reconciliation materiality is required: set VW_RECON_MATERIALITY_ABS or VW_RECON_MATERIALITY_PCT")
	}
	return &cfg, nil
}

// Policy is the per-engagement valuation policy file.
type Policy struct {
	MethodWeights valuation.MethodWeights `yaml:"method_weights"`
	GPCM          valuation.GPCMConfig    `yaml:"gpcm"`
	GTM           valuation.GTMConfig     `yaml:"gtm"`
	Validation    ValidationPolicy        `yaml:"validation"`
	Forecast      forecast.Policy         `yaml:"forecast"`
	Sensitivity   SensitivityPolicy       `yaml:"sensitivity"`
}

// ValidationPolicy tunes the rule engine thresholds.
type ValidationPolicy struct {
	MarginLow     float64 `yaml:"margin_low"`
	MarginHigh    float64 `yaml:"margin_high"`
	SwingMultiple float64 `yaml:"swing_multiple"`
}

// SensitivityPolicy sizes the DCF sensitivity grid.
type SensitivityPolicy struct {
	WACCDelta   float64 `yaml:"wacc_delta"`
	GrowthDelta float64 `yaml:"growth_delta"`
	Steps       int     `yaml:"steps"`
}

// LoadPolicy parses the YAML policy file and checks the weights up front so
// a bad policy fails at startup, not mid-run.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := p.MethodWeights.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return &p, nil
}
