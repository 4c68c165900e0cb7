// Package forecast builds the free-cash-flow forecast that feeds the
// income-approach valuation. Models are pluggable: policy picks one by name
// and the pipeline stays model-agnostic.
package forecast

import (
	"fmt"

	"valuation_workbench/pkg/core/statement"
)

// Inputs carries the historical anchor for a forecast: the latest normalized
// metrics plus the horizon.
type Inputs struct {
	Base  statement.Metrics
	Years int
}

// Model is a pluggable free-cash-flow forecasting algorithm.
type Model interface {
	// Name returns the model identifier used in policy files.
	Name() string

	// Forecast returns one free-cash-flow value per forecast year.
	Forecast(in Inputs) ([]float64, error)

	// Validate checks that the inputs carry what the model needs.
	Validate(in Inputs) error
}

// Policy selects and parameterizes a model from configuration.
type Policy struct {
	Model  string      `yaml:"model"`
	Growth GrowthModel `yaml:"growth"`
	Driver DriverModel `yaml:"driver"`
}

// New returns the model the policy names.
func (p Policy) New() (Model, error) {
	switch p.Model {
	case "growth", "":
		g := p.Growth
		return &g, nil
	case "driver":
		d := p.Driver
		return &d, nil
	}
	return nil, fmt.Errorf("unknown forecast model %q", p.Model)
}
