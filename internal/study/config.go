// Package study wires disciplines, solvers and drivers into runnable,
// yaml-configurable studies, with a preset registry of known problems.
package study

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/mdsolve/internal/core"
)

const (
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 50
	DefaultRelaxation    = 1.0
	DefaultDriverIter    = 100
	DefaultGridPoints    = 11
)

// Config selects what a study runs and how. Empty fields fall back to the
// preset's own defaults.
type Config struct {
	Name        string               `yaml:"name"`
	Kind        string               `yaml:"kind"` // solve | optimize
	Solver      SolverConfig         `yaml:"solver"`
	Driver      DriverConfig         `yaml:"driver"`
	CachePolicy string               `yaml:"cache_policy"`
	Initial     map[string][]float64 `yaml:"initial"`
}

// SolverConfig tunes the coupled (MDA) solve.
type SolverConfig struct {
	Type          string  `yaml:"type"` // jacobi | gauss_seidel | newton
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	Relaxation    float64 `yaml:"relaxation"`
}

// DriverConfig tunes the optimization drive.
type DriverConfig struct {
	Type          string  `yaml:"type"` // gonum | grid
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	Points        int     `yaml:"points"`
	Penalty       float64 `yaml:"penalty"`
}

func DefaultConfig() *Config {
	return &Config{
		Solver: SolverConfig{
			Tolerance:     DefaultTolerance,
			MaxIterations: DefaultMaxIterations,
			Relaxation:    DefaultRelaxation,
		},
		Driver: DriverConfig{
			Type:          "gonum",
			Tolerance:     DefaultTolerance,
			MaxIterations: DefaultDriverIter,
			Points:        DefaultGridPoints,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// InitialValues converts the configured starting point, merged over the
// preset's own starting values (config wins).
func (c *Config) InitialValues(preset core.Values) core.Values {
	vals := preset.Clone()
	for name, v := range c.Initial {
		vals[name] = append([]float64(nil), v...)
	}
	return vals
}
