// Package problem expresses optimization problems as disciplines: a
// formulation kernel computes the objective and constraints from the design
// variables, and the wrapping Problem adds design-space normalization,
// maximization handling and per-iteration history on top.
package problem

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/mdsolve/internal/cache"
	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/discipline"
	"github.com/san-kum/mdsolve/internal/solver"
)

// Discipline is what a formulation needs from each wrapped component.
// *discipline.Discipline satisfies it.
type Discipline interface {
	solver.Discipline
	AddDefaultInputs(core.Values)
	OutputValues() core.Values
}

// Driver minimizes a problem starting from a point in driver space
// (normalized when the problem normalizes). Implementations live in the
// optim package.
type Driver interface {
	Solve(ctx context.Context, p *Problem, start core.Values) (*Result, error)
}

// Result reports the outcome of a drive. Design and Objective are in
// problem space: denormalized values, true objective sign.
type Result struct {
	Design     core.Values
	Objective  float64
	Converged  bool
	Iterations int
	Message    string
}

// HistoryEntry is one major driver iteration.
type HistoryEntry struct {
	Objective float64
	Design    core.Values
}

// Config carries the common problem definition.
type Config struct {
	Name        string
	DesignVars  []core.Variable
	Objective   core.Variable
	Constraints []core.Variable

	// Maximize flips the objective sign seen by drivers.
	Maximize bool
	// Normalize works the design space in [0,1]. Ignored unless every
	// design variable has finite bounds.
	Normalize bool

	CachePolicy    cache.Policy
	CacheTolerance float64
	Logger         *zap.Logger
}

// Problem couples a formulation kernel with driver-facing plumbing. Its
// embedded discipline evaluates and caches in raw design space.
type Problem struct {
	disc *discipline.Discipline

	name        string
	designVars  []core.Variable
	objective   core.Variable
	constraints []core.Variable
	maximize    bool
	useNorm     bool
	log         *zap.Logger

	history []HistoryEntry
}

// contextAware lets formulations that run inner solves pick up the
// caller's context.
type contextAware interface {
	setContext(ctx context.Context)
}

func newProblem(kernel discipline.Kernel, cfg Config) (*Problem, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("problem: name is required")
	}
	if len(cfg.DesignVars) == 0 {
		return nil, fmt.Errorf("problem %s: no design variables", cfg.Name)
	}
	if cfg.Objective.Name == "" {
		return nil, fmt.Errorf("problem %s: no objective", cfg.Name)
	}

	useNorm := cfg.Normalize
	for _, v := range cfg.DesignVars {
		if !v.Normalizable() {
			useNorm = false
			break
		}
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	d, err := discipline.New(kernel, discipline.Options{
		DiffPolicy:     discipline.DiffAlways,
		CachePolicy:    cfg.CachePolicy,
		CacheTolerance: cfg.CacheTolerance,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	return &Problem{
		disc:        d,
		name:        cfg.Name,
		designVars:  cfg.DesignVars,
		objective:   cfg.Objective,
		constraints: cfg.Constraints,
		maximize:    cfg.Maximize,
		useNorm:     useNorm,
		log:         log,
	}, nil
}

func (p *Problem) Name() string                       { return p.name }
func (p *Problem) DesignVariables() []core.Variable   { return p.designVars }
func (p *Problem) Objective() core.Variable           { return p.objective }
func (p *Problem) Constraints() []core.Variable       { return p.constraints }
func (p *Problem) Normalized() bool                   { return p.useNorm }
func (p *Problem) Maximizing() bool                   { return p.maximize }
func (p *Problem) Discipline() *discipline.Discipline { return p.disc }

// History returns the per-iteration record of the most recent solve.
func (p *Problem) History() []HistoryEntry {
	out := make([]HistoryEntry, len(p.history))
	copy(out, p.history)
	return out
}

// ObjectiveHistory projects the history onto the objective values.
func (p *Problem) ObjectiveHistory() []float64 {
	out := make([]float64, len(p.history))
	for i, e := range p.history {
		out[i] = e.Objective
	}
	return out
}

// Evaluate computes the objective and constraints at a driver-space point:
// normalized design values are mapped back to raw space first, and a
// maximized objective comes back sign-flipped so drivers always minimize.
func (p *Problem) Evaluate(designVec core.Values) (core.Values, error) {
	point := designVec
	if p.useNorm {
		point = core.DenormalizeValues(p.designVars, designVec)
	}
	out, err := p.disc.Evaluate(point)
	if err != nil {
		return nil, err
	}
	if p.maximize {
		for i := range out[p.objective.Name] {
			out[p.objective.Name][i] *= -1
		}
	}
	return out, nil
}

// Differentiate computes driver-space gradients at a driver-space point:
// raw gradients are rescaled by the design spans when normalizing, and the
// objective row is sign-flipped when maximizing.
func (p *Problem) Differentiate(designVec core.Values) (core.Jac, error) {
	point := designVec
	if p.useNorm {
		point = core.DenormalizeValues(p.designVars, designVec)
	}
	jac, err := p.disc.Differentiate(point)
	if err != nil {
		return nil, err
	}
	if p.useNorm {
		jac = core.NormalizeJac(p.designVars, p.disc.Outputs(), jac)
	}
	if p.maximize {
		for _, v := range p.designVars {
			if block := jac.Block(p.objective.Name, v.Name); block != nil {
				block.Scale(-1, block)
			}
		}
	}
	return jac, nil
}

// UpdateHistory records the problem's current point. Drivers call it once
// per major iteration.
func (p *Problem) UpdateHistory() {
	obj := 0.0
	if v := p.disc.OutputValues()[p.objective.Name]; len(v) > 0 {
		obj = v[0]
	}
	p.history = append(p.history, HistoryEntry{
		Objective: obj,
		Design:    core.CopyValues(p.designVars, p.disc.InputValues()),
	})
	p.log.Info("iteration",
		zap.String("problem", p.name),
		zap.Int("iter", len(p.history)),
		zap.Float64("objective", obj))
}

// Solve drives the problem from a raw-space starting point. The returned
// result is back in raw space with the true objective sign.
func (p *Problem) Solve(ctx context.Context, driver Driver, initial core.Values) (*Result, error) {
	if driver == nil {
		return nil, fmt.Errorf("problem %s: no driver given", p.name)
	}
	p.history = nil
	if ca, ok := p.disc.Kernel().(contextAware); ok {
		ca.setContext(ctx)
	}

	start := core.CopyValues(p.designVars, initial)
	if err := core.VerifyValues(p.designVars, start); err != nil {
		return nil, fmt.Errorf("problem %s: %w", p.name, err)
	}
	if p.useNorm {
		start = core.NormalizeValues(p.designVars, start)
	}

	res, err := driver.Solve(ctx, p, start)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", p.name, err)
	}

	if p.useNorm {
		res.Design = core.DenormalizeValues(p.designVars, res.Design)
	}
	if p.maximize {
		res.Objective *= -1
	}
	p.log.Info("solved",
		zap.String("problem", p.name),
		zap.Bool("converged", res.Converged),
		zap.Int("iterations", res.Iterations),
		zap.Float64("objective", res.Objective))
	return res, nil
}
