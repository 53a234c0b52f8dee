package problem

import (
	"fmt"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/discipline"
	"github.com/san-kum/mdsolve/internal/solver"
)

// ConsistencySuffix names the per-coupling consistency constraint of an
// IDF problem: <coupling>_con must sit inside the feasibility tolerance at
// the optimum.
const ConsistencySuffix = "_con"

// idfForm is the individual-discipline-feasible formulation: coupling
// variables are promoted to design variables and each discipline evaluates
// independently, with consistency enforced through constraints.
type idfForm struct {
	disciplines []Discipline
	couplings   []core.Variable

	name    string
	inputs  []core.Variable
	outputs []core.Variable
}

func (f *idfForm) Name() string             { return f.name }
func (f *idfForm) Inputs() []core.Variable  { return f.inputs }
func (f *idfForm) Outputs() []core.Variable { return f.outputs }

func (f *idfForm) Evaluate(inputs core.Values) (core.Values, error) {
	computed := make(core.Values)
	for _, d := range f.disciplines {
		out, err := d.Evaluate(core.CopyValues(d.Inputs(), inputs))
		if err != nil {
			return nil, err
		}
		computed.Update(out)
	}

	// Consistency residual: promoted value minus what the owning
	// discipline computed from it.
	for _, cv := range f.couplings {
		con := make([]float64, cv.Size)
		for i := range con {
			con[i] = inputs[cv.Name][i] - computed[cv.Name][i]
		}
		computed[cv.Name+ConsistencySuffix] = con
	}
	return core.CopyValues(f.outputs, computed), nil
}

func (f *idfForm) Differentiate(inputs, _ core.Values) (core.Jac, error) {
	partials := core.Jac{}
	for _, d := range f.disciplines {
		jac, err := d.Differentiate(core.CopyValues(d.Inputs(), inputs))
		if err != nil {
			return nil, err
		}
		partials.Update(jac)
	}

	out := core.NewJac(f.inputs, f.outputs)
	for _, ov := range f.outputs {
		for _, iv := range f.inputs {
			if block := partials.Block(ov.Name, iv.Name); block != nil {
				out.Set(ov.Name, iv.Name, block)
			}
		}
	}

	// Consistency rows: identity w.r.t. the promoted coupling itself,
	// negated discipline partials w.r.t. everything else.
	for _, cv := range f.couplings {
		con := cv.Name + ConsistencySuffix
		for _, iv := range f.inputs {
			block := out.Block(con, iv.Name)
			if iv.Name == cv.Name {
				for i := 0; i < cv.Size; i++ {
					block.Set(i, i, 1)
				}
			} else if partial := partials.Block(cv.Name, iv.Name); partial != nil {
				block.Scale(-1, partial)
			}
		}
	}
	return out, nil
}

// NewIDF formulates an individual-discipline-feasible problem: the coupling
// variables join the design set and a consistency constraint per coupling
// keeps the optimum multidisciplinary-consistent within feasibilityTol.
func NewIDF(disciplines []Discipline, feasibilityTol float64, cfg Config) (*Problem, error) {
	if len(disciplines) == 0 {
		return nil, fmt.Errorf("problem %s: no disciplines", cfg.Name)
	}
	if feasibilityTol < 0 {
		return nil, fmt.Errorf("problem %s: feasibility tolerance must not be negative", cfg.Name)
	}

	sd := make([]solver.Discipline, len(disciplines))
	for i, d := range disciplines {
		sd[i] = d
	}
	couplings := solver.CouplingVariables(sd)
	if len(couplings) == 0 {
		return nil, fmt.Errorf("problem %s: no coupling variables, use the single-discipline formulation", cfg.Name)
	}

	cfg.DesignVars = append(append([]core.Variable(nil), cfg.DesignVars...), couplings...)
	for _, cv := range couplings {
		con, err := core.NewVariable(cv.Name+ConsistencySuffix, cv.Size, -feasibilityTol, feasibilityTol, false)
		if err != nil {
			return nil, fmt.Errorf("problem %s: %w", cfg.Name, err)
		}
		cfg.Constraints = append(cfg.Constraints, con)
	}

	form := &idfForm{
		disciplines: disciplines,
		couplings:   couplings,
		name:        cfg.Name,
		inputs:      cfg.DesignVars,
		outputs:     append([]core.Variable{cfg.Objective}, cfg.Constraints...),
	}
	return newProblem(form, cfg)
}

var _ discipline.AnalyticKernel = (*idfForm)(nil)
