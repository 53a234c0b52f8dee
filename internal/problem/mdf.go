package problem

import (
	"context"
	"fmt"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/discipline"
	"github.com/san-kum/mdsolve/internal/jacobian"
	"github.com/san-kum/mdsolve/internal/solver"
)

// mdfForm is the multidisciplinary-feasible formulation: every evaluation
// drives the coupled system to consistency before reading the objective and
// constraints, and totals are assembled from the converged partials.
type mdfForm struct {
	disciplines []Discipline
	solver      *solver.Solver
	assembler   jacobian.Assembler
	ctx         context.Context

	name    string
	inputs  []core.Variable
	outputs []core.Variable
}

func (m *mdfForm) Name() string             { return m.name }
func (m *mdfForm) Inputs() []core.Variable  { return m.inputs }
func (m *mdfForm) Outputs() []core.Variable { return m.outputs }

func (m *mdfForm) setContext(ctx context.Context) { m.ctx = ctx }

func (m *mdfForm) Evaluate(inputs core.Values) (core.Values, error) {
	// The design point becomes each discipline's new baseline before the
	// inner solve re-balances the couplings.
	for _, d := range m.disciplines {
		d.AddDefaultInputs(inputs)
	}

	vals, err := m.solver.Solve(m.ctx, inputs)
	if err != nil {
		return nil, err
	}
	return core.CopyValues(m.outputs, vals), nil
}

func (m *mdfForm) Differentiate(inputs, _ core.Values) (core.Jac, error) {
	partials := core.Jac{}
	for _, d := range m.disciplines {
		jac, err := d.Differentiate(core.CopyValues(d.Inputs(), inputs))
		if err != nil {
			return nil, err
		}
		partials.Update(jac)
	}
	return m.assembler.AssembleTotal(m.inputs, m.outputs, m.solver.Couplings(), partials)
}

// NewMDF formulates a multidisciplinary-feasible problem around an already
// configured coupled solver over the same disciplines.
func NewMDF(disciplines []Discipline, s *solver.Solver, cfg Config) (*Problem, error) {
	if len(disciplines) == 0 {
		return nil, fmt.Errorf("problem %s: no disciplines", cfg.Name)
	}
	if s == nil {
		return nil, fmt.Errorf("problem %s: no coupled solver", cfg.Name)
	}
	form := &mdfForm{
		disciplines: disciplines,
		solver:      s,
		ctx:         context.Background(),
		name:        cfg.Name,
		inputs:      cfg.DesignVars,
		outputs:     append([]core.Variable{cfg.Objective}, cfg.Constraints...),
	}
	return newProblem(form, cfg)
}

var _ discipline.AnalyticKernel = (*mdfForm)(nil)
var _ contextAware = (*mdfForm)(nil)
