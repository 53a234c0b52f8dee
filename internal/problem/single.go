package problem

import (
	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/discipline"
)

// singleForm formulates one discipline directly: its outputs are the
// objective and constraints.
type singleForm struct {
	disc    Discipline
	name    string
	inputs  []core.Variable
	outputs []core.Variable
}

func (s *singleForm) Name() string             { return s.name }
func (s *singleForm) Inputs() []core.Variable  { return s.inputs }
func (s *singleForm) Outputs() []core.Variable { return s.outputs }

func (s *singleForm) Evaluate(inputs core.Values) (core.Values, error) {
	out, err := s.disc.Evaluate(inputs)
	if err != nil {
		return nil, err
	}
	return core.CopyValues(s.outputs, out), nil
}

func (s *singleForm) Differentiate(inputs, _ core.Values) (core.Jac, error) {
	jac, err := s.disc.Differentiate(inputs)
	if err != nil {
		return nil, err
	}
	return core.CopyJac(s.inputs, s.outputs, jac), nil
}

// NewSingle formulates a single-discipline optimization problem.
func NewSingle(disc Discipline, cfg Config) (*Problem, error) {
	form := &singleForm{
		disc:    disc,
		name:    cfg.Name,
		inputs:  cfg.DesignVars,
		outputs: append([]core.Variable{cfg.Objective}, cfg.Constraints...),
	}
	return newProblem(form, cfg)
}

var _ discipline.AnalyticKernel = (*singleForm)(nil)
