package solver

import (
	"fmt"

	"github.com/san-kum/mdsolve/internal/core"
)

// gaussSeidel evaluates the disciplines in order, feeding each one the
// outputs of those already evaluated in the same sweep.
type gaussSeidel struct {
	s *Solver
}

func (g *gaussSeidel) sweep(values core.Values) (core.Values, error) {
	for _, d := range g.s.disciplines {
		out, err := d.Evaluate(core.CopyValues(d.Inputs(), values))
		if err != nil {
			return nil, fmt.Errorf("solver %s: %w", g.s.name, err)
		}
		values.Update(out)
	}
	return core.CopyValues(g.s.couplings, values), nil
}

// NewGaussSeidel builds a nonlinear Gauss-Seidel fixed-point solver.
func NewGaussSeidel(disciplines []Discipline, opts Options) (*Solver, error) {
	s, err := newSolver("gauss_seidel", disciplines, opts)
	if err != nil {
		return nil, err
	}
	s.strategy = &gaussSeidel{s: s}
	return s, nil
}
