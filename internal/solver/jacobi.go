package solver

import (
	"fmt"

	"github.com/san-kum/mdsolve/internal/core"
)

// jacobi evaluates every discipline against the same snapshot of the
// coupling values, so updates within a sweep never see each other.
type jacobi struct {
	s *Solver
}

func (j *jacobi) sweep(values core.Values) (core.Values, error) {
	snapshot := values.Clone()
	updated := make(core.Values)
	for _, d := range j.s.disciplines {
		out, err := d.Evaluate(core.CopyValues(d.Inputs(), snapshot))
		if err != nil {
			return nil, fmt.Errorf("solver %s: %w", j.s.name, err)
		}
		updated.Update(out)
	}
	values.Update(updated)
	return core.CopyValues(j.s.couplings, values), nil
}

// NewJacobi builds a nonlinear Jacobi fixed-point solver.
func NewJacobi(disciplines []Discipline, opts Options) (*Solver, error) {
	s, err := newSolver("jacobi", disciplines, opts)
	if err != nil {
		return nil, err
	}
	s.strategy = &jacobi{s: s}
	return s, nil
}
