package solver

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/jacobian"
)

// newton linearizes the coupling residual R(y) = y - f(x, y) at the current
// point and solves dR/dy · delta = -R for the full update each sweep.
type newton struct {
	s         *Solver
	assembler jacobian.Assembler
}

func (n *newton) sweep(values core.Values) (core.Values, error) {
	computed := make(core.Values)
	partials := core.Jac{}
	for _, d := range n.s.disciplines {
		in := core.CopyValues(d.Inputs(), values)
		out, err := d.Evaluate(in)
		if err != nil {
			return nil, fmt.Errorf("solver %s: %w", n.s.name, err)
		}
		computed.Update(out)

		jac, err := d.Differentiate(in)
		if err != nil {
			return nil, fmt.Errorf("solver %s: %w", n.s.name, err)
		}
		partials.Update(jac)
	}
	couplings := n.s.couplings
	current := core.CopyValues(couplings, values)
	values.Update(computed)
	if len(couplings) == 0 {
		return current, nil
	}

	nc := core.TotalSize(couplings)
	res := mat.NewVecDense(nc, nil)
	idx := 0
	for _, cv := range couplings {
		for i := 0; i < cv.Size; i++ {
			res.SetVec(idx, -(current[cv.Name][i] - computed[cv.Name][i]))
			idx++
		}
	}

	dRdY := n.assembler.AssemblePartial(couplings, couplings, partials, true)
	var delta mat.VecDense
	if err := delta.SolveVec(dRdY, res); err != nil {
		return nil, fmt.Errorf("solver %s: coupling jacobian is singular: %w", n.s.name, err)
	}

	updated := current.Clone()
	idx = 0
	for _, cv := range couplings {
		for i := 0; i < cv.Size; i++ {
			updated[cv.Name][i] += delta.AtVec(idx)
			idx++
		}
	}
	return updated, nil
}

// NewNewton builds a Newton-Raphson solver over the coupling residual. It
// needs every discipline to provide derivatives for its coupled outputs.
func NewNewton(disciplines []Discipline, opts Options) (*Solver, error) {
	s, err := newSolver("newton", disciplines, opts)
	if err != nil {
		return nil, err
	}
	s.strategy = &newton{s: s}
	return s, nil
}
