// Package jacobian assembles per-discipline partial derivatives into block
// matrices and total derivatives of system outputs w.r.t. system inputs.
package jacobian

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mdsolve/internal/core"
)

// Assembler converts partial-derivative mappings into dense block matrices
// and total derivatives. It is stateless and safe to share.
type Assembler struct{}

// AssemblePartial lays the partial blocks for each (output, input) pair into
// one matrix of shape (Σ output.Size, Σ input.Size). When an output and
// input share a name the diagonal sub-block is the identity; otherwise the
// supplied block is used if present, else zero. With asResidual set, the
// off-diagonal blocks are negated, modeling R = y − f(x).
func (a Assembler) AssemblePartial(inputs, outputs []core.Variable, partials core.Jac, asResidual bool) *mat.Dense {
	sign := 1.0
	if asResidual {
		sign = -1.0
	}

	m := mat.NewDense(core.TotalSize(outputs), core.TotalSize(inputs), nil)
	rowIdx := 0
	for _, ov := range outputs {
		colIdx := 0
		for _, iv := range inputs {
			if ov.Name == iv.Name {
				for i := 0; i < ov.Size; i++ {
					m.Set(rowIdx+i, colIdx+i, 1)
				}
			} else if block := partials.Block(ov.Name, iv.Name); block != nil {
				dst := m.Slice(rowIdx, rowIdx+ov.Size, colIdx, colIdx+iv.Size).(*mat.Dense)
				dst.Scale(sign, block)
			}
			colIdx += iv.Size
		}
		rowIdx += ov.Size
	}
	return m
}

// AssembleTotal computes the total derivatives of the outputs w.r.t. the
// inputs, accounting for coupling feedback:
//
//	total = dF/dX − dF/dY · (dR/dY)⁻¹ · dR/dX
//
// The adjoint formulation is used when the inputs are fewer than the
// outputs, the direct formulation otherwise; both factor the coupling
// Jacobian, so a singular coupling system is an error.
func (a Assembler) AssembleTotal(inputs, outputs, couplings []core.Variable, partials core.Jac) (core.Jac, error) {
	// A coupling variable requested as an output is a pure selection: its
	// defining-equation partials belong to the residual rows only, so they
	// are dropped from the function rows to avoid counting them twice.
	funcPartials := partials
	if len(couplings) > 0 {
		funcPartials = partials.Clone()
		for _, cv := range couplings {
			delete(funcPartials, cv.Name)
		}
	}

	dFdX := a.AssemblePartial(inputs, outputs, funcPartials, false)

	// No coupling feedback: the totals are the partials.
	if len(couplings) == 0 {
		return core.JacFromMatrix(inputs, outputs, dFdX), nil
	}

	dRdY := a.AssemblePartial(couplings, couplings, partials, true)
	dRdX := a.AssemblePartial(inputs, couplings, partials, true)
	dFdY := a.AssemblePartial(couplings, outputs, funcPartials, false)

	nIn := core.TotalSize(inputs)
	nOut := core.TotalSize(outputs)

	var correction mat.Dense
	if nIn < nOut {
		// Adjoint: solve (dR/dY)ᵗ Λ = (dF/dY)ᵗ, then Λᵗ·dR/dX.
		var lambda mat.Dense
		if err := lambda.Solve(dRdY.T(), dFdY.T()); err != nil {
			return nil, fmt.Errorf("adjoint solve: coupling jacobian is singular: %w", err)
		}
		correction.Mul(lambda.T(), dRdX)
	} else {
		// Direct: solve dR/dY · S = dR/dX, then dF/dY·S.
		var s mat.Dense
		if err := s.Solve(dRdY, dRdX); err != nil {
			return nil, fmt.Errorf("direct solve: coupling jacobian is singular: %w", err)
		}
		correction.Mul(dFdY, &s)
	}

	var total mat.Dense
	total.Sub(dFdX, &correction)
	return core.JacFromMatrix(inputs, outputs, &total), nil
}
