package core

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Jac holds partial-derivative blocks as a two-level mapping: output name to
// input name to a dense (output.Size x input.Size) block.
type Jac map[string]map[string]*mat.Dense

// NewJac initializes a zero block for every (output, input) pair. A block
// left at zero models a missing dependency, not a missing value.
func NewJac(inputs, outputs []Variable) Jac {
	jac := make(Jac, len(outputs))
	for _, out := range outputs {
		jac[out.Name] = make(map[string]*mat.Dense, len(inputs))
		for _, in := range inputs {
			jac[out.Name][in.Name] = mat.NewDense(out.Size, in.Size, nil)
		}
	}
	return jac
}

// Set stores a copy of block under (output, input).
func (j Jac) Set(output, input string, block *mat.Dense) {
	if _, ok := j[output]; !ok {
		j[output] = make(map[string]*mat.Dense)
	}
	j[output][input] = mat.DenseCopyOf(block)
}

// SetScalar stores a 1x1 block under (output, input).
func (j Jac) SetScalar(output, input string, v float64) {
	j.Set(output, input, mat.NewDense(1, 1, []float64{v}))
}

// Block returns the block under (output, input), or nil.
func (j Jac) Block(output, input string) *mat.Dense {
	if row, ok := j[output]; ok {
		return row[input]
	}
	return nil
}

// Update deep-copies every block of other into j, overwriting on conflict.
func (j Jac) Update(other Jac) {
	for out, row := range other {
		if _, ok := j[out]; !ok {
			j[out] = make(map[string]*mat.Dense, len(row))
		}
		for in, block := range row {
			j[out][in] = mat.DenseCopyOf(block)
		}
	}
}

// Clone deep-copies the jacobian.
func (j Jac) Clone() Jac {
	out := make(Jac, len(j))
	out.Update(j)
	return out
}

// CopyJac copies the blocks present in src for the listed variable pairs.
func CopyJac(inputs, outputs []Variable, src Jac) Jac {
	out := make(Jac, len(outputs))
	for _, ov := range outputs {
		row, ok := src[ov.Name]
		if !ok {
			continue
		}
		out[ov.Name] = make(map[string]*mat.Dense, len(inputs))
		for _, iv := range inputs {
			if block, ok := row[iv.Name]; ok {
				out[ov.Name][iv.Name] = mat.DenseCopyOf(block)
			}
		}
	}
	return out
}

// VerifyJac checks that a correctly shaped block exists for every
// (output, input) pair.
func VerifyJac(inputs, outputs []Variable, jac Jac) error {
	for _, ov := range outputs {
		row, ok := jac[ov.Name]
		if !ok {
			return &ValueError{Variable: ov.Name, Reason: "missing jacobian row"}
		}
		for _, iv := range inputs {
			block, ok := row[iv.Name]
			if !ok {
				return &ValueError{
					Variable: ov.Name,
					Reason:   fmt.Sprintf("missing jacobian block w.r.t. %s", iv.Name),
				}
			}
			r, c := block.Dims()
			if r != ov.Size || c != iv.Size {
				return &ValueError{
					Variable: ov.Name,
					Reason: fmt.Sprintf("jacobian block w.r.t. %s has shape (%d,%d), want (%d,%d)",
						iv.Name, r, c, ov.Size, iv.Size),
				}
			}
		}
	}
	return nil
}

// JacToMatrix assembles the blocks into one dense matrix with rows laid out
// by output list order and columns by input list order. Missing blocks
// contribute zeros.
func JacToMatrix(inputs, outputs []Variable, jac Jac) *mat.Dense {
	m := mat.NewDense(TotalSize(outputs), TotalSize(inputs), nil)
	rowIdx := 0
	for _, ov := range outputs {
		colIdx := 0
		for _, iv := range inputs {
			if block := jac.Block(ov.Name, iv.Name); block != nil {
				m.Slice(rowIdx, rowIdx+ov.Size, colIdx, colIdx+iv.Size).(*mat.Dense).Copy(block)
			}
			colIdx += iv.Size
		}
		rowIdx += ov.Size
	}
	return m
}

// JacFromMatrix splits a dense matrix back into named blocks following the
// same layout as JacToMatrix.
func JacFromMatrix(inputs, outputs []Variable, m mat.Matrix) Jac {
	jac := make(Jac, len(outputs))
	rowIdx := 0
	for _, ov := range outputs {
		jac[ov.Name] = make(map[string]*mat.Dense, len(inputs))
		colIdx := 0
		for _, iv := range inputs {
			block := mat.NewDense(ov.Size, iv.Size, nil)
			for r := 0; r < ov.Size; r++ {
				for c := 0; c < iv.Size; c++ {
					block.Set(r, c, m.At(rowIdx+r, colIdx+c))
				}
			}
			jac[ov.Name][iv.Name] = block
			colIdx += iv.Size
		}
		rowIdx += ov.Size
	}
	return jac
}

// NormalizeJac rescales each block by the span of its input variable,
// converting raw gradients into gradients w.r.t. normalized inputs.
func NormalizeJac(inputs, outputs []Variable, jac Jac) Jac {
	out := jac.Clone()
	for _, ov := range outputs {
		for _, iv := range inputs {
			block := out.Block(ov.Name, iv.Name)
			if block == nil || !iv.Normalizable() {
				continue
			}
			block.Scale(iv.UpperBound-iv.LowerBound, block)
		}
	}
	return out
}
