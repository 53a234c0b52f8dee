package core

import (
	"fmt"
	"math"
)

// Variable describes a named vector quantity exchanged between disciplines.
// Two variables with the same name refer to the same coupling point,
// regardless of which component created them.
type Variable struct {
	Name         string
	Size         int
	LowerBound   float64
	UpperBound   float64
	KeepFeasible bool
}

// NewVariable builds a variable with explicit bounds.
func NewVariable(name string, size int, lb, ub float64, keepFeasible bool) (Variable, error) {
	if name == "" {
		return Variable{}, fmt.Errorf("variable name must not be empty")
	}
	if size < 1 {
		return Variable{}, fmt.Errorf("variable %s: size must be positive, got %d", name, size)
	}
	if lb > ub {
		return Variable{}, fmt.Errorf("variable %s: lower bound %g exceeds upper bound %g", name, lb, ub)
	}
	return Variable{
		Name:         name,
		Size:         size,
		LowerBound:   lb,
		UpperBound:   ub,
		KeepFeasible: keepFeasible,
	}, nil
}

// Scalar returns an unbounded scalar variable.
func Scalar(name string) Variable {
	return Variable{Name: name, Size: 1, LowerBound: math.Inf(-1), UpperBound: math.Inf(1)}
}

// Vector returns an unbounded variable of the given size.
func Vector(name string, size int) Variable {
	return Variable{Name: name, Size: size, LowerBound: math.Inf(-1), UpperBound: math.Inf(1)}
}

// Normalizable reports whether the variable's bounds admit rescaling to [0,1].
// Infinite or equal bounds do not.
func (v Variable) Normalizable() bool {
	return !math.IsInf(v.LowerBound, 0) && !math.IsInf(v.UpperBound, 0) && v.LowerBound != v.UpperBound
}

// Bounds returns the bounds expanded to the variable's size. When normalize
// is true and the bounds admit it, they are rescaled to [0,1]; otherwise the
// raw bounds are returned unscaled.
func (v Variable) Bounds(normalize bool) (lb, ub []float64, keepFeasible []bool) {
	lb = make([]float64, v.Size)
	ub = make([]float64, v.Size)
	keepFeasible = make([]bool, v.Size)
	for i := 0; i < v.Size; i++ {
		lb[i] = v.LowerBound
		ub[i] = v.UpperBound
		keepFeasible[i] = v.KeepFeasible
	}
	if normalize && v.Normalizable() {
		lb = v.NormValues(lb)
		ub = v.NormValues(ub)
	}
	return lb, ub, keepFeasible
}

// NormValues maps raw values to the [0,1] normalized range.
func (v Variable) NormValues(vals []float64) []float64 {
	out := make([]float64, len(vals))
	span := v.UpperBound - v.LowerBound
	for i, x := range vals {
		out[i] = (x - v.LowerBound) / span
	}
	return out
}

// DenormValues maps normalized values back to the raw range.
func (v Variable) DenormValues(vals []float64) []float64 {
	out := make([]float64, len(vals))
	span := v.UpperBound - v.LowerBound
	for i, x := range vals {
		out[i] = x*span + v.LowerBound
	}
	return out
}

// NormGrad rescales a gradient taken w.r.t. the raw variable into the
// gradient w.r.t. the normalized variable.
func (v Variable) NormGrad(grad []float64) []float64 {
	out := make([]float64, len(grad))
	span := v.UpperBound - v.LowerBound
	for i, g := range grad {
		out[i] = g * span
	}
	return out
}

// DenormGrad is the inverse of NormGrad.
func (v Variable) DenormGrad(grad []float64) []float64 {
	out := make([]float64, len(grad))
	span := v.UpperBound - v.LowerBound
	for i, g := range grad {
		out[i] = g / span
	}
	return out
}

// TotalSize sums the sizes of a variable list.
func TotalSize(vars []Variable) int {
	n := 0
	for _, v := range vars {
		n += v.Size
	}
	return n
}

// ConcatBounds concatenates the bounds of a variable list in list order.
func ConcatBounds(vars []Variable, normalize bool) (lb, ub []float64, keepFeasible []bool) {
	n := TotalSize(vars)
	lb = make([]float64, 0, n)
	ub = make([]float64, 0, n)
	keepFeasible = make([]bool, 0, n)
	for _, v := range vars {
		vlb, vub, vkf := v.Bounds(normalize)
		lb = append(lb, vlb...)
		ub = append(ub, vub...)
		keepFeasible = append(keepFeasible, vkf...)
	}
	return lb, ub, keepFeasible
}
