package core

import (
	"fmt"
	"math"
)

// Values maps variable names to their numeric vectors. All cross-component
// data exchange uses this shape; positional arrays appear only at the
// linear-algebra boundaries, laid out by concatenating variable sizes in
// list order.
type Values map[string][]float64

// ValueError reports a missing or mis-sized variable value.
type ValueError struct {
	Variable string
	Reason   string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("variable %s: %s", e.Variable, e.Reason)
}

// Clone deep-copies the container.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for name, vals := range v {
		out[name] = append([]float64(nil), vals...)
	}
	return out
}

// Update deep-copies every entry of other into v, overwriting on conflict.
func (v Values) Update(other Values) {
	for name, vals := range other {
		v[name] = append([]float64(nil), vals...)
	}
}

// Norm returns the Euclidean norm of the vector stored under name.
func (v Values) Norm(name string) float64 {
	s := 0.0
	for _, x := range v[name] {
		s += x * x
	}
	return math.Sqrt(s)
}

// CopyValues copies the entries for the listed variables that are present
// in src.
func CopyValues(vars []Variable, src Values) Values {
	out := make(Values, len(vars))
	for _, vr := range vars {
		if vals, ok := src[vr.Name]; ok {
			out[vr.Name] = append([]float64(nil), vals...)
		}
	}
	return out
}

// VerifyValues checks that every listed variable has a value of exactly the
// declared size.
func VerifyValues(vars []Variable, vals Values) error {
	for _, vr := range vars {
		got, ok := vals[vr.Name]
		if !ok {
			return &ValueError{Variable: vr.Name, Reason: "missing value"}
		}
		if len(got) != vr.Size {
			return &ValueError{
				Variable: vr.Name,
				Reason:   fmt.Sprintf("size %d does not match declared size %d", len(got), vr.Size),
			}
		}
	}
	return nil
}

// ToArray concatenates the values of the listed variables in list order.
func ToArray(vars []Variable, vals Values) []float64 {
	arr := make([]float64, 0, TotalSize(vars))
	for _, vr := range vars {
		arr = append(arr, vals[vr.Name]...)
	}
	return arr
}

// FromArray splits a concatenated array back into named values following the
// same layout as ToArray.
func FromArray(vars []Variable, arr []float64) Values {
	vals := make(Values, len(vars))
	idx := 0
	for _, vr := range vars {
		vals[vr.Name] = append([]float64(nil), arr[idx:idx+vr.Size]...)
		idx += vr.Size
	}
	return vals
}

// NormalizeValues rescales the listed variables' values to [0,1].
func NormalizeValues(vars []Variable, vals Values) Values {
	out := vals.Clone()
	for _, vr := range vars {
		if v, ok := out[vr.Name]; ok {
			out[vr.Name] = vr.NormValues(v)
		}
	}
	return out
}

// DenormalizeValues is the inverse of NormalizeValues.
func DenormalizeValues(vars []Variable, vals Values) Values {
	out := vals.Clone()
	for _, vr := range vars {
		if v, ok := out[vr.Name]; ok {
			out[vr.Name] = vr.DenormValues(v)
		}
	}
	return out
}

// ComplexValues is the complex counterpart of Values, used during
// complex-step differentiation sweeps.
type ComplexValues map[string][]complex128

// Complex promotes the container to complex values with zero imaginary parts.
func (v Values) Complex() ComplexValues {
	out := make(ComplexValues, len(v))
	for name, vals := range v {
		cv := make([]complex128, len(vals))
		for i, x := range vals {
			cv[i] = complex(x, 0)
		}
		out[name] = cv
	}
	return out
}

// Real drops the imaginary parts, recovering plain values.
func (v ComplexValues) Real() Values {
	out := make(Values, len(v))
	for name, vals := range v {
		rv := make([]float64, len(vals))
		for i, x := range vals {
			rv[i] = real(x)
		}
		out[name] = rv
	}
	return out
}

// Clone deep-copies the container.
func (v ComplexValues) Clone() ComplexValues {
	out := make(ComplexValues, len(v))
	for name, vals := range v {
		out[name] = append([]complex128(nil), vals...)
	}
	return out
}
