package solver

import "fmt"

// Kind names a coupled-solve strategy.
type Kind string

const (
	KindJacobi      Kind = "jacobi"
	KindGaussSeidel Kind = "gauss_seidel"
	KindNewton      Kind = "newton"
)

// New builds a solver of the named kind.
func New(kind Kind, disciplines []Discipline, opts Options) (*Solver, error) {
	switch kind {
	case KindJacobi:
		return NewJacobi(disciplines, opts)
	case KindGaussSeidel:
		return NewGaussSeidel(disciplines, opts)
	case KindNewton:
		return NewNewton(disciplines, opts)
	default:
		return nil, fmt.Errorf("unknown solver kind: %s", kind)
	}
}
