// Package solver drives sets of coupled disciplines to a consistent state,
// where every coupling variable agrees with the discipline that computes it.
package solver

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/mdsolve/internal/core"
)

// Status reports the outcome of a solve.
type Status string

const (
	NotConverged Status = "not_converged"
	Converged    Status = "converged"
)

// Discipline is the contract a solver needs from each coupled component.
// *discipline.Discipline satisfies it.
type Discipline interface {
	Name() string
	Inputs() []core.Variable
	Outputs() []core.Variable
	DefaultInputs() core.Values
	Evaluate(inputs core.Values) (core.Values, error)
	Differentiate(inputs core.Values) (core.Jac, error)
}

// strategy performs one sweep over the disciplines and returns updated
// values for the coupling variables.
type strategy interface {
	sweep(values core.Values) (core.Values, error)
}

// Options tunes the iteration. Zero values fall back to 50 iterations,
// a 1e-6 residual tolerance, no relaxation and a no-op logger.
type Options struct {
	MaxIterations int
	Tolerance     float64
	Relaxation    float64
	Logger        *zap.Logger
}

// Solver iterates a set of disciplines until their coupling variables
// stop moving.
type Solver struct {
	name        string
	disciplines []Discipline
	couplings   []core.Variable

	maxIter int
	tol     float64
	relax   float64
	log     *zap.Logger

	strategy  strategy
	status    Status
	residuals []float64
}

func newSolver(name string, disciplines []Discipline, opts Options) (*Solver, error) {
	if len(disciplines) == 0 {
		return nil, fmt.Errorf("solver %s: no disciplines given", name)
	}
	s := &Solver{
		name:        name,
		disciplines: disciplines,
		couplings:   CouplingVariables(disciplines),
		maxIter:     opts.MaxIterations,
		tol:         opts.Tolerance,
		relax:       opts.Relaxation,
		log:         opts.Logger,
		status:      NotConverged,
	}
	if s.maxIter == 0 {
		s.maxIter = 50
	}
	if s.maxIter < 0 {
		return nil, fmt.Errorf("solver %s: max iterations must be positive, got %d", name, s.maxIter)
	}
	if s.tol == 0 {
		s.tol = 1e-6
	}
	if s.tol < 0 {
		return nil, fmt.Errorf("solver %s: tolerance must be positive, got %g", name, s.tol)
	}
	if s.relax == 0 {
		s.relax = 1
	}
	if s.relax <= 0 || s.relax > 1 {
		return nil, fmt.Errorf("solver %s: relaxation factor must be in (0, 1], got %g", name, s.relax)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s, nil
}

func (s *Solver) Name() string               { return s.name }
func (s *Solver) Status() Status             { return s.status }
func (s *Solver) Couplings() []core.Variable { return s.couplings }

// ResidualHistory returns the recorded residuals of the most recent solve:
// the starting residual first, then one entry per completed iteration.
func (s *Solver) ResidualHistory() []float64 {
	out := make([]float64, len(s.residuals))
	copy(out, s.residuals)
	return out
}

// Iterations reports the number of sweeps the most recent solve performed.
func (s *Solver) Iterations() int {
	if len(s.residuals) == 0 {
		return 0
	}
	return len(s.residuals) - 1
}

// CouplingVariables finds the variables that are an output of one
// discipline and an input of another, in first-encounter order.
func CouplingVariables(disciplines []Discipline) []core.Variable {
	inputsOf := make(map[string]bool)
	for _, d := range disciplines {
		for _, v := range d.Inputs() {
			inputsOf[v.Name] = true
		}
	}

	var couplings []core.Variable
	seen := make(map[string]bool)
	for _, d := range disciplines {
		for _, v := range d.Outputs() {
			if inputsOf[v.Name] && !seen[v.Name] {
				seen[v.Name] = true
				couplings = append(couplings, v)
			}
		}
	}
	return couplings
}

// initCouplings seeds the working values for every coupling variable:
// caller-given values win, then discipline defaults; a coupling no source
// can seed is an error.
func (s *Solver) initCouplings(values core.Values) error {
	for _, cv := range s.couplings {
		if v, ok := values[cv.Name]; ok && len(v) == cv.Size {
			continue
		}
		seeded := false
		for _, d := range s.disciplines {
			if v, ok := d.DefaultInputs()[cv.Name]; ok && len(v) == cv.Size {
				values[cv.Name] = append([]float64(nil), v...)
				seeded = true
				break
			}
		}
		if !seeded {
			return fmt.Errorf("solver %s: no initial value for coupling variable %s", s.name, cv.Name)
		}
	}
	return nil
}

// residual measures coupling movement between iterations as the sum over
// variables of ||cur - prev|| / (1 + ||cur||).
func residual(couplings []core.Variable, cur, prev core.Values) float64 {
	total := 0.0
	for _, cv := range couplings {
		c, p := cur[cv.Name], prev[cv.Name]
		diff := make([]float64, cv.Size)
		floats.SubTo(diff, c, p)
		total += floats.Norm(diff, 2) / (1 + floats.Norm(c, 2))
	}
	return total
}

// Solve iterates until the coupling residual drops below tolerance or the
// iteration budget runs out. Running out is reported through Status, not an
// error; evaluation failures and singular Newton systems are errors.
func (s *Solver) Solve(ctx context.Context, initial core.Values) (core.Values, error) {
	s.status = NotConverged
	s.residuals = s.residuals[:0]

	values := initial.Clone()
	if err := s.initCouplings(values); err != nil {
		return nil, err
	}
	if len(s.couplings) == 0 {
		s.log.Info("no coupling variables, single sweep", zap.String("solver", s.name))
		updated, err := s.strategy.sweep(values)
		if err != nil {
			return nil, err
		}
		values.Update(updated)
		s.status = Converged
		return values, nil
	}

	// The starting residual measures the initial estimate against a zero
	// previous estimate; an estimate already at rest converges without a
	// single sweep.
	prev := make(core.Values, len(s.couplings))
	for _, cv := range s.couplings {
		prev[cv.Name] = make([]float64, cv.Size)
	}
	res := residual(s.couplings, values, prev)
	s.residuals = append(s.residuals, res)

	for iter := 1; res > s.tol && iter <= s.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("solver %s: %w", s.name, err)
		}

		prev = core.CopyValues(s.couplings, values)
		updated, err := s.strategy.sweep(values)
		if err != nil {
			return nil, err
		}
		for _, cv := range s.couplings {
			cur := updated[cv.Name]
			relaxed := make([]float64, cv.Size)
			for i := range relaxed {
				relaxed[i] = s.relax*cur[i] + (1-s.relax)*prev[cv.Name][i]
			}
			values[cv.Name] = relaxed
		}

		res = residual(s.couplings, values, prev)
		s.residuals = append(s.residuals, res)
		s.log.Debug("iteration",
			zap.String("solver", s.name),
			zap.Int("iter", iter),
			zap.Float64("residual", res))
	}

	if res <= s.tol {
		s.status = Converged
		s.log.Info("converged",
			zap.String("solver", s.name),
			zap.Int("iterations", s.Iterations()),
			zap.Float64("residual", res))
		return values, nil
	}
	s.log.Warn("iteration budget exhausted without convergence",
		zap.String("solver", s.name),
		zap.Int("max_iterations", s.maxIter),
		zap.Float64("residual", res))
	return values, nil
}
