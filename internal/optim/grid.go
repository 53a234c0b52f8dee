package optim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/problem"
)

// GridSearch sweeps a uniform grid over the bounded design space and keeps
// the best feasible point. Derivative-free; cost grows as Points^dims.
type GridSearch struct {
	// Points per design-space dimension. Defaults to 11.
	Points int
	// FeasibilityTol is how far outside its bounds a constraint value may
	// sit and still count as feasible.
	FeasibilityTol float64
	Logger         *zap.Logger
}

// Solve exhaustively evaluates the grid. Every design variable must have
// finite bounds.
func (g *GridSearch) Solve(ctx context.Context, p *problem.Problem, _ core.Values) (*problem.Result, error) {
	if g.Points == 0 {
		g.Points = 11
	}
	if g.Points < 2 {
		return nil, fmt.Errorf("grid search: need at least 2 points per dimension, got %d", g.Points)
	}
	if g.Logger == nil {
		g.Logger = zap.NewNop()
	}

	vars := p.DesignVariables()
	lb, ub, _ := core.ConcatBounds(vars, p.Normalized())
	for i := range lb {
		if math.IsInf(lb[i], 0) || math.IsInf(ub[i], 0) {
			return nil, fmt.Errorf("grid search: design space must be fully bounded")
		}
	}

	obj := p.Objective().Name
	best := math.Inf(1)
	var bestX []float64
	evals := 0

	x := make([]float64, len(lb))
	var sweep func(depth int) error
	sweep = func(depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth == len(x) {
			out, err := p.Evaluate(core.FromArray(vars, x))
			if err != nil {
				return err
			}
			evals++
			if !g.feasible(p, out) {
				return nil
			}
			if v := out[obj][0]; v < best {
				best = v
				bestX = append(bestX[:0], x...)
				p.UpdateHistory()
			}
			return nil
		}
		for i := 0; i < g.Points; i++ {
			x[depth] = lb[depth] + (ub[depth]-lb[depth])*float64(i)/float64(g.Points-1)
			if err := sweep(depth + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := sweep(0); err != nil {
		return nil, err
	}

	if bestX == nil {
		return nil, fmt.Errorf("grid search: no feasible point on the grid")
	}
	g.Logger.Info("grid search finished",
		zap.Int("evaluations", evals),
		zap.Float64("best", best))
	return &problem.Result{
		Design:     core.FromArray(vars, bestX),
		Objective:  best,
		Converged:  true,
		Iterations: evals,
		Message:    fmt.Sprintf("swept %d grid points", evals),
	}, nil
}

func (g *GridSearch) feasible(p *problem.Problem, out core.Values) bool {
	for _, c := range p.Constraints() {
		for _, v := range out[c.Name] {
			if v < c.LowerBound-g.FeasibilityTol || v > c.UpperBound+g.FeasibilityTol {
				return false
			}
		}
	}
	return true
}
