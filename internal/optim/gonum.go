// Package optim provides drivers that minimize optimization problems:
// a gradient-based driver over gonum's optimizers and a derivative-free
// bounded grid search.
package optim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/problem"
)

// Gonum drives a problem with a gonum optimize.Method. Box bounds and
// constraint bounds are enforced through an exterior quadratic penalty,
// since gonum's local methods are unconstrained.
type Gonum struct {
	Method        optimize.Method
	MaxIterations int
	Tolerance     float64
	Penalty       float64
	Logger        *zap.Logger
}

func (g *Gonum) defaults() {
	if g.Method == nil {
		g.Method = &optimize.BFGS{}
	}
	if g.MaxIterations == 0 {
		g.MaxIterations = 100
	}
	if g.Tolerance == 0 {
		g.Tolerance = 1e-6
	}
	if g.Penalty == 0 {
		g.Penalty = 1e3
	}
	if g.Logger == nil {
		g.Logger = zap.NewNop()
	}
}

// Solve minimizes the problem from a driver-space starting point.
func (g *Gonum) Solve(ctx context.Context, p *problem.Problem, start core.Values) (*problem.Result, error) {
	g.defaults()

	vars := p.DesignVariables()
	obj := p.Objective().Name
	lb, ub, _ := core.ConcatBounds(vars, p.Normalized())

	var evalErr error
	fn := func(x []float64) float64 {
		if evalErr != nil {
			return math.Inf(1)
		}
		out, err := p.Evaluate(core.FromArray(vars, x))
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		return out[obj][0] + g.penalty(p, x, lb, ub, out)
	}
	grad := func(dst, x []float64) {
		if evalErr != nil {
			return
		}
		point := core.FromArray(vars, x)
		out, err := p.Evaluate(point)
		if err != nil {
			evalErr = err
			return
		}
		jac, err := p.Differentiate(point)
		if err != nil {
			evalErr = err
			return
		}
		copy(dst, flattenRow(vars, jac, obj))
		g.penaltyGrad(dst, p, x, lb, ub, out, jac)
	}

	settings := &optimize.Settings{
		MajorIterations:   g.MaxIterations,
		GradientThreshold: g.Tolerance,
		Recorder:          &historyRecorder{ctx: ctx, problem: p},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: fn, Grad: grad},
		core.ToArray(vars, start), settings, g.Method)
	if evalErr != nil {
		return nil, evalErr
	}
	if err != nil {
		return nil, fmt.Errorf("gonum driver: %w", err)
	}

	best := core.FromArray(vars, res.X)
	final, err := p.Evaluate(best)
	if err != nil {
		return nil, err
	}
	converged := res.Status != optimize.IterationLimit
	g.Logger.Info("gonum driver finished",
		zap.String("status", res.Status.String()),
		zap.Int("major_iterations", res.Stats.MajorIterations))
	return &problem.Result{
		Design:     best,
		Objective:  final[obj][0],
		Converged:  converged,
		Iterations: res.Stats.MajorIterations,
		Message:    res.Status.String(),
	}, nil
}

// penalty sums quadratic violations of the design bounds and of the
// constraint variables' bounds.
func (g *Gonum) penalty(p *problem.Problem, x, lb, ub []float64, out core.Values) float64 {
	pen := 0.0
	for i := range x {
		if v := boundViolation(x[i], lb[i], ub[i]); v != 0 {
			pen += v * v
		}
	}
	for _, c := range p.Constraints() {
		for _, v := range out[c.Name] {
			if d := boundViolation(v, c.LowerBound, c.UpperBound); d != 0 {
				pen += d * d
			}
		}
	}
	return g.Penalty * pen
}

// penaltyGrad accumulates the penalty gradient into dst.
func (g *Gonum) penaltyGrad(dst []float64, p *problem.Problem, x, lb, ub []float64, out core.Values, jac core.Jac) {
	for i := range x {
		if v := boundViolation(x[i], lb[i], ub[i]); v != 0 {
			dst[i] += 2 * g.Penalty * v
		}
	}
	vars := p.DesignVariables()
	for _, c := range p.Constraints() {
		for r, v := range out[c.Name] {
			d := boundViolation(v, c.LowerBound, c.UpperBound)
			if d == 0 {
				continue
			}
			idx := 0
			for _, dv := range vars {
				block := jac.Block(c.Name, dv.Name)
				for col := 0; col < dv.Size; col++ {
					if block != nil {
						dst[idx] += 2 * g.Penalty * d * block.At(r, col)
					}
					idx++
				}
			}
		}
	}
}

// boundViolation is the signed distance outside [lb, ub], zero inside.
func boundViolation(v, lb, ub float64) float64 {
	if v > ub {
		return v - ub
	}
	if v < lb {
		return v - lb
	}
	return 0
}

// flattenRow concatenates one jacobian row over the design variables.
func flattenRow(vars []core.Variable, jac core.Jac, output string) []float64 {
	row := make([]float64, 0, core.TotalSize(vars))
	for _, v := range vars {
		block := jac.Block(output, v.Name)
		for i := 0; i < v.Size; i++ {
			if block != nil {
				row = append(row, block.At(0, i))
			} else {
				row = append(row, 0)
			}
		}
	}
	return row
}

// historyRecorder appends a problem history entry per major iteration and
// aborts the run when the context is done.
type historyRecorder struct {
	ctx     context.Context
	problem *problem.Problem
}

func (r *historyRecorder) Init() error { return nil }

func (r *historyRecorder) Record(_ *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if op == optimize.MajorIteration {
		r.problem.UpdateHistory()
	}
	return nil
}
