package optim

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/discipline"
	"github.com/san-kum/mdsolve/internal/problem"
)

func boundedVars(t *testing.T) (core.Variable, core.Variable) {
	t.Helper()
	x1, err := core.NewVariable("x1", 1, 2, 100, false)
	if err != nil {
		t.Fatalf("NewVariable: %v", err)
	}
	x2, err := core.NewVariable("x2", 1, 3, 90, false)
	if err != nil {
		t.Fatalf("NewVariable: %v", err)
	}
	return x1, x2
}

// shiftedBowl has its unconstrained minimum inside the bounds, at (5, 6).
func shiftedBowl(t *testing.T, x1, x2 core.Variable) problem.Discipline {
	t.Helper()
	y := core.Scalar("y")
	k := discipline.NewFunc("Bowl", []core.Variable{x1, x2}, []core.Variable{y},
		func(in core.Values) (core.Values, error) {
			d1, d2 := in["x1"][0]-5, in["x2"][0]-6
			return core.Values{"y": {d1*d1 + d2*d2}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			jac := core.Jac{}
			jac.SetScalar("y", "x1", 2*(in["x1"][0]-5))
			jac.SetScalar("y", "x2", 2*(in["x2"][0]-6))
			return jac, nil
		})
	d, err := discipline.New(k, discipline.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// constrainedParabola outputs y = x1^2 + x2^2 and g = x1 + x2.
func constrainedParabola(t *testing.T, x1, x2 core.Variable) problem.Discipline {
	t.Helper()
	y := core.Scalar("y")
	g := core.Scalar("g")
	k := discipline.NewFunc("Parabola", []core.Variable{x1, x2}, []core.Variable{y, g},
		func(in core.Values) (core.Values, error) {
			v1, v2 := in["x1"][0], in["x2"][0]
			return core.Values{"y": {v1*v1 + v2*v2}, "g": {v1 + v2}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			jac := core.Jac{}
			jac.SetScalar("y", "x1", 2*in["x1"][0])
			jac.SetScalar("y", "x2", 2*in["x2"][0])
			jac.SetScalar("g", "x1", 1)
			jac.SetScalar("g", "x2", 1)
			return jac, nil
		})
	d, err := discipline.New(k, discipline.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestGonumFindsInteriorMinimum(t *testing.T) {
	x1, x2 := boundedVars(t)
	p, err := problem.NewSingle(shiftedBowl(t, x1, x2), problem.Config{
		Name:       "BowlOpt",
		DesignVars: []core.Variable{x1, x2},
		Objective:  core.Scalar("y"),
		Normalize:  true,
	})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}

	res, err := p.Solve(context.Background(), &Gonum{}, core.Values{"x1": {50}, "x2": {50}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Converged {
		t.Errorf("driver did not converge: %s", res.Message)
	}
	if math.Abs(res.Design["x1"][0]-5) > 1e-3 || math.Abs(res.Design["x2"][0]-6) > 1e-3 {
		t.Errorf("minimum at (%.5g, %.5g), want (5, 6)",
			res.Design["x1"][0], res.Design["x2"][0])
	}
	if res.Objective > 1e-5 {
		t.Errorf("objective = %g, want ~0", res.Objective)
	}
	if len(p.History()) == 0 {
		t.Error("driver must record iteration history")
	}
}

func TestGonumPenalizesBoundViolation(t *testing.T) {
	x1, x2 := boundedVars(t)
	// Unconstrained minimum (0,0) sits outside the bounds: the penalty
	// must hold the solution near the lower corner (2,3).
	p, err := problem.NewSingle(constrainedParabola(t, x1, x2), problem.Config{
		Name:        "ParabolaOpt",
		DesignVars:  []core.Variable{x1, x2},
		Objective:   core.Scalar("y"),
		Constraints: []core.Variable{core.Scalar("g")},
		Normalize:   true,
	})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}

	res, err := p.Solve(context.Background(), &Gonum{Penalty: 1e7},
		core.Values{"x1": {50}, "x2": {50}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(res.Design["x1"][0]-2) > 0.05 || math.Abs(res.Design["x2"][0]-3) > 0.05 {
		t.Errorf("minimum at (%.5g, %.5g), want near (2, 3)",
			res.Design["x1"][0], res.Design["x2"][0])
	}
	if math.Abs(res.Objective-13) > 0.5 {
		t.Errorf("objective = %g, want ~13", res.Objective)
	}
}

func TestGridSearchFindsCorner(t *testing.T) {
	x1, x2 := boundedVars(t)
	p, err := problem.NewSingle(constrainedParabola(t, x1, x2), problem.Config{
		Name:       "ParabolaGrid",
		DesignVars: []core.Variable{x1, x2},
		Objective:  core.Scalar("y"),
		Normalize:  true,
	})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}

	res, err := p.Solve(context.Background(), &GridSearch{}, core.Values{"x1": {50}, "x2": {50}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Converged {
		t.Error("exhaustive sweep must report converged")
	}
	if res.Design["x1"][0] != 2 || res.Design["x2"][0] != 3 {
		t.Errorf("best point (%.5g, %.5g), want the bound corner (2, 3)",
			res.Design["x1"][0], res.Design["x2"][0])
	}
	if res.Objective != 13 {
		t.Errorf("objective = %g, want 13", res.Objective)
	}
}

func TestGridSearchSkipsInfeasiblePoints(t *testing.T) {
	x1, x2 := boundedVars(t)
	gCon, err := core.NewVariable("g", 1, 10, math.Inf(1), false)
	if err != nil {
		t.Fatalf("NewVariable: %v", err)
	}
	p, err := problem.NewSingle(constrainedParabola(t, x1, x2), problem.Config{
		Name:        "ParabolaCon",
		DesignVars:  []core.Variable{x1, x2},
		Objective:   core.Scalar("y"),
		Constraints: []core.Variable{gCon},
	})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}

	res, err := p.Solve(context.Background(), &GridSearch{}, core.Values{"x1": {50}, "x2": {50}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	// The corner (2,3) violates g >= 10; the best feasible grid point is
	// (2, 11.7).
	if res.Design["x1"][0] != 2 || math.Abs(res.Design["x2"][0]-11.7) > 1e-9 {
		t.Errorf("best point (%.5g, %.5g), want (2, 11.7)",
			res.Design["x1"][0], res.Design["x2"][0])
	}
	if sum := res.Design["x1"][0] + res.Design["x2"][0]; sum < 10 {
		t.Errorf("best point violates the constraint: g = %g", sum)
	}
}

func TestGridSearchMaximizes(t *testing.T) {
	x1, x2 := boundedVars(t)
	p, err := problem.NewSingle(constrainedParabola(t, x1, x2), problem.Config{
		Name:       "ParabolaMax",
		DesignVars: []core.Variable{x1, x2},
		Objective:  core.Scalar("y"),
		Maximize:   true,
	})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}

	res, err := p.Solve(context.Background(), &GridSearch{}, core.Values{"x1": {50}, "x2": {50}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Design["x1"][0] != 100 || res.Design["x2"][0] != 90 {
		t.Errorf("best point (%.5g, %.5g), want the upper corner (100, 90)",
			res.Design["x1"][0], res.Design["x2"][0])
	}
	if res.Objective != 100*100+90*90 {
		t.Errorf("objective = %g, want %d", res.Objective, 100*100+90*90)
	}
}

func TestGridSearchRequiresBounds(t *testing.T) {
	d := shiftedBowl(t, core.Scalar("x1"), core.Scalar("x2"))
	p, err := problem.NewSingle(d, problem.Config{
		Name:       "Unbounded",
		DesignVars: []core.Variable{core.Scalar("x1"), core.Scalar("x2")},
		Objective:  core.Scalar("y"),
	})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}
	if _, err := p.Solve(context.Background(), &GridSearch{}, core.Values{"x1": {0}, "x2": {0}}); err == nil {
		t.Error("unbounded design space must fail the grid search")
	}
}
