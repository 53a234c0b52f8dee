package problem

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/discipline"
	"github.com/san-kum/mdsolve/internal/solver"
)

func parabolaDiscipline(t *testing.T) (Discipline, []core.Variable, core.Variable) {
	t.Helper()
	x1, _ := core.NewVariable("x1", 1, 2, 100, false)
	x2, _ := core.NewVariable("x2", 1, 3, 90, false)
	y := core.Scalar("y")

	k := discipline.NewFunc("Parabola", []core.Variable{x1, x2}, []core.Variable{y},
		func(in core.Values) (core.Values, error) {
			v1, v2 := in["x1"][0], in["x2"][0]
			return core.Values{"y": {v1*v1 + v2*v2}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			jac := core.Jac{}
			jac.SetScalar("y", "x1", 2*in["x1"][0])
			jac.SetScalar("y", "x2", 2*in["x2"][0])
			return jac, nil
		})
	d, err := discipline.New(k, discipline.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, []core.Variable{x1, x2}, y
}

// coupledTrio builds the linear system
//
//	y2 = x1 + y1, y1 = x2 - 0.5*y2, f = y1 + y2
//
// with closed-form totals df/dx1 = 1/3 and df/dx2 = 4/3.
func coupledTrio(t *testing.T) []Discipline {
	t.Helper()
	x1 := core.Scalar("x1")
	x2 := core.Scalar("x2")
	y1 := core.Scalar("y1")
	y2 := core.Scalar("y2")
	f := core.Scalar("f")

	a := discipline.NewFunc("A", []core.Variable{x1, y1}, []core.Variable{y2},
		func(in core.Values) (core.Values, error) {
			return core.Values{"y2": {in["x1"][0] + in["y1"][0]}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			jac := core.Jac{}
			jac.SetScalar("y2", "x1", 1)
			jac.SetScalar("y2", "y1", 1)
			return jac, nil
		})
	b := discipline.NewFunc("B", []core.Variable{x2, y2}, []core.Variable{y1},
		func(in core.Values) (core.Values, error) {
			return core.Values{"y1": {in["x2"][0] - 0.5*in["y2"][0]}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			jac := core.Jac{}
			jac.SetScalar("y1", "x2", 1)
			jac.SetScalar("y1", "y2", -0.5)
			return jac, nil
		})
	obj := discipline.NewFunc("Objective", []core.Variable{y1, y2}, []core.Variable{f},
		func(in core.Values) (core.Values, error) {
			return core.Values{"f": {in["y1"][0] + in["y2"][0]}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			jac := core.Jac{}
			jac.SetScalar("f", "y1", 1)
			jac.SetScalar("f", "y2", 1)
			return jac, nil
		})

	var out []Discipline
	for _, k := range []*discipline.FuncKernel{a, b, obj} {
		d, err := discipline.New(k, discipline.Options{})
		if err != nil {
			t.Fatalf("New(%s): %v", k.Name(), err)
		}
		d.AddDefaultInputs(core.Values{"y1": {1}, "y2": {1}})
		out = append(out, d)
	}
	return out
}

func TestSingleNormalizedEvaluate(t *testing.T) {
	d, designVars, y := parabolaDiscipline(t)
	p, err := NewSingle(d, Config{
		Name:       "ParabolaOpt",
		DesignVars: designVars,
		Objective:  y,
		Normalize:  true,
	})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}
	if !p.Normalized() {
		t.Fatal("finite bounds must enable normalization")
	}

	// Normalized coordinates of the raw point (50, 50).
	norm := core.NormalizeValues(designVars, core.Values{"x1": {50}, "x2": {50}})
	out, err := p.Evaluate(norm)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(out["y"][0]-5000) > 1e-9 {
		t.Errorf("y = %g, want 5000", out["y"][0])
	}

	jac, err := p.Differentiate(norm)
	if err != nil {
		t.Fatalf("Differentiate: %v", err)
	}
	// Raw gradient 2*50 scaled by the design span.
	if g := jac.Block("y", "x1").At(0, 0); math.Abs(g-100*98) > 1e-6 {
		t.Errorf("dy/dx1 = %g, want %g", g, 100.0*98)
	}
	if g := jac.Block("y", "x2").At(0, 0); math.Abs(g-100*87) > 1e-6 {
		t.Errorf("dy/dx2 = %g, want %g", g, 100.0*87)
	}
}

func TestMaximizeFlipsSign(t *testing.T) {
	d, designVars, y := parabolaDiscipline(t)
	p, err := NewSingle(d, Config{
		Name:       "ParabolaMax",
		DesignVars: designVars,
		Objective:  y,
		Maximize:   true,
	})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}

	out, err := p.Evaluate(core.Values{"x1": {3}, "x2": {4}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out["y"][0] != -25 {
		t.Errorf("driver-space objective = %g, want -25", out["y"][0])
	}
	jac, err := p.Differentiate(core.Values{"x1": {3}, "x2": {4}})
	if err != nil {
		t.Fatalf("Differentiate: %v", err)
	}
	if g := jac.Block("y", "x1").At(0, 0); g != -6 {
		t.Errorf("driver-space gradient = %g, want -6", g)
	}
}

func TestMDFEvaluateAndTotals(t *testing.T) {
	disciplines := coupledTrio(t)
	sd := make([]solver.Discipline, len(disciplines))
	for i, d := range disciplines {
		sd[i] = d
	}
	gs, err := solver.NewGaussSeidel(sd, solver.Options{Tolerance: 1e-10, MaxIterations: 100})
	if err != nil {
		t.Fatalf("NewGaussSeidel: %v", err)
	}

	p, err := NewMDF(disciplines, gs, Config{
		Name:       "TrioMDF",
		DesignVars: []core.Variable{core.Scalar("x1"), core.Scalar("x2")},
		Objective:  core.Scalar("f"),
	})
	if err != nil {
		t.Fatalf("NewMDF: %v", err)
	}

	out, err := p.Evaluate(core.Values{"x1": {1}, "x2": {2}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(out["f"][0]-3) > 1e-6 {
		t.Errorf("f = %.8g, want 3 (y1=1, y2=2)", out["f"][0])
	}

	jac, err := p.Differentiate(core.Values{"x1": {1}, "x2": {2}})
	if err != nil {
		t.Fatalf("Differentiate: %v", err)
	}
	if g := jac.Block("f", "x1").At(0, 0); math.Abs(g-1.0/3) > 1e-6 {
		t.Errorf("df/dx1 = %.8g, want 1/3", g)
	}
	if g := jac.Block("f", "x2").At(0, 0); math.Abs(g-4.0/3) > 1e-6 {
		t.Errorf("df/dx2 = %.8g, want 4/3", g)
	}
}

func TestIDFPromotesCouplings(t *testing.T) {
	disciplines := coupledTrio(t)
	p, err := NewIDF(disciplines, 0, Config{
		Name:       "TrioIDF",
		DesignVars: []core.Variable{core.Scalar("x1"), core.Scalar("x2")},
		Objective:  core.Scalar("f"),
	})
	if err != nil {
		t.Fatalf("NewIDF: %v", err)
	}

	if got := len(p.DesignVariables()); got != 4 {
		t.Fatalf("design variables = %d, want 4 (x1 x2 + promoted y2 y1)", got)
	}
	if got := len(p.Constraints()); got != 2 {
		t.Fatalf("constraints = %d, want 2 consistency constraints", got)
	}

	// At the consistent point the consistency residuals vanish.
	point := core.Values{"x1": {1}, "x2": {2}, "y1": {1}, "y2": {2}}
	out, err := p.Evaluate(point)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out["f"][0] != 3 {
		t.Errorf("f = %g, want 3", out["f"][0])
	}
	if out["y1_con"][0] != 0 || out["y2_con"][0] != 0 {
		t.Errorf("consistency = (%g, %g), want (0, 0)",
			out["y1_con"][0], out["y2_con"][0])
	}

	// Off the consistent point the residual is promoted minus computed.
	out, err = p.Evaluate(core.Values{"x1": {1}, "x2": {2}, "y1": {1}, "y2": {4}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out["y2_con"][0] != 2 {
		t.Errorf("y2_con = %g, want 2 (promoted 4 - computed 2)", out["y2_con"][0])
	}

	jac, err := p.Differentiate(point)
	if err != nil {
		t.Fatalf("Differentiate: %v", err)
	}
	if g := jac.Block("y2_con", "y2").At(0, 0); g != 1 {
		t.Errorf("d y2_con/d y2 = %g, want identity 1", g)
	}
	if g := jac.Block("y2_con", "y1").At(0, 0); g != -1 {
		t.Errorf("d y2_con/d y1 = %g, want -1", g)
	}
	if g := jac.Block("y2_con", "x1").At(0, 0); g != -1 {
		t.Errorf("d y2_con/d x1 = %g, want -1", g)
	}
	if g := jac.Block("f", "y1").At(0, 0); g != 1 {
		t.Errorf("df/dy1 = %g, want direct partial 1", g)
	}
	if g := jac.Block("f", "x1").At(0, 0); g != 0 {
		t.Errorf("df/dx1 = %g, want 0 (no feedback in IDF)", g)
	}
}

func TestSolveRequiresDriver(t *testing.T) {
	d, designVars, y := parabolaDiscipline(t)
	p, err := NewSingle(d, Config{Name: "P", DesignVars: designVars, Objective: y})
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}
	if _, err := p.Solve(context.Background(), nil, core.Values{"x1": {50}, "x2": {50}}); err == nil {
		t.Error("nil driver must fail the solve")
	}
}

func TestConfigValidation(t *testing.T) {
	d, designVars, y := parabolaDiscipline(t)
	if _, err := NewSingle(d, Config{DesignVars: designVars, Objective: y}); err == nil {
		t.Error("missing name must fail")
	}
	if _, err := NewSingle(d, Config{Name: "P", Objective: y}); err == nil {
		t.Error("missing design variables must fail")
	}
	if _, err := NewSingle(d, Config{Name: "P", DesignVars: designVars}); err == nil {
		t.Error("missing objective must fail")
	}
}
