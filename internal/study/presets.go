package study

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/san-kum/mdsolve/internal/cache"
	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/discipline"
	"github.com/san-kum/mdsolve/internal/problem"
	"github.com/san-kum/mdsolve/internal/solver"
)

// Builder constructs a preset study from a config.
type Builder func(cfg *Config, log *zap.Logger) (*Study, error)

// Presets is the registry of known studies.
var Presets = map[string]Builder{
	"twodisc":  buildTwoDisc,
	"parabola": buildParabola,
	"sellar":   buildSellar,
}

// Build looks up a preset and constructs it.
func Build(name string, cfg *Config, log *zap.Logger) (*Study, error) {
	builder, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown study preset: %s", name)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return builder(cfg, log)
}

// ListPresets returns the registered preset names, sorted.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildTwoDisc is a two-discipline algebraic system solved for its coupling
// variables. The loop gain exceeds one, so the fixed-point solvers diverge
// and the preset defaults to Newton.
//
//	y21 = x1^2 + x1*z - y12*z
//	y12 = 2*y21 - x2^2 + z*x2
func buildTwoDisc(cfg *Config, log *zap.Logger) (*Study, error) {
	x1 := core.Scalar("x1")
	x2 := core.Scalar("x2")
	z := core.Scalar("z")
	y21 := core.Scalar("y21")
	y12 := core.Scalar("y12")

	k1 := discipline.NewFunc("Disc1", []core.Variable{x1, z, y12}, []core.Variable{y21},
		func(in core.Values) (core.Values, error) {
			vx1, vz, vy12 := in["x1"][0], in["z"][0], in["y12"][0]
			return core.Values{"y21": {vx1*vx1 + vx1*vz - vy12*vz}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			vx1, vz, vy12 := in["x1"][0], in["z"][0], in["y12"][0]
			jac := core.Jac{}
			jac.SetScalar("y21", "x1", 2*vx1+vz)
			jac.SetScalar("y21", "z", vx1-vy12)
			jac.SetScalar("y21", "y12", -vz)
			return jac, nil
		})
	k2 := discipline.NewFunc("Disc2", []core.Variable{x2, z, y21}, []core.Variable{y12},
		func(in core.Values) (core.Values, error) {
			vx2, vz, vy21 := in["x2"][0], in["z"][0], in["y21"][0]
			return core.Values{"y12": {2*vy21 - vx2*vx2 + vz*vx2}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			vx2, vz := in["x2"][0], in["z"][0]
			jac := core.Jac{}
			jac.SetScalar("y12", "x2", -2*vx2+vz)
			jac.SetScalar("y12", "z", vx2)
			jac.SetScalar("y12", "y21", 2)
			return jac, nil
		})

	disciplines, sd, err := newDisciplines(cfg, log, k1, k2)
	if err != nil {
		return nil, err
	}
	mda, err := buildSolver(cfg.Solver, solver.KindNewton, sd, log)
	if err != nil {
		return nil, err
	}

	return &Study{
		name:        presetName(cfg, "twodisc"),
		kind:        presetKind(cfg, KindSolve),
		disciplines: disciplines,
		mda:         mda,
		initial: cfg.InitialValues(core.Values{
			"x1": {1}, "x2": {1}, "z": {1}, "y21": {1}, "y12": {1},
		}),
		log: log,
	}, nil
}

// buildParabola is an unconstrained bowl over a bounded design space,
// formulated as a single-discipline problem with a full cache.
func buildParabola(cfg *Config, log *zap.Logger) (*Study, error) {
	x1, err := core.NewVariable("x1", 1, 2, 100, false)
	if err != nil {
		return nil, err
	}
	x2, err := core.NewVariable("x2", 1, 3, 90, false)
	if err != nil {
		return nil, err
	}
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

	disciplines, _, err := newDisciplines(cfg, log, k)
	if err != nil {
		return nil, err
	}
	prob, err := problem.NewSingle(disciplines[0], problem.Config{
		Name:        "ParabolaOpt",
		DesignVars:  []core.Variable{x1, x2},
		Objective:   y,
		Normalize:   true,
		CachePolicy: cache.PolicyFull,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	driver, err := buildDriver(cfg.Driver, log)
	if err != nil {
		return nil, err
	}

	return &Study{
		name:        presetName(cfg, "parabola"),
		kind:        presetKind(cfg, KindOptimize),
		disciplines: disciplines,
		prob:        prob,
		driver:      driver,
		initial:     cfg.InitialValues(core.Values{"x1": {50}, "x2": {50}}),
		log:         log,
	}, nil
}

// buildSellar is the classic Sellar MDO benchmark in its MDF formulation:
// two coupled disciplines, an objective and two inequality constraints.
func buildSellar(cfg *Config, log *zap.Logger) (*Study, error) {
	z1, _ := core.NewVariable("z1", 1, -10, 10, false)
	z2, _ := core.NewVariable("z2", 1, 0, 10, false)
	x1, _ := core.NewVariable("x1", 1, 0, 10, false)
	y1, _ := core.NewVariable("y1", 1, -100, 100, false)
	y2, _ := core.NewVariable("y2", 1, -100, 100, false)
	g1, _ := core.NewVariable("g1", 1, math.Inf(-1), 0, false)
	g2, _ := core.NewVariable("g2", 1, math.Inf(-1), 0, false)
	f := core.Scalar("f")

	d1 := discipline.NewFunc("SellarDisc1",
		[]core.Variable{z1, z2, x1, y2}, []core.Variable{y1, g1},
		func(in core.Values) (core.Values, error) {
			arg := in["z1"][0]*in["z1"][0] + in["z2"][0] + in["x1"][0] - 0.2*in["y2"][0]
			if arg < 0 {
				return nil, fmt.Errorf("sellar: y1^2 = %g is negative", arg)
			}
			vy1 := math.Sqrt(arg)
			return core.Values{"y1": {vy1}, "g1": {3.16 - vy1*vy1}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			vy1 := out["y1"][0]
			jac := core.Jac{}
			jac.SetScalar("y1", "z1", in["z1"][0]/vy1)
			jac.SetScalar("y1", "z2", 1/(2*vy1))
			jac.SetScalar("y1", "x1", 1/(2*vy1))
			jac.SetScalar("y1", "y2", -0.2/(2*vy1))
			for _, name := range []string{"z1", "z2", "x1", "y2"} {
				jac.SetScalar("g1", name, -2*vy1*jac.Block("y1", name).At(0, 0))
			}
			return jac, nil
		})
	d2 := discipline.NewFunc("SellarDisc2",
		[]core.Variable{z1, z2, y1}, []core.Variable{y2, g2},
		func(in core.Values) (core.Values, error) {
			vy2 := math.Abs(in["y1"][0]) + in["z1"][0] + in["z2"][0]
			return core.Values{"y2": {vy2}, "g2": {vy2 - 24}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			sign := 1.0
			if in["y1"][0] < 0 {
				sign = -1
			}
			jac := core.Jac{}
			jac.SetScalar("y2", "y1", sign)
			jac.SetScalar("y2", "z1", 1)
			jac.SetScalar("y2", "z2", 1)
			jac.SetScalar("g2", "y1", sign)
			jac.SetScalar("g2", "z1", 1)
			jac.SetScalar("g2", "z2", 1)
			return jac, nil
		})
	obj := discipline.NewFunc("SellarObjective",
		[]core.Variable{x1, z2, y1, y2}, []core.Variable{f},
		func(in core.Values) (core.Values, error) {
			v := in["x1"][0]*in["x1"][0] + in["z2"][0] +
				in["y1"][0]*in["y1"][0] + math.Exp(-in["y2"][0])
			return core.Values{"f": {v}}, nil
		}).
		WithAnalytic(func(in, out core.Values) (core.Jac, error) {
			jac := core.Jac{}
			jac.SetScalar("f", "x1", 2*in["x1"][0])
			jac.SetScalar("f", "z2", 1)
			jac.SetScalar("f", "y1", 2*in["y1"][0])
			jac.SetScalar("f", "y2", -math.Exp(-in["y2"][0]))
			return jac, nil
		})

	start := core.Values{"x1": {1}, "z1": {4}, "z2": {3}, "y1": {0.8}, "y2": {0.9}}
	disciplines, sd, err := newDisciplines(cfg, log, d1, d2, obj)
	if err != nil {
		return nil, err
	}
	for _, d := range disciplines {
		d.AddDefaultInputs(start)
	}

	mda, err := buildSolver(cfg.Solver, solver.KindGaussSeidel, sd, log)
	if err != nil {
		return nil, err
	}
	pd := make([]problem.Discipline, len(disciplines))
	for i, d := range disciplines {
		pd[i] = d
	}
	prob, err := problem.NewMDF(pd, mda, problem.Config{
		Name:        "SellarMDF",
		DesignVars:  []core.Variable{x1, z1, z2},
		Objective:   f,
		Constraints: []core.Variable{g1, g2},
		Normalize:   true,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	driver, err := buildDriver(cfg.Driver, log)
	if err != nil {
		return nil, err
	}

	return &Study{
		name:        presetName(cfg, "sellar"),
		kind:        presetKind(cfg, KindOptimize),
		disciplines: disciplines,
		mda:         mda,
		prob:        prob,
		driver:      driver,
		initial:     cfg.InitialValues(start),
		log:         log,
	}, nil
}

// newDisciplines wraps kernels with the study's cache configuration.
func newDisciplines(cfg *Config, log *zap.Logger, kernels ...*discipline.FuncKernel) ([]*discipline.Discipline, []solver.Discipline, error) {
	out := make([]*discipline.Discipline, len(kernels))
	sd := make([]solver.Discipline, len(kernels))
	for i, k := range kernels {
		d, err := discipline.New(k, discipline.Options{
			CachePolicy: cache.Policy(cfg.CachePolicy),
			Logger:      log,
		})
		if err != nil {
			return nil, nil, err
		}
		out[i] = d
		sd[i] = d
	}
	return out, sd, nil
}

func presetName(cfg *Config, fallback string) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return fallback
}

func presetKind(cfg *Config, fallback string) string {
	if cfg.Kind != "" {
		return cfg.Kind
	}
	return fallback
}
