package study

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/discipline"
	"github.com/san-kum/mdsolve/internal/optim"
	"github.com/san-kum/mdsolve/internal/problem"
	"github.com/san-kum/mdsolve/internal/solver"
)

const (
	KindSolve    = "solve"
	KindOptimize = "optimize"
)

// Study is a runnable unit: a coupled solve over disciplines, an
// optimization drive over a problem, or both prepared with the kind
// choosing which runs.
type Study struct {
	name        string
	kind        string
	disciplines []*discipline.Discipline
	mda         *solver.Solver
	prob        *problem.Problem
	driver      problem.Driver
	initial     core.Values
	log         *zap.Logger
}

// Result is the outcome of a study run.
type Result struct {
	Study       string         `json:"study"`
	Kind        string         `json:"kind"`
	Converged   bool           `json:"converged"`
	Iterations  int            `json:"iterations"`
	Values      core.Values    `json:"values"`
	Objective   float64        `json:"objective,omitempty"`
	Residuals   []float64      `json:"residuals,omitempty"`
	Objectives  []float64      `json:"objectives,omitempty"`
	Evaluations map[string]int `json:"evaluations"`
}

func (s *Study) Name() string              { return s.name }
func (s *Study) Kind() string              { return s.kind }
func (s *Study) Initial() core.Values      { return s.initial.Clone() }
func (s *Study) Problem() *problem.Problem { return s.prob }

// Run executes the study.
func (s *Study) Run(ctx context.Context) (*Result, error) {
	switch s.kind {
	case KindSolve:
		return s.runSolve(ctx)
	case KindOptimize:
		return s.runOptimize(ctx)
	default:
		return nil, fmt.Errorf("study %s: unknown kind: %s", s.name, s.kind)
	}
}

func (s *Study) runSolve(ctx context.Context) (*Result, error) {
	if s.mda == nil {
		return nil, fmt.Errorf("study %s: no coupled solver configured", s.name)
	}
	vals, err := s.mda.Solve(ctx, s.initial)
	if err != nil {
		return nil, fmt.Errorf("study %s: %w", s.name, err)
	}
	return &Result{
		Study:       s.name,
		Kind:        s.kind,
		Converged:   s.mda.Status() == solver.Converged,
		Iterations:  s.mda.Iterations(),
		Values:      vals,
		Residuals:   s.mda.ResidualHistory(),
		Evaluations: s.evaluations(),
	}, nil
}

func (s *Study) runOptimize(ctx context.Context) (*Result, error) {
	if s.prob == nil {
		return nil, fmt.Errorf("study %s: no problem configured", s.name)
	}
	res, err := s.prob.Solve(ctx, s.driver, s.initial)
	if err != nil {
		return nil, fmt.Errorf("study %s: %w", s.name, err)
	}
	return &Result{
		Study:       s.name,
		Kind:        s.kind,
		Converged:   res.Converged,
		Iterations:  res.Iterations,
		Values:      res.Design,
		Objective:   res.Objective,
		Objectives:  s.prob.ObjectiveHistory(),
		Evaluations: s.evaluations(),
	}, nil
}

func (s *Study) evaluations() map[string]int {
	counts := make(map[string]int, len(s.disciplines))
	for _, d := range s.disciplines {
		counts[d.Name()] = d.EvalCount()
	}
	return counts
}

// buildDriver maps a driver config to an optimization driver.
func buildDriver(cfg DriverConfig, log *zap.Logger) (problem.Driver, error) {
	switch cfg.Type {
	case "", "gonum":
		return &optim.Gonum{
			MaxIterations: cfg.MaxIterations,
			Tolerance:     cfg.Tolerance,
			Penalty:       cfg.Penalty,
			Logger:        log,
		}, nil
	case "grid":
		return &optim.GridSearch{Points: cfg.Points, Logger: log}, nil
	default:
		return nil, fmt.Errorf("unknown driver type: %s", cfg.Type)
	}
}

// buildSolver maps a solver config to a coupled solver, with a per-preset
// fallback kind when the config leaves the type empty.
func buildSolver(cfg SolverConfig, fallback solver.Kind, disciplines []solver.Discipline, log *zap.Logger) (*solver.Solver, error) {
	kind := solver.Kind(cfg.Type)
	if cfg.Type == "" {
		kind = fallback
	}
	return solver.New(kind, disciplines, solver.Options{
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.Tolerance,
		Relaxation:    cfg.Relaxation,
		Logger:        log,
	})
}
