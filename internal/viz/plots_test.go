package viz

import (
	"strings"
	"testing"
)

func TestResidualPlot(t *testing.T) {
	out := ResidualPlot([]float64{1.0, 0.1, 0.01, 1e-7})
	if out == "" {
		t.Fatal("expected a plot for a four-point history")
	}
	if !strings.Contains(out, "residual") {
		t.Error("plot caption missing")
	}
}

func TestResidualPlotShortHistory(t *testing.T) {
	if out := ResidualPlot([]float64{1.0}); out != "" {
		t.Errorf("single-point history must produce no plot, got %q", out)
	}
	if out := ResidualPlot(nil); out != "" {
		t.Errorf("empty history must produce no plot, got %q", out)
	}
}

func TestObjectivePlot(t *testing.T) {
	out := ObjectivePlot([]float64{25, 14, 13.1, 13})
	if out == "" {
		t.Fatal("expected a plot for the objective history")
	}
	if !strings.Contains(out, "objective") {
		t.Error("plot caption missing")
	}
}

func TestSummary(t *testing.T) {
	out := Summary(RunSummary{
		Study:       "parabola",
		Kind:        "optimize",
		Converged:   true,
		Iterations:  12,
		Objective:   13,
		Values:      map[string][]float64{"x1": {2}, "x2": {3}},
		Evaluations: map[string]int{"Parabola": 40},
	})
	for _, want := range []string{"parabola", "CONVERGED", "13", "x1", "Parabola"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSummaryNotConverged(t *testing.T) {
	out := Summary(RunSummary{Study: "twodisc", Kind: "solve", Converged: false})
	if !strings.Contains(out, "NOT CONVERGED") {
		t.Errorf("summary must flag non-convergence:\n%s", out)
	}
}
