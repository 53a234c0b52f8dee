// Package viz renders study results and convergence histories for the
// terminal.
package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

const (
	plotWidth  = 80
	plotHeight = 10
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	graphStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("117"))
)

// ResidualPlot renders a coupled-solve residual history on a log10 scale.
// Histories shorter than two points produce no plot.
func ResidualPlot(residuals []float64) string {
	if len(residuals) < 2 {
		return ""
	}
	data := make([]float64, len(residuals))
	for i, r := range residuals {
		if r <= 0 {
			r = 1e-16
		}
		data[i] = math.Log10(r)
	}
	graph := asciigraph.Plot(data,
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption("residual (log10) per iteration"),
	)
	return graphStyle.Render(graph)
}

// ObjectivePlot renders an optimization objective history.
func ObjectivePlot(objectives []float64) string {
	if len(objectives) < 2 {
		return ""
	}
	graph := asciigraph.Plot(objectives,
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption("objective per iteration"),
	)
	return graphStyle.Render(graph)
}

// RunSummary is the subset of a study result the summary renderer needs.
type RunSummary struct {
	Study       string
	Kind        string
	Converged   bool
	Iterations  int
	Objective   float64
	Values      map[string][]float64
	Evaluations map[string]int
}

// Summary renders a study outcome as a styled block of label/value rows.
func Summary(r RunSummary) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(fmt.Sprintf("%s (%s)", r.Study, r.Kind)) + "\n")

	status := failStyle.Render("NOT CONVERGED")
	if r.Converged {
		status = okStyle.Render("CONVERGED")
	}
	s.WriteString(labelStyle.Render("Status") + status + "\n")
	s.WriteString(labelStyle.Render("Iterations") + valueStyle.Render(fmt.Sprintf("%d", r.Iterations)) + "\n")
	if r.Kind == "optimize" {
		s.WriteString(labelStyle.Render("Objective") + valueStyle.Render(fmt.Sprintf("%.8g", r.Objective)) + "\n")
	}

	for _, name := range sortedKeys(r.Values) {
		s.WriteString(labelStyle.Render(name) + valueStyle.Render(formatVector(r.Values[name])) + "\n")
	}
	for _, name := range sortedKeys(r.Evaluations) {
		s.WriteString(labelStyle.Render(name) +
			valueStyle.Render(fmt.Sprintf("%d evaluations", r.Evaluations[name])) + "\n")
	}
	return s.String()
}

func formatVector(v []float64) string {
	if len(v) == 1 {
		return fmt.Sprintf("%.6g", v[0])
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6g", x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
