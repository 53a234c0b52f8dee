package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/mdsolve/internal/store"
	"github.com/san-kum/mdsolve/internal/study"
	"github.com/san-kum/mdsolve/internal/viz"
)

var (
	dataDir    string
	configFile string
	verbose    bool
	showPlot   bool
	noSave     bool
	solverType string
	tolerance  float64
	maxIter    int
	relaxation float64
	driverType string
	driverIter int
	gridPoints int
	penalty    float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mdsolve",
		Short: "multidisciplinary analysis and optimization lab",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mdsolve", "data directory")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	solveCmd := &cobra.Command{
		Use:   "solve [preset]",
		Short: "run a coupled solve on a preset study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudy(cmd, args[0], study.KindSolve)
		},
	}
	solveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	solveCmd.Flags().StringVar(&solverType, "solver", "", "coupled solver (jacobi, gauss_seidel, newton)")
	solveCmd.Flags().Float64Var(&tolerance, "tol", study.DefaultTolerance, "convergence tolerance")
	solveCmd.Flags().IntVar(&maxIter, "max-iter", study.DefaultMaxIterations, "iteration budget")
	solveCmd.Flags().Float64Var(&relaxation, "relax", study.DefaultRelaxation, "relaxation factor")
	solveCmd.Flags().BoolVar(&showPlot, "plot", false, "plot the residual history")
	solveCmd.Flags().BoolVar(&noSave, "no-save", false, "skip persisting the run")

	optCmd := &cobra.Command{
		Use:   "opt [preset]",
		Short: "run an optimization on a preset study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudy(cmd, args[0], study.KindOptimize)
		},
	}
	optCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	optCmd.Flags().StringVar(&driverType, "driver", "", "optimization driver (gonum, grid)")
	optCmd.Flags().IntVar(&driverIter, "iter", study.DefaultDriverIter, "driver iteration budget")
	optCmd.Flags().IntVar(&gridPoints, "points", study.DefaultGridPoints, "grid points per axis")
	optCmd.Flags().Float64Var(&penalty, "penalty", 0, "constraint penalty weight (0 = default)")
	optCmd.Flags().Float64Var(&tolerance, "tol", study.DefaultTolerance, "gradient tolerance")
	optCmd.Flags().StringVar(&solverType, "solver", "", "inner coupled solver")
	optCmd.Flags().BoolVar(&showPlot, "plot", false, "plot the objective history")
	optCmd.Flags().BoolVar(&noSave, "no-save", false, "skip persisting the run")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available study presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range study.ListPresets() {
				fmt.Println(name)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	rootCmd.AddCommand(solveCmd, optCmd, presetsCmd, listCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runStudy(cmd *cobra.Command, preset, kind string) error {
	cfg := study.DefaultConfig()
	if configFile != "" {
		loaded, err := study.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	cfg.Kind = kind

	// CLI flags override the config file.
	if cmd.Flags().Changed("solver") {
		cfg.Solver.Type = solverType
	}
	if cmd.Flags().Changed("tol") {
		cfg.Solver.Tolerance = tolerance
		cfg.Driver.Tolerance = tolerance
	}
	if cmd.Flags().Changed("max-iter") {
		cfg.Solver.MaxIterations = maxIter
	}
	if cmd.Flags().Changed("relax") {
		cfg.Solver.Relaxation = relaxation
	}
	if cmd.Flags().Changed("driver") {
		cfg.Driver.Type = driverType
	}
	if cmd.Flags().Changed("iter") {
		cfg.Driver.MaxIterations = driverIter
	}
	if cmd.Flags().Changed("points") {
		cfg.Driver.Points = gridPoints
	}
	if cmd.Flags().Changed("penalty") {
		cfg.Driver.Penalty = penalty
	}

	log := newLogger()
	defer log.Sync()

	s, err := study.Build(preset, cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := s.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(viz.Summary(viz.RunSummary{
		Study:       res.Study,
		Kind:        res.Kind,
		Converged:   res.Converged,
		Iterations:  res.Iterations,
		Objective:   res.Objective,
		Values:      res.Values,
		Evaluations: res.Evaluations,
	}))
	if showPlot {
		if plot := viz.ResidualPlot(res.Residuals); plot != "" {
			fmt.Println(plot)
		}
		if plot := viz.ObjectivePlot(res.Objectives); plot != "" {
			fmt.Println(plot)
		}
	}

	if noSave {
		return nil
	}
	st := store.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(res)
	if err != nil {
		return err
	}
	fmt.Printf("saved run: %s\n", runID)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTUDY\tKIND\tCONVERGED\tITERATIONS\tOBJECTIVE\tTIMESTAMP")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%.6g\t%s\n",
			r.ID, r.Study, r.Kind, r.Converged, r.Iterations, r.Objective,
			r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)
	res, err := st.Load(args[0])
	if err != nil {
		return err
	}
	return store.ExportJSONStdout(res)
}

func newLogger() *zap.Logger {
	if verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			return log
		}
	}
	return zap.NewNop()
}
