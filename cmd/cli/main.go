package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"perchmp/app"
	"perchmp/domain/core"
	"perchmp/domain/run"
	"perchmp/internal/config"
	"perchmp/internal/container"
	"perchmp/internal/testkit"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "perchmp-cli",
		Short: "Treatment comparisons for the perch microplastic mesocosm experiment",
		Long: `Loads perch biometrics and mesocosm survival counts, derives treatments and condition,
summarises groups, fits the planned models, checks their residuals and compares treatments.

Settings come from the environment (a .env file is read when present) and can be
overridden by flags:
- PERCH_BIOMETRICS_FILE, PERCH_POPULATION_FILE (csv or xlsx), PERCH_SHEET
- PERCH_PLAN_FILE (default: built-in plan)
- PERCH_OUTPUT_DIR, PERCH_FORMATS (xlsx,md,html,yaml)
- PERCH_SEED, PERCH_SIMULATIONS, PERCH_ALPHA, PERCH_BASELINE_SECOND
- PERCH_LEDGER_DSN (postgres:// URL or SQLite file; empty disables the run ledger)
- LOG_LEVEL`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSummaryCmd(),
		newFitCmd(),
		newPlanCmd(),
		newGenerateCmd(),
		newHistoryCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// overrides holds flags that replace configured values when set
type overrides struct {
	biometrics  string
	population  string
	sheet       string
	plan        string
	out         string
	formats     []string
	seed        int64
	simulations int
	alpha       float64
	second      []string
	ledger      string
}

func (o *overrides) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.biometrics, "biometrics", "", "Biometrics file (csv or xlsx)")
	f.StringVar(&o.population, "population", "", "Mesocosm population file (csv or xlsx)")
	f.StringVar(&o.sheet, "sheet", "", "Worksheet to read from xlsx inputs")
	f.StringVar(&o.plan, "plan", "", "Analysis plan YAML (default: built-in plan)")
	f.StringVar(&o.out, "out", "", "Output directory")
	f.StringSliceVar(&o.formats, "formats", nil, "Report formats: xlsx,md,html,yaml")
	f.Int64Var(&o.seed, "seed", 0, "Random seed for simulated residuals")
	f.IntVar(&o.simulations, "simulations", 0, "Number of simulated response sets per model")
	f.Float64Var(&o.alpha, "alpha", 0, "Family-wise significance level")
	f.StringSliceVar(&o.second, "second-control", nil, "Zero-concentration corrals labelled as the second control")
	f.StringVar(&o.ledger, "ledger", "", "Run ledger DSN")
}

// loadConfig reads .env and the environment, then applies the flags the user set
func (o *overrides) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("biometrics") {
		cfg.Inputs.BiometricsFile = o.biometrics
	}
	if f.Changed("population") {
		cfg.Inputs.PopulationFile = o.population
	}
	if f.Changed("sheet") {
		cfg.Inputs.Sheet = o.sheet
	}
	if f.Changed("plan") {
		cfg.Inputs.PlanFile = o.plan
	}
	if f.Changed("out") {
		cfg.Output.Dir = o.out
	}
	if f.Changed("formats") {
		cfg.Output.Formats = o.formats
	}
	if f.Changed("seed") {
		cfg.Analysis.Seed = o.seed
	}
	if f.Changed("simulations") {
		cfg.Analysis.Simulations = o.simulations
	}
	if f.Changed("alpha") {
		cfg.Analysis.Alpha = o.alpha
	}
	if f.Changed("second-control") {
		cfg.Analysis.BaselineSecond = o.second
	}
	if f.Changed("ledger") {
		cfg.Ledger.DSN = o.ledger
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *overrides) container(cmd *cobra.Command) (*container.Container, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return container.New(cmd.Context(), cfg)
}

func newRunCmd() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full plan and write reports",
		Long: `Run every summary and model of the plan, then write the reports.

Example: perchmp-cli run --biometrics perch_biometrics.csv --population perch_mesocosm.csv --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			result, paths, err := c.Execute(cmd.Context(), nil)
			if err != nil {
				return err
			}
			printRun(result)
			printModels(result)
			printPaths(paths)
			return nil
		},
	}
	o.register(cmd)
	return cmd
}

func newSummaryCmd() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the plan's group summaries without fitting models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			plan, err := c.Plan.SummariesOnly()
			if err != nil {
				return err
			}
			result, err := c.Comparison.Run(cmd.Context(), c.Request(plan))
			if err != nil {
				return err
			}
			printRun(result)
			printSummaries(result)
			return nil
		},
	}
	o.register(cmd)
	return cmd
}

func newFitCmd() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "fit [model...]",
		Short: "Fit selected models of the plan and write reports",
		Long: `Fit the named models, together with the models they supersede and their fallbacks.

Example: perchmp-cli fit tl-anova gonad-length --formats md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			plan, err := c.Plan.Select(args...)
			if err != nil {
				return err
			}
			result, paths, err := c.Execute(cmd.Context(), plan)
			if err != nil {
				return err
			}
			printRun(result)
			printModels(result)
			printPaths(paths)
			return nil
		},
	}
	o.register(cmd)
	return cmd
}

func newPlanCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate a plan and print it with its hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := app.LoadPlan(path)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(plan)
			if err != nil {
				return err
			}
			fmt.Printf("# plan %s, hash %s\n%s", plan.Name, plan.Hash(), data)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "plan", "", "Analysis plan YAML (default: built-in plan)")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var dir string
	var seed int64
	var fishPerCorral int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic eight-corral experiment as CSV files",
		Long: `Write synthetic biometrics and mesocosm files shaped like the experiment: eight corrals
at concentrations 0, 0, 10, 10, 50, 50, 200 and 200.

Example: perchmp-cli generate --dir testdata --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			cfg := testkit.DefaultMesocosmConfig()
			cfg.Seed = seed
			cfg.FishPerCorral = fishPerCorral
			bio, pop, err := testkit.NewTestKit(dir, cfg).Fixtures()
			if err != nil {
				return err
			}
			fmt.Printf("Biometrics: %s\nPopulation: %s\n", bio, pop)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write into")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for the synthetic data")
	cmd.Flags().IntVar(&fishPerCorral, "fish-per-corral", 15, "Fish sampled per corral")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var o overrides
	var limit int
	var fingerprint string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			if c.Ledger == nil {
				return fmt.Errorf("no ledger configured: set PERCH_LEDGER_DSN or --ledger")
			}

			var entries []run.LedgerEntry
			if fingerprint != "" {
				entries, err = c.Ledger.Matching(cmd.Context(), core.Hash(fingerprint))
			} else {
				entries, err = c.Ledger.Runs(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %s  %-24s fingerprint %s  seed %d  models %d (%d failed)  %dms\n",
					e.CreatedAt, e.RunID, e.PlanName, e.Fingerprint.Short(), e.Seed, e.Models, e.Failed, e.DurationMs)
			}
			if len(entries) == 0 {
				fmt.Println("No runs recorded.")
			}
			return nil
		},
	}
	o.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 lists all)")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "List only runs with this fingerprint")
	return cmd
}

func printRun(result *run.Result) {
	m := result.Manifest
	fmt.Printf("Run %s (plan %s)\n", m.RunID, m.PlanName)
	fmt.Printf("Fingerprint: %s\n", m.Fingerprint)
	fmt.Printf("Fish: %d (dropped %d), corrals: %d, second control: %s\n",
		result.Fish.Len(), result.Dropped, len(result.Fish.Corrals()), strings.Join(m.SecondControl, ","))
	if len(result.Unmatched) > 0 {
		fmt.Printf("Corrals without population data: %s\n", strings.Join(result.Unmatched, ","))
	}
}

func printSummaries(result *run.Result) {
	for _, t := range result.Summaries {
		fmt.Printf("\n== %s (%s) ==\n", t.Name, t.Frame)
		for _, g := range t.Groups {
			fmt.Printf("%-12s rows %3d", g.Label(), g.Rows)
			for _, r := range g.Responses {
				fmt.Printf("  %s %s±%s", r.Column, number(r.Mean), number(r.SD))
			}
			fmt.Println()
		}
	}
}

func printModels(result *run.Result) {
	fmt.Println()
	for _, mr := range result.Models {
		if !mr.OK() {
			line := fmt.Sprintf("✗ %-22s %s: %s", mr.Name, mr.Status, mr.Error)
			if mr.SupersededBy != "" {
				line += " -> " + mr.SupersededBy
			}
			fmt.Println(line)
			continue
		}
		o := mr.Model.Overall
		fmt.Printf("✓ %-22s %-10s %s=%s p=%s n=%d", mr.Name, mr.Status, o.Name, number(o.Statistic), number(o.PValue), mr.Model.N)
		if len(mr.Letters) > 0 {
			groups := make([]string, len(mr.Letters))
			for i, l := range mr.Letters {
				groups[i] = l.Level + ":" + l.Letters
			}
			fmt.Printf("  [%s]", strings.Join(groups, " "))
		}
		if sim := mr.Simulated; sim != nil {
			fmt.Printf("  sim %s", sim.Status)
		}
		fmt.Println()
	}
}

func printPaths(paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Println("\nReports:")
	for _, p := range paths {
		fmt.Printf("  %s\n", p)
	}
}

func number(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.4g", v)
}
