package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"perchmp/adapters/excel"
	"perchmp/adapters/rng"
	"perchmp/app"
	"perchmp/domain/mesocosm"
	"perchmp/domain/run"
	"perchmp/internal/testkit"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "perchmp-dev",
		Short: "perchmp development tools",
	}

	rootCmd.AddCommand(
		newSmokeTestCmd(),
		newDeterminismTestCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSmokeTestCmd() *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the built-in plan on synthetic data and check its invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmokeTests(cmd.Context(), seed)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the synthetic data and the simulations")
	return cmd
}

func newDeterminismTestCmd() *cobra.Command {
	var biometrics, population string
	var seed int64
	cmd := &cobra.Command{
		Use:   "determinism",
		Short: "Run the built-in plan twice and compare every number",
		Long: `Run the built-in plan twice with the same inputs and seed. Without input files a
synthetic experiment is generated first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return testDeterminism(cmd.Context(), biometrics, population, seed)
		},
	}
	cmd.Flags().StringVar(&biometrics, "biometrics", "", "Biometrics file")
	cmd.Flags().StringVar(&population, "population", "", "Population file")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Seed for simulated residuals")
	return cmd
}

func newService() *app.ComparisonService {
	return app.NewComparisonService(excel.NewLoader(excel.DefaultReaderConfig(), nil), rng.NewAdapter(), nil)
}

// fixtures writes a synthetic experiment into a temporary directory
func fixtures(seed int64) (bio, pop, dir string, err error) {
	dir, err = os.MkdirTemp("", "perchmp-dev-")
	if err != nil {
		return "", "", "", err
	}
	cfg := testkit.DefaultMesocosmConfig()
	cfg.Seed = seed
	bio, pop, err = testkit.NewTestKit(dir, cfg).Fixtures()
	return bio, pop, dir, err
}

func runSmokeTests(ctx context.Context, seed int64) error {
	fmt.Println("Running smoke tests...")

	bio, pop, dir, err := fixtures(seed)
	if err != nil {
		return fmt.Errorf("failed to write fixtures: %w", err)
	}
	defer os.RemoveAll(dir)

	result, err := newService().Run(ctx, app.Request{
		BiometricsFile: bio, PopulationFile: pop, Seed: seed, Simulations: 50, Alpha: 0.05,
	})
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	tests := []struct {
		name string
		fn   func(*run.Result) error
	}{
		{"no_missing_response", func(r *run.Result) error {
			tl, err := r.Fish.Numeric(mesocosm.ColTotalLength)
			if err != nil {
				return err
			}
			for i, v := range tl {
				if math.IsNaN(v) {
					return fmt.Errorf("row %d has no %s", i, mesocosm.ColTotalLength)
				}
			}
			return nil
		}},
		{"grouping", func(r *run.Result) error {
			byConc, byTreatment := len(r.Summaries[0].Groups), len(r.Summaries[1].Groups)
			if byConc != 4 || byTreatment != 5 {
				return fmt.Errorf("got %d concentration and %d treatment groups, want 4 and 5", byConc, byTreatment)
			}
			return nil
		}},
		{"tukey_pairs", func(r *run.Result) error {
			for _, mr := range r.Models {
				cmp := mr.Comparison
				if cmp == nil {
					continue
				}
				k := len(cmp.Means)
				if len(cmp.Pairs) != k*(k-1)/2 {
					return fmt.Errorf("%s: %d pairs for %d groups", mr.Name, len(cmp.Pairs), k)
				}
				for _, p := range cmp.Pairs {
					if p.Lower > p.Diff || p.Diff > p.Upper {
						return fmt.Errorf("%s: interval of %s-%s misses its estimate", mr.Name, p.B, p.A)
					}
				}
			}
			return nil
		}},
		{"models_accounted", func(r *run.Result) error {
			for _, mr := range r.Failed() {
				if mr.SupersededBy == "" {
					return fmt.Errorf("%s failed without a fallback: %s", mr.Name, mr.Error)
				}
			}
			return nil
		}},
	}

	passed := 0
	for _, test := range tests {
		fmt.Printf("  Running %s...", test.name)
		if err := test.fn(result); err != nil {
			fmt.Printf(" FAILED: %v\n", err)
		} else {
			fmt.Println(" PASSED")
			passed++
		}
	}

	fmt.Printf("\nSmoke tests: %d/%d passed\n", passed, len(tests))
	if passed < len(tests) {
		return fmt.Errorf("some smoke tests failed")
	}
	return nil
}

func testDeterminism(ctx context.Context, biometrics, population string, seed int64) error {
	if biometrics == "" || population == "" {
		bio, pop, dir, err := fixtures(seed)
		if err != nil {
			return fmt.Errorf("failed to write fixtures: %w", err)
		}
		defer os.RemoveAll(dir)
		biometrics, population = bio, pop
	}
	req := app.Request{BiometricsFile: biometrics, PopulationFile: population, Seed: seed, Simulations: 100, Alpha: 0.05}

	svc := newService()
	original, err := svc.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("first run failed: %w", err)
	}
	fmt.Println("Re-running with the same inputs and seed...")
	replay, err := svc.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	if err := compareRuns(original, replay); err != nil {
		return fmt.Errorf("determinism test failed: %w", err)
	}
	fmt.Printf("✓ Determinism test passed - fingerprint %s, %d models identical\n",
		original.Manifest.Fingerprint.Short(), len(original.Models))
	return nil
}

func compareRuns(original, replay *run.Result) error {
	if original.Manifest.Fingerprint != replay.Manifest.Fingerprint {
		return fmt.Errorf("fingerprints differ")
	}
	if len(original.Models) != len(replay.Models) {
		return fmt.Errorf("model counts differ: %d vs %d", len(original.Models), len(replay.Models))
	}

	for i, a := range original.Models {
		b := replay.Models[i]
		if a.Status != b.Status {
			return fmt.Errorf("%s status differs: %s vs %s", a.Name, a.Status, b.Status)
		}
		if !a.OK() {
			continue
		}
		if !same(a.Model.Coefficients, b.Model.Coefficients) {
			return fmt.Errorf("%s coefficients differ", a.Name)
		}
		if (a.Simulated == nil) != (b.Simulated == nil) {
			return fmt.Errorf("%s simulation presence differs", a.Name)
		}
		if a.Simulated != nil && !same(a.Simulated.Scaled, b.Simulated.Scaled) {
			return fmt.Errorf("%s simulated residuals differ", a.Name)
		}
		if !same(a.Letters, b.Letters) {
			return fmt.Errorf("%s letters differ", a.Name)
		}
	}
	return nil
}

// same compares printed values; floats print exactly and NaN equals NaN
func same(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
