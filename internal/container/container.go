package container

import (
	"context"
	"fmt"

	"perchmp/adapters/excel"
	"perchmp/adapters/ledger"
	"perchmp/adapters/report"
	"perchmp/adapters/rng"
	"perchmp/app"
	"perchmp/domain/run"
	"perchmp/internal"
	"perchmp/internal/config"
	"perchmp/ports"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Adapters
	Reader  ports.DatasetReader
	RNG     ports.RNGPort
	Reports ports.ReportWriter
	Ledger  ports.LedgerPort // nil when no DSN is configured

	// Services
	Comparison *app.ComparisonService
	Plan       *app.Plan
}

// New wires the pipeline from configuration. Close releases the ledger.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	readerConfig := excel.DefaultReaderConfig()
	readerConfig.Sheet = cfg.Inputs.Sheet
	c.Reader = excel.NewLoader(readerConfig, logger)
	c.RNG = rng.NewAdapter()
	c.Reports = report.NewWriter(cfg.Output.Formats, logger)
	c.Comparison = app.NewComparisonService(c.Reader, c.RNG, logger)

	plan, err := app.LoadPlan(cfg.Inputs.PlanFile)
	if err != nil {
		return nil, err
	}
	c.Plan = plan

	if cfg.Ledger.DSN != "" {
		l, err := ledger.Open(ctx, cfg.Ledger.DSN, logger)
		if err != nil {
			return nil, err
		}
		c.Ledger = l
	}

	logger.Debug("container ready: plan %s (%s), formats %v", plan.Name, plan.Hash().Short(), cfg.Output.Formats)
	return c, nil
}

// Request builds a run request from the configuration and the given plan
func (c *Container) Request(plan *app.Plan) app.Request {
	if plan == nil {
		plan = c.Plan
	}
	return app.Request{
		BiometricsFile: c.Config.Inputs.BiometricsFile,
		PopulationFile: c.Config.Inputs.PopulationFile,
		Plan:           plan,
		Seed:           c.Config.Analysis.Seed,
		Simulations:    c.Config.Analysis.Simulations,
		Alpha:          c.Config.Analysis.Alpha,
		BaselineSecond: c.Config.Analysis.BaselineSecond,
	}
}

// Execute runs a plan and writes its reports into the configured output directory
func (c *Container) Execute(ctx context.Context, plan *app.Plan) (*run.Result, []string, error) {
	result, err := c.Comparison.Run(ctx, c.Request(plan))
	if err != nil {
		return nil, nil, err
	}
	paths, err := c.Reports.Write(ctx, result, c.Config.Output.Dir)
	if err != nil {
		return result, paths, err
	}
	if c.Ledger != nil {
		if err := c.Ledger.Record(ctx, result); err != nil {
			return result, paths, fmt.Errorf("record run %s: %w", result.Manifest.RunID, err)
		}
	}
	return result, paths, nil
}

// Close releases the ledger connection
func (c *Container) Close() error {
	if c.Ledger == nil {
		return nil
	}
	return c.Ledger.Close()
}
