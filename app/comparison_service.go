package app

import (
	"context"
	"fmt"
	"time"

	"perchmp/adapters/stats/diagnostics"
	"perchmp/adapters/stats/models"
	"perchmp/adapters/stats/posthoc"
	"perchmp/domain/core"
	"perchmp/domain/dataset"
	"perchmp/domain/mesocosm"
	"perchmp/domain/run"
	"perchmp/internal"
	"perchmp/internal/analysis"
	"perchmp/internal/errors"
	"perchmp/ports"
)

// ComparisonService runs the treatment-comparison pipeline: load, join, filter, derive,
// summarise, fit, diagnose and compare, strictly in that order
type ComparisonService struct {
	reader     ports.DatasetReader
	rngPort    ports.RNGPort
	fitter     *models.Fitter
	diagnoser  *diagnostics.Diagnoser
	comparator *posthoc.Comparator
	logger     *internal.Logger
}

// Request defines the inputs of one run
type Request struct {
	BiometricsFile string
	PopulationFile string
	Plan           *Plan // nil uses the built-in plan
	Seed           int64
	Simulations    int
	Alpha          float64
	// BaselineSecond lists the zero-concentration corrals of the second control
	BaselineSecond []string
	RunID          core.RunID // optional, generated if empty
}

// NewComparisonService creates the pipeline service; a nil logger uses the default logger
func NewComparisonService(reader ports.DatasetReader, rngPort ports.RNGPort, logger *internal.Logger) *ComparisonService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ComparisonService{
		reader:     reader,
		rngPort:    rngPort,
		fitter:     models.NewFitter(logger),
		diagnoser:  diagnostics.NewDiagnoser(logger),
		comparator: posthoc.NewComparator(logger),
		logger:     logger.With("pipeline"),
	}
}

// Run executes the plan. Load and derivation errors abort the run; a model that fails to
// fit is recorded on the result and, when the plan names a fallback, replaced by it.
func (s *ComparisonService) Run(ctx context.Context, req Request) (*run.Result, error) {
	startTime := time.Now()
	plan := req.Plan
	if plan == nil {
		plan = DefaultPlan()
	}
	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}

	bioHash, err := s.reader.Fingerprint(req.BiometricsFile)
	if err != nil {
		return nil, errors.LoadFailed(err, req.BiometricsFile)
	}
	popHash, err := s.reader.Fingerprint(req.PopulationFile)
	if err != nil {
		return nil, errors.LoadFailed(err, req.PopulationFile)
	}
	manifest := run.NewRunManifest(runID,
		run.Input{Path: req.BiometricsFile, Hash: bioHash},
		run.Input{Path: req.PopulationFile, Hash: popHash},
		plan.Name, plan.Hash(), req.Seed, req.Simulations, req.Alpha)
	s.logger.Info("run %s: plan %s (%s), seed %d", runID, plan.Name, plan.Hash().Short(), req.Seed)

	result, secondControl, err := s.prepare(ctx, req, plan)
	if err != nil {
		return nil, err
	}
	manifest.Seal(secondControl)
	result.Manifest = manifest

	stepStart := time.Now()
	for _, entry := range plan.Summaries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, err := s.summarise(result, entry)
		if err != nil {
			return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "summary %s", entry.Name)
		}
		result.Summaries = append(result.Summaries, table)
	}
	s.logger.Step(stepStart, "%d summaries", len(result.Summaries))

	for i := range plan.Models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.runModel(ctx, result, &plan.Models[i], ""); err != nil {
			return nil, err
		}
	}

	manifest.DurationMs = time.Since(startTime).Milliseconds()
	s.logger.Info("run %s finished in %dms: %d model(s), %d failed",
		runID, manifest.DurationMs, len(result.Models), len(result.Failed()))
	return result, nil
}

// prepare loads both inputs and derives the fish and mesocosm tables. It also returns the
// resolved second control corrals.
func (s *ComparisonService) prepare(ctx context.Context, req Request, plan *Plan) (*run.Result, []string, error) {
	stepStart := time.Now()
	obs, err := s.reader.LoadBiometrics(ctx, req.BiometricsFile)
	if err != nil {
		return nil, nil, errors.LoadFailed(err, req.BiometricsFile)
	}
	pops, err := s.reader.LoadPopulation(ctx, req.PopulationFile)
	if err != nil {
		return nil, nil, errors.LoadFailed(err, req.PopulationFile)
	}

	joined, err := mesocosm.Join(obs, pops)
	if err != nil {
		return nil, nil, errors.LoadFailed(err, req.PopulationFile)
	}
	fish, dropped, err := joined.DropMissing(plan.Response)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "primary response %s", plan.Response)
	}
	if fish.Len() == 0 {
		return nil, nil, errors.InvalidInput(fmt.Sprintf("no rows with %s remain", plan.Response))
	}
	fish = fish.DeriveCondition()
	fish, rule, err := fish.DeriveTreatment(mesocosm.NewBaselineRule(req.BaselineSecond...))
	if err != nil {
		return nil, nil, errors.Wrap(errors.InvalidInput(err.Error()), "treatment labels")
	}

	result := &run.Result{
		Fish:      fish,
		Mesocosms: mesocosm.BuildPopulationTable(pops, fish, rule),
		Dropped:   dropped,
		Unmatched: fish.Unmatched(),
	}
	if dropped > 0 {
		s.logger.Info("dropped %d row(s) without %s", dropped, plan.Response)
	}
	if len(result.Unmatched) > 0 {
		s.logger.Warn("corral(s) %v have no population row; their population fields are missing", result.Unmatched)
	}
	secondControl := rule.SecondControl()
	s.logger.Info("prepared %d fish in %d corrals, second control %v (%.2fms)",
		fish.Len(), len(fish.Corrals()), secondControl, float64(time.Since(stepStart).Nanoseconds())/1e6)
	return result, secondControl, nil
}

func (s *ComparisonService) frame(result *run.Result, kind run.FrameKind) dataset.Frame {
	if kind == run.FrameMesocosm {
		return result.Mesocosms
	}
	return result.Fish
}

func (s *ComparisonService) summarise(result *run.Result, entry SummaryEntry) (run.SummaryTable, error) {
	groups, err := analysis.ByGroup(s.frame(result, entry.FrameKind()), entry.Keys, entry.Responses)
	if err != nil {
		return run.SummaryTable{}, err
	}
	return run.SummaryTable{
		Name:      entry.Name,
		Frame:     entry.FrameKind(),
		Keys:      entry.Keys,
		Responses: entry.Responses,
		Groups:    groups,
	}, nil
}
