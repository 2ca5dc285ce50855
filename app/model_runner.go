package app

import (
	"context"
	"fmt"

	"perchmp/adapters/stats/posthoc"
	"perchmp/domain/core"
	"perchmp/domain/dataset"
	"perchmp/domain/run"
	"perchmp/domain/stats"
)

// runModel fits one plan entry and derives its diagnostics and comparisons. Fit failures
// are recorded, not returned; only cancellation stops the run.
func (s *ComparisonService) runModel(ctx context.Context, result *run.Result, entry *ModelEntry, supersedes core.ModelID) error {
	spec, err := entry.Spec()
	if err != nil {
		return fmt.Errorf("model %s: %w", entry.Name, err)
	}
	frame := s.frame(result, entry.FrameKind())

	var previous *run.ModelResult
	if entry.Supersedes != "" {
		if prev, ok := result.Model(entry.Supersedes); ok {
			previous = prev
			supersedes = prev.Attempt
		}
	}

	mr := run.ModelResult{
		Name:    entry.Name,
		Attempt: core.NewModelID(),
		Spec:    spec,
		Frame:   entry.FrameKind(),
	}

	m, err := s.fitter.Refit(frame, supersedes, spec)
	if err != nil {
		mr.Status = run.StatusFailed
		mr.Error = err.Error()
		s.logger.Warn("%s (%s) failed: %v", entry.Name, spec.Formula(), err)
		if entry.Fallback != nil {
			mr.SupersededBy = entry.Fallback.Name
		}
		result.Models = append(result.Models, mr)
		if entry.Fallback == nil {
			return nil
		}
		s.logger.Info("%s: fitting planned fallback %s", entry.Name, entry.Fallback.Name)
		return s.runModel(ctx, result, entry.Fallback, mr.Attempt)
	}

	mr.Attempt = m.ID
	mr.Status = run.StatusFitted
	mr.Model = m
	if previous != nil {
		previous.Status = run.StatusSuperseded
		previous.SupersededBy = entry.Name
	}

	if err := s.diagnose(ctx, result.Manifest, entry, &mr, frame); err != nil {
		return err
	}
	s.compare(result.Manifest, entry, &mr)

	result.Models = append(result.Models, mr)
	return nil
}

// diagnose computes the residual diagnostics the entry asks for. Each model is diagnosed
// from its own residuals.
func (s *ComparisonService) diagnose(ctx context.Context, manifest *run.RunManifest, entry *ModelEntry, mr *run.ModelResult, frame dataset.Frame) error {
	raw := s.diagnoser.Raw(mr.Model)
	mr.Raw = &raw

	for _, column := range entry.DispersionBy {
		d, err := s.diagnoser.Dispersion(mr.Model, frame, column)
		if err != nil {
			mr.Notes = append(mr.Notes, fmt.Sprintf("dispersion by %s: %v", column, err))
			continue
		}
		mr.Dispersion = append(mr.Dispersion, d)
	}

	if !entry.Simulate {
		return nil
	}
	rng, err := s.rngPort.Stream(ctx, manifest.PlanHash.Short(), "simulate", entry.Name, manifest.Seed)
	if err != nil {
		return err
	}
	sim, err := s.diagnoser.Simulate(ctx, mr.Model, rng, manifest.Simulations)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mr.Notes = append(mr.Notes, fmt.Sprintf("simulated residuals: %v", err))
		return nil
	}
	mr.Simulated = &sim
	if sim.Status == stats.StatusInconclusive {
		mr.Notes = append(mr.Notes, "simulated residuals inconclusive: "+sim.Reason)
	}
	return nil
}

// compare adds Tukey comparisons, letters and predictions. Problems become notes.
func (s *ComparisonService) compare(manifest *run.RunManifest, entry *ModelEntry, mr *run.ModelResult) {
	if entry.PostHoc {
		alpha := manifest.Alpha
		if alpha <= 0 {
			alpha = posthoc.DefaultAlpha
		}
		cmp, err := s.comparator.Tukey(mr.Model, alpha)
		if err != nil {
			mr.Notes = append(mr.Notes, fmt.Sprintf("pairwise comparison: %v", err))
		} else {
			mr.Comparison = cmp
			mr.Letters = posthoc.Letters(cmp)
		}
	}

	if entry.Predict != nil {
		set, err := s.comparator.Predict(mr.Model, *entry.Predict)
		if err != nil {
			mr.Notes = append(mr.Notes, fmt.Sprintf("predictions over %s: %v", entry.Predict.Column, err))
			return
		}
		mr.Predictions = set
	}
}
