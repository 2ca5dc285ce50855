package run

import "perchmp/domain/core"

// LedgerEntry is the recorded summary of one finished run
type LedgerEntry struct {
	RunID          core.RunID     `json:"run_id" yaml:"run_id"`
	PlanName       string         `json:"plan_name" yaml:"plan_name"`
	PlanHash       core.Hash      `json:"plan_hash" yaml:"plan_hash"`
	Fingerprint    core.Hash      `json:"fingerprint" yaml:"fingerprint"`
	BiometricsHash core.Hash      `json:"biometrics_hash" yaml:"biometrics_hash"`
	PopulationHash core.Hash      `json:"population_hash" yaml:"population_hash"`
	Seed           int64          `json:"seed" yaml:"seed"`
	Simulations    int            `json:"simulations" yaml:"simulations"`
	Alpha          float64        `json:"alpha" yaml:"alpha"`
	Models         int            `json:"models" yaml:"models"`
	Failed         int            `json:"failed" yaml:"failed"`
	CreatedAt      core.Timestamp `json:"created_at" yaml:"created_at"`
	DurationMs     int64          `json:"duration_ms" yaml:"duration_ms"`
}

// NewLedgerEntry summarises a result for the ledger
func NewLedgerEntry(r *Result) LedgerEntry {
	m := r.Manifest
	return LedgerEntry{
		RunID:          m.RunID,
		PlanName:       m.PlanName,
		PlanHash:       m.PlanHash,
		Fingerprint:    m.Fingerprint,
		BiometricsHash: m.Biometrics.Hash,
		PopulationHash: m.Population.Hash,
		Seed:           m.Seed,
		Simulations:    m.Simulations,
		Alpha:          m.Alpha,
		Models:         len(r.Models),
		Failed:         len(r.Failed()),
		CreatedAt:      m.CreatedAt,
		DurationMs:     m.DurationMs,
	}
}
