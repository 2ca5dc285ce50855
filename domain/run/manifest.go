package run

import (
	"fmt"
	"strings"

	"perchmp/domain/core"
)

// CodeVersion is recorded in every manifest
const CodeVersion = "0.3.0"

// Input is one fingerprinted input file
type Input struct {
	Path string    `json:"path" yaml:"path"`
	Hash core.Hash `json:"hash" yaml:"hash"`
}

// RunManifest is everything needed to reproduce a run
type RunManifest struct {
	RunID         core.RunID     `json:"run_id" yaml:"run_id"`
	Biometrics    Input          `json:"biometrics" yaml:"biometrics"`
	Population    Input          `json:"population" yaml:"population"`
	PlanName      string         `json:"plan_name" yaml:"plan_name"`
	PlanHash      core.Hash      `json:"plan_hash" yaml:"plan_hash"`
	Seed          int64          `json:"seed" yaml:"seed"`
	Simulations   int            `json:"simulations" yaml:"simulations"`
	Alpha         float64        `json:"alpha" yaml:"alpha"`
	SecondControl []string       `json:"second_control" yaml:"second_control"`
	CodeVersion   string         `json:"code_version" yaml:"code_version"`
	Fingerprint   core.Hash      `json:"fingerprint" yaml:"fingerprint"` // Determinism fingerprint
	CreatedAt     core.Timestamp `json:"created_at" yaml:"created_at"`
	DurationMs    int64          `json:"duration_ms" yaml:"duration_ms"`
}

// NewRunManifest creates a manifest; the fingerprint is filled by Seal once the baseline
// split is known
func NewRunManifest(runID core.RunID, biometrics, population Input, planName string, planHash core.Hash,
	seed int64, simulations int, alpha float64) *RunManifest {
	return &RunManifest{
		RunID:       runID,
		Biometrics:  biometrics,
		Population:  population,
		PlanName:    planName,
		PlanHash:    planHash,
		Seed:        seed,
		Simulations: simulations,
		Alpha:       alpha,
		CodeVersion: CodeVersion,
		CreatedAt:   core.Now(),
	}
}

// Seal records the resolved second control corrals and computes the fingerprint
func (m *RunManifest) Seal(secondControl []string) {
	m.SecondControl = append([]string(nil), secondControl...)
	m.Fingerprint = computeFingerprint(m)
}

// computeFingerprint hashes the inputs and settings that determine a run's numbers. Paths,
// run ID and timestamps are excluded so identical inputs give identical fingerprints.
func computeFingerprint(m *RunManifest) core.Hash {
	data := fmt.Sprintf("biometrics:%s|population:%s|plan:%s|seed:%d|simulations:%d|alpha:%g|second:%s|code:%s",
		m.Biometrics.Hash, m.Population.Hash, m.PlanHash, m.Seed, m.Simulations, m.Alpha,
		strings.Join(m.SecondControl, ","), m.CodeVersion)
	return core.NewHash([]byte(data))
}
