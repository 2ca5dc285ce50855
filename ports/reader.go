package ports

import (
	"context"

	"perchmp/domain/core"
	"perchmp/domain/mesocosm"
)

// DatasetReader loads the two experiment inputs. Every error it returns is a fatal load
// error wrapping core.ErrLoadFailed; nothing is partially recovered.
type DatasetReader interface {
	// LoadBiometrics reads one row per measured fish
	LoadBiometrics(ctx context.Context, path string) ([]mesocosm.Observation, error)

	// LoadPopulation reads one row per mesocosm with its start and end fish counts
	LoadPopulation(ctx context.Context, path string) ([]mesocosm.Population, error)

	// Fingerprint hashes an input file for the run manifest
	Fingerprint(path string) (core.Hash, error)
}
