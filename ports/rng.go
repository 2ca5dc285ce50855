package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream creates a deterministic RNG stream for one model's diagnostic, so simulated
	// residuals are identical for the same scope, stage, model and seed
	Stream(ctx context.Context, scope, stageName, modelName string, baseSeed int64) (*rand.Rand, error)
}
