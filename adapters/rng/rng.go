// Package rng provides the seeded random streams behind simulation diagnostics.
package rng

import (
	"context"
	"math/rand"

	"perchmp/ports"
)

// Adapter implements ports.RNGPort with math/rand sources
type Adapter struct{}

var _ ports.RNGPort = (*Adapter)(nil)

// NewAdapter creates an RNG adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != "" {
		seed += int64(hashString(name))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// Stream derives a seed from the scope, stage and model names so each model gets its own
// reproducible stream
func (a *Adapter) Stream(ctx context.Context, scope, stageName, modelName string, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := baseSeed
	for _, part := range []string{scope, stageName, modelName} {
		if part != "" {
			seed = int64(hashString(part)) + seed
		}
	}
	return rand.New(rand.NewSource(seed)), nil
}

// hashString is djb2
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c)
	}
	return hash
}
