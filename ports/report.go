package ports

import (
	"context"

	"perchmp/domain/run"
)

// ReportWriter renders a run's results into output artifacts
type ReportWriter interface {
	// Write renders the result into dir and returns the paths written
	Write(ctx context.Context, result *run.Result, dir string) ([]string, error)
}
