package ports

import (
	"context"

	"perchmp/domain/core"
	"perchmp/domain/run"
)

// LedgerWriterPort records finished runs; entries are never updated
type LedgerWriterPort interface {
	Record(ctx context.Context, result *run.Result) error
}

// LedgerReaderPort queries recorded runs
type LedgerReaderPort interface {
	// Runs lists recorded runs, newest first
	Runs(ctx context.Context, limit int) ([]run.LedgerEntry, error)
	// Matching lists the runs sharing a fingerprint, oldest first
	Matching(ctx context.Context, fingerprint core.Hash) ([]run.LedgerEntry, error)
}

// LedgerPort combines read and write access to a run ledger
type LedgerPort interface {
	LedgerWriterPort
	LedgerReaderPort
	Close() error
}
