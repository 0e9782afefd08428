package sheets

import (
	"context"

	"kbju/internal/core"
)

// Ports for the consumption journal.
type (
	// JournalWriter appends one consumption entry per row.
	JournalWriter interface {
		AppendEntry(ctx context.Context, e core.ConsumptionEntry) (rowRef string, err error)
	}

	// JournalIndex reports whether an entry was already journaled, so a
	// redelivered event does not produce a duplicate row.
	JournalIndex interface {
		HasEntry(ctx context.Context, id int64) (bool, error)
	}

	Journal interface {
		JournalWriter
		JournalIndex
	}
)
