package backend

import (
	"context"

	"kbju/internal/sheets"
)

// JournalResult contains the journal instance and the type that was built
type JournalResult struct {
	Journal sheets.Journal
	Type    JournalType
}

// Factory creates journals based on configuration
type Factory interface {
	CreateJournal(ctx context.Context, config Config) (*JournalResult, error)
}

// Config holds configuration for journal creation
type Config struct {
	Type JournalType

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// JournalType represents where tracked entries are journaled
type JournalType string

const (
	SheetsJournal JournalType = "sheets"
	MemoryJournal JournalType = "memory"
)

// String implements fmt.Stringer
func (jt JournalType) String() string {
	return string(jt)
}

// IsValid returns true if the journal type is known
func (jt JournalType) IsValid() bool {
	switch jt {
	case SheetsJournal, MemoryJournal:
		return true
	default:
		return false
	}
}
