// Package backend builds the journal the worker writes tracked entries to.
package backend

import (
	"context"
	"fmt"

	applog "kbju/internal/log"
	gsheet "kbju/internal/sheets/google"
	"kbju/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentJournal),
	}
}

// CreateJournal implements Factory.CreateJournal
func (f *DefaultFactory) CreateJournal(ctx context.Context, config Config) (*JournalResult, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid journal type: %q", config.Type)
	}

	switch config.Type {
	case SheetsJournal:
		return f.createSheetsJournal(ctx, config)
	default:
		return f.createMemoryJournal()
	}
}

func (f *DefaultFactory) createSheetsJournal(ctx context.Context, config Config) (*JournalResult, error) {
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets journal: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets journal",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet", config.GoogleSheetName)

	return &JournalResult{Journal: client, Type: SheetsJournal}, nil
}

// createMemoryJournal keeps entries in process memory. They are lost on exit,
// which is only acceptable for local development.
func (f *DefaultFactory) createMemoryJournal() (*JournalResult, error) {
	f.logger.Warn("No spreadsheet configured, journaling to memory only")
	return &JournalResult{Journal: memory.New(), Type: MemoryJournal}, nil
}
