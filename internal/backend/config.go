package backend

import (
	"fmt"

	"kbju/internal/config"
)

// FromAppConfig selects the Sheets journal when a spreadsheet is configured
// and the in-memory journal otherwise.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	journalType := MemoryJournal
	if appConfig.JournalEnabled() {
		journalType = SheetsJournal
	}

	return Config{
		Type:                     journalType,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
	}, nil
}
