package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"kbju/internal/core"
	ports "kbju/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client journals consumption entries to a Google Sheet, one row per entry:
// entry id, date, dish, grams, kcal.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var _ ports.Journal = (*Client)(nil)

// Options configures the journal client. One of ServiceAccountJSON or
// ServiceAccountFile is required.
type Options struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Diary"
	}

	credentialsJSON, err := loadCredentials(opts.ServiceAccountJSON, opts.ServiceAccountFile)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets journal ready",
		"spreadsheet_id", spreadsheetID,
		"sheet", sheetName)

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func loadCredentials(inline, file string) ([]byte, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// AppendEntry appends the entry as a new row and returns the updated range.
func (c *Client) AppendEntry(ctx context.Context, e core.ConsumptionEntry) (string, error) {
	if e.ID <= 0 {
		return "", errors.New("entry id must be positive")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := sheetRange(c.sheetName, "A:E")
	vr := &gsheet.ValueRange{Values: [][]any{entryRow(e)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// HasEntry scans the id column for the given entry id.
func (c *Client) HasEntry(ctx context.Context, id int64) (bool, error) {
	if c.svc == nil {
		return false, errors.New("sheets service not initialized")
	}

	rng := sheetRange(c.sheetName, "A:A")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rng, err)
	}
	_, ok := parseEntryIDs(resp.Values)[id]
	return ok, nil
}

func entryRow(e core.ConsumptionEntry) []any {
	return []any{e.ID, e.Date, e.DishName, round2(e.Grams), round2(e.Calories)}
}

// parseEntryIDs collects the ids found in the first column, skipping the
// header and any non-numeric cell.
func parseEntryIDs(values [][]any) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

// sheetRange builds an A1 range, quoting sheet names that need it.
func sheetRange(sheet, cols string) string {
	if strings.ContainsAny(sheet, " '!") {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return fmt.Sprintf("%s!%s", sheet, cols)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
