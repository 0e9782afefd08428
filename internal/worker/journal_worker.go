package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kbju/internal/amqp"
	"kbju/internal/core"
	applog "kbju/internal/log"
	"kbju/internal/sheets"
)

// EntryReader is the slice of the data store the worker needs.
type EntryReader interface {
	GetEntry(ctx context.Context, id int64) (core.ConsumptionEntry, error)
	ListEntriesByDate(ctx context.Context, date string) ([]core.ConsumptionEntry, error)
}

// JournalWorker copies tracked entries from the database to the journal.
type JournalWorker struct {
	entries EntryReader
	journal sheets.Journal
	logger  *applog.Logger
}

func NewJournalWorker(entries EntryReader, journal sheets.Journal, logger *applog.Logger) *JournalWorker {
	return &JournalWorker{
		entries: entries,
		journal: journal,
		logger:  logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleEntryTracked journals the entry named by msg. An entry that no longer
// exists (its dish was deleted) is skipped without error so the message is
// acknowledged. Any other failure is returned and the message is requeued.
func (w *JournalWorker) HandleEntryTracked(ctx context.Context, msg *amqp.EntryTrackedMessage) error {
	w.logger.InfoContext(ctx, "Processing entry tracked message",
		applog.FieldEntryID, msg.ID,
		applog.FieldDate, msg.Date)

	entry, err := w.entries.GetEntry(ctx, msg.ID)
	if errors.Is(err, core.ErrEntryNotFound) {
		w.logger.WarnContext(ctx, "Entry no longer exists, skipping",
			applog.FieldEntryID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get entry from storage: %w", err)
	}

	return w.journalEntry(ctx, entry)
}

// StartupBackfill journals entries of the last days days (today included)
// that are missing from the journal. It recovers from messages lost while
// the worker was down.
func (w *JournalWorker) StartupBackfill(ctx context.Context, today time.Time, days int) error {
	if days <= 0 {
		return nil
	}

	synced, failed := 0, 0
	for i := days - 1; i >= 0; i-- {
		date := core.FormatDate(today.AddDate(0, 0, -i))
		entries, err := w.entries.ListEntriesByDate(ctx, date)
		if err != nil {
			return fmt.Errorf("list entries for %s: %w", date, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.journalEntry(ctx, e); err != nil {
				w.logger.LogError(ctx, "Failed to journal entry during backfill", err, applog.OpAppend,
					applog.NewFields().WithEntry(e.DishName, e.Grams, e.Calories, e.Date))
				failed++
				continue
			}
			synced++
		}
	}

	w.logger.InfoContext(ctx, "Startup backfill completed",
		"days", days,
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *JournalWorker) journalEntry(ctx context.Context, e core.ConsumptionEntry) error {
	exists, err := w.journal.HasEntry(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("check journal: %w", err)
	}
	if exists {
		w.logger.DebugContext(ctx, "Entry already journaled", applog.FieldEntryID, e.ID)
		return nil
	}

	ref, err := w.journal.AppendEntry(ctx, e)
	if err != nil {
		return fmt.Errorf("append to journal: %w", err)
	}

	w.logger.InfoContext(ctx, "Entry journaled",
		applog.FieldEntryID, e.ID,
		applog.FieldJournalRef, ref,
		applog.FieldDish, e.DishName,
		applog.FieldCalories, e.Calories)
	return nil
}
