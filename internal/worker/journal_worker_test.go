package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"kbju/internal/amqp"
	"kbju/internal/core"
	applog "kbju/internal/log"
	"kbju/internal/sheets/memory"
)

type fakeEntries struct {
	byID   map[int64]core.ConsumptionEntry
	getErr error
}

func (f *fakeEntries) GetEntry(_ context.Context, id int64) (core.ConsumptionEntry, error) {
	if f.getErr != nil {
		return core.ConsumptionEntry{}, f.getErr
	}
	e, ok := f.byID[id]
	if !ok {
		return core.ConsumptionEntry{}, core.ErrEntryNotFound
	}
	return e, nil
}

func (f *fakeEntries) ListEntriesByDate(_ context.Context, date string) ([]core.ConsumptionEntry, error) {
	var out []core.ConsumptionEntry
	for id := int64(1); id <= int64(len(f.byID)); id++ {
		if e, ok := f.byID[id]; ok && e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

type failingJournal struct{ *memory.Store }

func (failingJournal) AppendEntry(context.Context, core.ConsumptionEntry) (string, error) {
	return "", errors.New("sheets unavailable")
}

func newTestLogger() *applog.Logger {
	return applog.New(applog.Config{Level: slog.LevelDebug, Component: applog.ComponentApp, Output: &bytes.Buffer{}})
}

func rice(id int64, date string) core.ConsumptionEntry {
	return core.ConsumptionEntry{ID: id, DishID: 1, DishName: "Rice", Grams: 200, Calories: 260, Date: date}
}

func TestHandleEntryTracked(t *testing.T) {
	ctx := context.Background()

	t.Run("journals the entry once", func(t *testing.T) {
		journal := memory.New()
		w := NewJournalWorker(&fakeEntries{byID: map[int64]core.ConsumptionEntry{1: rice(1, "2024-01-01")}}, journal, newTestLogger())

		msg := amqp.NewEntryTrackedMessage(1, "2024-01-01")
		if err := w.HandleEntryTracked(ctx, msg); err != nil {
			t.Fatalf("HandleEntryTracked() error = %v", err)
		}
		if err := w.HandleEntryTracked(ctx, msg); err != nil {
			t.Fatalf("redelivery error = %v", err)
		}

		got := journal.Entries()
		if len(got) != 1 || got[0].DishName != "Rice" || got[0].Calories != 260 {
			t.Fatalf("journal = %+v", got)
		}
	})

	t.Run("missing entry is skipped", func(t *testing.T) {
		journal := memory.New()
		w := NewJournalWorker(&fakeEntries{byID: map[int64]core.ConsumptionEntry{}}, journal, newTestLogger())

		if err := w.HandleEntryTracked(ctx, amqp.NewEntryTrackedMessage(9, "2024-01-01")); err != nil {
			t.Fatalf("HandleEntryTracked() error = %v, want nil", err)
		}
		if len(journal.Entries()) != 0 {
			t.Fatal("nothing should be journaled")
		}
	})

	t.Run("storage failure is returned", func(t *testing.T) {
		w := NewJournalWorker(&fakeEntries{getErr: errors.New("disk I/O error")}, memory.New(), newTestLogger())

		if err := w.HandleEntryTracked(ctx, amqp.NewEntryTrackedMessage(1, "2024-01-01")); err == nil {
			t.Fatal("expected error for requeue")
		}
	})

	t.Run("journal failure is returned", func(t *testing.T) {
		entries := &fakeEntries{byID: map[int64]core.ConsumptionEntry{1: rice(1, "2024-01-01")}}
		w := NewJournalWorker(entries, failingJournal{memory.New()}, newTestLogger())

		if err := w.HandleEntryTracked(ctx, amqp.NewEntryTrackedMessage(1, "2024-01-01")); err == nil {
			t.Fatal("expected error for requeue")
		}
	})
}

func TestStartupBackfill(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

	entries := &fakeEntries{byID: map[int64]core.ConsumptionEntry{
		1: rice(1, "2023-12-31"),
		2: rice(2, "2024-01-02"),
		3: rice(3, "2024-01-03"),
		4: rice(4, "2024-01-03"),
	}}
	journal := memory.New()
	if _, err := journal.AppendEntry(ctx, rice(3, "2024-01-03")); err != nil {
		t.Fatal(err)
	}

	w := NewJournalWorker(entries, journal, newTestLogger())
	if err := w.StartupBackfill(ctx, today, 2); err != nil {
		t.Fatalf("StartupBackfill() error = %v", err)
	}

	got := journal.Entries()
	if len(got) != 3 {
		t.Fatalf("journal has %d rows, want 3: %+v", len(got), got)
	}
	if got[1].ID != 2 || got[2].ID != 4 {
		t.Fatalf("unexpected backfill order: %+v", got)
	}

	if err := w.StartupBackfill(ctx, today, 0); err != nil {
		t.Fatalf("StartupBackfill(0) error = %v", err)
	}
}

func TestStartupBackfillContinuesOnJournalError(t *testing.T) {
	entries := &fakeEntries{byID: map[int64]core.ConsumptionEntry{1: rice(1, "2024-01-03")}}
	w := NewJournalWorker(entries, failingJournal{memory.New()}, newTestLogger())

	if err := w.StartupBackfill(context.Background(), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), 1); err != nil {
		t.Fatalf("StartupBackfill() error = %v", err)
	}
}
