package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"kbju/internal/core"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteRepository owns the single database handle of the diary.
type SQLiteRepository struct {
	db *sql.DB
}

func dsn(path string) string {
	return filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection held for the process lifetime; SQLite serializes writers anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// AddDish inserts a new dish. It fails with core.ErrDuplicateName when a dish
// with the same name exists; the existing row is left untouched.
func (r *SQLiteRepository) AddDish(ctx context.Context, d core.Dish) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO dishes (name, kcal, proteins, fats, carbs)
		VALUES (?, ?, ?, ?, ?)`,
		d.Name, d.Kcal, d.Proteins, d.Fats, d.Carbs)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, core.ErrDuplicateName
		}
		return 0, fmt.Errorf("insert dish: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dish id: %w", err)
	}

	slog.InfoContext(ctx, "Dish saved to SQLite", "id", id, "name", d.Name, "kcal", d.Kcal)
	return id, nil
}

// GetDishes returns every dish in insertion order.
func (r *SQLiteRepository) GetDishes(ctx context.Context) ([]core.Dish, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kcal, proteins, fats, carbs
		FROM dishes
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query dishes: %w", err)
	}
	defer rows.Close()

	var dishes []core.Dish
	for rows.Next() {
		var d core.Dish
		if err := rows.Scan(&d.ID, &d.Name, &d.Kcal, &d.Proteins, &d.Fats, &d.Carbs); err != nil {
			return nil, fmt.Errorf("scan dish: %w", err)
		}
		dishes = append(dishes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dishes: %w", err)
	}
	return dishes, nil
}

// SearchDishes returns the dishes whose name contains query, case-insensitively.
func (r *SQLiteRepository) SearchDishes(ctx context.Context, query string) ([]core.Dish, error) {
	dishes, err := r.GetDishes(ctx)
	if err != nil {
		return nil, err
	}
	return core.FilterDishes(dishes, query), nil
}

// GetDish returns the dish named name or core.ErrDishNotFound.
func (r *SQLiteRepository) GetDish(ctx context.Context, name string) (core.Dish, error) {
	var d core.Dish
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, kcal, proteins, fats, carbs
		FROM dishes
		WHERE name = ?`, name).
		Scan(&d.ID, &d.Name, &d.Kcal, &d.Proteins, &d.Fats, &d.Carbs)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Dish{}, core.ErrDishNotFound
	}
	if err != nil {
		return core.Dish{}, fmt.Errorf("get dish %q: %w", name, err)
	}
	return d, nil
}

// UpdateDish overwrites every field of the dish currently named oldName.
// Nothing happens when no dish has that name. Renaming onto a name owned by
// another dish fails with core.ErrDuplicateName. Log entries reference the
// dish id, so a rename keeps the history attached.
func (r *SQLiteRepository) UpdateDish(ctx context.Context, oldName string, d core.Dish) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dishes
		SET name = ?, kcal = ?, proteins = ?, fats = ?, carbs = ?, updated_at = CURRENT_TIMESTAMP
		WHERE name = ?`,
		d.Name, d.Kcal, d.Proteins, d.Fats, d.Carbs, oldName)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateName
		}
		return fmt.Errorf("update dish %q: %w", oldName, err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		slog.DebugContext(ctx, "Update matched no dish", "old_name", oldName)
		return nil
	}
	slog.InfoContext(ctx, "Dish updated", "old_name", oldName, "name", d.Name)
	return nil
}

// TrackCalories logs grams of the named dish on date and returns the
// calories of the new entry together with its id. An unknown dish yields
// zero calories and core.ErrDishNotFound; nothing is written.
func (r *SQLiteRepository) TrackCalories(ctx context.Context, dishName string, grams float64, date string) (float64, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		dishID int64
		kcal   float64
	)
	err = tx.QueryRowContext(ctx, `SELECT id, kcal FROM dishes WHERE name = ?`, dishName).Scan(&dishID, &kcal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, core.ErrDishNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("lookup dish %q: %w", dishName, err)
	}

	calories := core.CaloriesFor(kcal, grams)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO calorie_log (dish_id, grams, calories, date)
		VALUES (?, ?, ?, ?)`,
		dishID, grams, calories, date)
	if err != nil {
		return 0, 0, fmt.Errorf("insert calorie log: %w", err)
	}
	entryID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("entry id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit calorie log: %w", err)
	}

	slog.InfoContext(ctx, "Consumption tracked",
		"entry_id", entryID,
		"dish", dishName,
		"grams", grams,
		"calories", calories,
		"date", date)

	return calories, entryID, nil
}

// DeleteDish removes the named dish and all its log entries in a single
// transaction. Entries go first so no row is ever left pointing at a
// missing dish. Deleting an unknown name is a no-op.
func (r *SQLiteRepository) DeleteDish(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	entries, err := tx.ExecContext(ctx, `
		DELETE FROM calorie_log
		WHERE dish_id IN (SELECT id FROM dishes WHERE name = ?)`, name)
	if err != nil {
		return fmt.Errorf("delete calorie log for %q: %w", name, err)
	}
	dishes, err := tx.ExecContext(ctx, `DELETE FROM dishes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete dish %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	removedEntries, _ := entries.RowsAffected()
	removedDishes, _ := dishes.RowsAffected()
	slog.InfoContext(ctx, "Dish deleted",
		"name", name,
		"dishes_removed", removedDishes,
		"entries_removed", removedEntries)
	return nil
}

// GetDataByDate sums the macros consumed on date. Calories come from the
// stored per-entry value; proteins, fats and carbs are derived from each
// entry's grams and its dish's per-100g values. No entries yields zeros.
func (r *SQLiteRepository) GetDataByDate(ctx context.Context, date string) (core.Macros, error) {
	var m core.Macros
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(l.calories), 0),
			COALESCE(SUM(l.grams * d.proteins / 100.0), 0),
			COALESCE(SUM(l.grams * d.fats / 100.0), 0),
			COALESCE(SUM(l.grams * d.carbs / 100.0), 0)
		FROM calorie_log l
		JOIN dishes d ON d.id = l.dish_id
		WHERE l.date = ?`, date).
		Scan(&m.Kcal, &m.Proteins, &m.Fats, &m.Carbs)
	if err != nil {
		return core.Macros{}, fmt.Errorf("sum macros for %s: %w", date, err)
	}
	return m, nil
}

// GetCalorieDataByDateRange returns one row per date in [start, end] that has
// at least one entry, ascending by date.
func (r *SQLiteRepository) GetCalorieDataByDateRange(ctx context.Context, start, end string) ([]core.DayTotals, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			l.date,
			SUM(l.calories),
			SUM(l.grams * d.proteins / 100.0),
			SUM(l.grams * d.fats / 100.0),
			SUM(l.grams * d.carbs / 100.0)
		FROM calorie_log l
		JOIN dishes d ON d.id = l.dish_id
		WHERE l.date BETWEEN ? AND ?
		GROUP BY l.date
		ORDER BY l.date ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query range %s..%s: %w", start, end, err)
	}
	defer rows.Close()

	var out []core.DayTotals
	for rows.Next() {
		var t core.DayTotals
		if err := rows.Scan(&t.Date, &t.Kcal, &t.Proteins, &t.Fats, &t.Carbs); err != nil {
			return nil, fmt.Errorf("scan day totals: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day totals: %w", err)
	}
	return out, nil
}

// GetEntry returns a single log entry with the current name of its dish.
func (r *SQLiteRepository) GetEntry(ctx context.Context, id int64) (core.ConsumptionEntry, error) {
	var e core.ConsumptionEntry
	err := r.db.QueryRowContext(ctx, `
		SELECT l.id, l.dish_id, d.name, l.grams, l.calories, l.date
		FROM calorie_log l
		JOIN dishes d ON d.id = l.dish_id
		WHERE l.id = ?`, id).
		Scan(&e.ID, &e.DishID, &e.DishName, &e.Grams, &e.Calories, &e.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ConsumptionEntry{}, core.ErrEntryNotFound
	}
	if err != nil {
		return core.ConsumptionEntry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	return e, nil
}

// ListEntriesByDate returns the entries logged on date in insertion order.
func (r *SQLiteRepository) ListEntriesByDate(ctx context.Context, date string) ([]core.ConsumptionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.dish_id, d.name, l.grams, l.calories, l.date
		FROM calorie_log l
		JOIN dishes d ON d.id = l.dish_id
		WHERE l.date = ?
		ORDER BY l.id`, date)
	if err != nil {
		return nil, fmt.Errorf("query entries for %s: %w", date, err)
	}
	defer rows.Close()

	var out []core.ConsumptionEntry
	for rows.Next() {
		var e core.ConsumptionEntry
		if err := rows.Scan(&e.ID, &e.DishID, &e.DishName, &e.Grams, &e.Calories, &e.Date); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
