package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"kbju/internal/cache"
	"kbju/internal/core"
	applog "kbju/internal/log"
)

// Repository is the data store used by the diary.
type Repository interface {
	AddDish(ctx context.Context, d core.Dish) (int64, error)
	GetDishes(ctx context.Context) ([]core.Dish, error)
	SearchDishes(ctx context.Context, query string) ([]core.Dish, error)
	GetDish(ctx context.Context, name string) (core.Dish, error)
	UpdateDish(ctx context.Context, oldName string, d core.Dish) error
	DeleteDish(ctx context.Context, name string) error
	TrackCalories(ctx context.Context, dishName string, grams float64, date string) (float64, int64, error)
	GetDataByDate(ctx context.Context, date string) (core.Macros, error)
	GetCalorieDataByDateRange(ctx context.Context, start, end string) ([]core.DayTotals, error)
	ListEntriesByDate(ctx context.Context, date string) ([]core.ConsumptionEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Publisher announces tracked entries to the journal worker.
type Publisher interface {
	PublishEntryTracked(ctx context.Context, id int64, date string) error
	Close() error
}

// DayReport is the intake of one day with the entries that make it up.
type DayReport struct {
	Date    string                  `json:"date"`
	Totals  core.Macros             `json:"totals"`
	Entries []core.ConsumptionEntry `json:"entries"`
}

// DiaryService validates input, delegates to the repository and keeps the
// day totals cache coherent with every write.
type DiaryService struct {
	repo      Repository
	publisher Publisher
	days      cache.Cache[core.Macros]
	logger    *applog.Logger

	// gen counts day cache invalidations. A read only fills the cache when
	// no write landed while it was querying the repository.
	mu  sync.Mutex
	gen uint64
}

type Option func(*DiaryService)

// WithPublisher enables EntryTracked events. A nil publisher is ignored.
func WithPublisher(p Publisher) Option {
	return func(s *DiaryService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithDayCache caches day totals by date.
func WithDayCache(c cache.Cache[core.Macros]) Option {
	return func(s *DiaryService) { s.days = c }
}

func NewDiaryService(repo Repository, logger *applog.Logger, opts ...Option) *DiaryService {
	s := &DiaryService{
		repo:   repo,
		logger: logger.WithComponent(applog.ComponentDiary),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDish stores a new dish. The name is trimmed before validation.
func (s *DiaryService) AddDish(ctx context.Context, d core.Dish) (core.Dish, error) {
	d.Name = strings.TrimSpace(d.Name)
	if err := d.Validate(); err != nil {
		return core.Dish{}, err
	}

	id, err := s.repo.AddDish(ctx, d)
	if err != nil {
		return core.Dish{}, err
	}
	d.ID = id
	return d, nil
}

// ListDishes returns every dish, or the ones matching query when it is not
// blank. The result is never nil.
func (s *DiaryService) ListDishes(ctx context.Context, query string) ([]core.Dish, error) {
	var (
		dishes []core.Dish
		err    error
	)
	if strings.TrimSpace(query) == "" {
		dishes, err = s.repo.GetDishes(ctx)
	} else {
		dishes, err = s.repo.SearchDishes(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	if dishes == nil {
		dishes = []core.Dish{}
	}
	return dishes, nil
}

func (s *DiaryService) GetDish(ctx context.Context, name string) (core.Dish, error) {
	return s.repo.GetDish(ctx, name)
}

// UpdateDish replaces the dish named oldName. Past totals depend on the
// per-100g values, so the whole day cache is dropped.
func (s *DiaryService) UpdateDish(ctx context.Context, oldName string, d core.Dish) error {
	d.Name = strings.TrimSpace(d.Name)
	if err := d.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateDish(ctx, oldName, d); err != nil {
		return err
	}
	s.purgeDays()
	return nil
}

// DeleteDish removes the dish and its history.
func (s *DiaryService) DeleteDish(ctx context.Context, name string) error {
	if err := s.repo.DeleteDish(ctx, name); err != nil {
		return err
	}
	s.purgeDays()
	return nil
}

// TrackCalories logs grams of the named dish on date. On success an
// EntryTracked event is published when a publisher is configured;
// publication failures are logged and never returned.
func (s *DiaryService) TrackCalories(ctx context.Context, dishName string, grams float64, date string) (core.ConsumptionEntry, error) {
	dishName = strings.TrimSpace(dishName)
	if err := core.ValidateName(dishName); err != nil {
		return core.ConsumptionEntry{}, err
	}
	if err := core.ValidateGrams(grams); err != nil {
		return core.ConsumptionEntry{}, err
	}
	if err := core.ValidateDate(date); err != nil {
		return core.ConsumptionEntry{}, err
	}

	calories, id, err := s.repo.TrackCalories(ctx, dishName, grams, date)
	if err != nil {
		return core.ConsumptionEntry{}, err
	}
	s.invalidateDay(date)

	entry := core.ConsumptionEntry{
		ID:       id,
		DishName: dishName,
		Grams:    grams,
		Calories: calories,
		Date:     date,
	}
	s.publish(ctx, entry)
	return entry, nil
}

func (s *DiaryService) publish(ctx context.Context, e core.ConsumptionEntry) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping entry event", applog.FieldEntryID, e.ID)
		return
	}
	if err := s.publisher.PublishEntryTracked(ctx, e.ID, e.Date); err != nil {
		s.logger.LogError(ctx, "Failed to publish entry tracked message", err, applog.OpPublish,
			applog.NewFields().WithEntry(e.DishName, e.Grams, e.Calories, e.Date))
	}
}

// DayTotals returns the summed intake of date; a day without entries yields
// zeros.
func (s *DiaryService) DayTotals(ctx context.Context, date string) (core.Macros, error) {
	if err := core.ValidateDate(date); err != nil {
		return core.Macros{}, err
	}
	if s.days == nil {
		return s.repo.GetDataByDate(ctx, date)
	}
	if m, ok := s.days.Get(date); ok {
		return m, nil
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	m, err := s.repo.GetDataByDate(ctx, date)
	if err != nil {
		return core.Macros{}, err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.days.Set(date, m)
	}
	s.mu.Unlock()
	return m, nil
}

// Day returns the totals of date together with its entries.
func (s *DiaryService) Day(ctx context.Context, date string) (DayReport, error) {
	totals, err := s.DayTotals(ctx, date)
	if err != nil {
		return DayReport{}, err
	}
	entries, err := s.repo.ListEntriesByDate(ctx, date)
	if err != nil {
		return DayReport{}, err
	}
	if entries == nil {
		entries = []core.ConsumptionEntry{}
	}
	return DayReport{Date: date, Totals: totals, Entries: entries}, nil
}

// Trend returns per-day totals between start and end inclusive. Days without
// entries are absent.
func (s *DiaryService) Trend(ctx context.Context, start, end string) ([]core.DayTotals, error) {
	if err := core.ValidateRange(start, end); err != nil {
		return nil, err
	}
	days, err := s.repo.GetCalorieDataByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []core.DayTotals{}
	}
	return days, nil
}

func (s *DiaryService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *DiaryService) invalidateDay(date string) {
	if s.days == nil {
		return
	}
	s.mu.Lock()
	s.gen++
	s.days.Delete(date)
	s.mu.Unlock()
}

func (s *DiaryService) purgeDays() {
	if s.days == nil {
		return
	}
	s.mu.Lock()
	s.gen++
	s.days.Purge()
	s.mu.Unlock()
}

// Close closes both storage and AMQP connections
func (s *DiaryService) Close() error {
	var errs []error

	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close diary service: %w", errors.Join(errs...))
	}

	return nil
}
