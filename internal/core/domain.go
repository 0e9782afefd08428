package core

import (
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the only accepted date format for diary entries.
const DateLayout = "2006-01-02"

const maxNameLength = 100

type (
	// Macros holds calories, proteins, fats and carbs. For a Dish the values
	// are per 100 grams; for totals they are absolute amounts.
	Macros struct {
		Kcal     float64 `json:"kcal"`
		Proteins float64 `json:"proteins"`
		Fats     float64 `json:"fats"`
		Carbs    float64 `json:"carbs"`
	}

	Dish struct {
		ID     int64  `json:"-"`
		Name   string `json:"name"`
		Macros `json:"per_100g"`
	}

	// ConsumptionEntry is one logged intake of a dish.
	ConsumptionEntry struct {
		ID       int64   `json:"id"`
		DishID   int64   `json:"-"`
		DishName string  `json:"dish"`
		Grams    float64 `json:"grams"`
		Calories float64 `json:"calories"`
		Date     string  `json:"date"`
	}

	// DayTotals is the aggregated intake for a single date.
	DayTotals struct {
		Date   string `json:"date"`
		Macros `json:"totals"`
	}
)

var (
	ErrDuplicateName   = errors.New("dish already exists")
	ErrDishNotFound    = errors.New("dish not found")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrEmptyName       = errors.New("empty dish name")
	ErrNameTooLong     = errors.New("dish name too long (max 100 characters)")
	ErrInvalidMacro    = errors.New("invalid macro value")
	ErrInvalidGrams    = errors.New("grams must be greater than zero")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidRange    = errors.New("start date is after end date")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

func (m Macros) Validate() error {
	for _, v := range []float64{m.Kcal, m.Proteins, m.Fats, m.Carbs} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return ErrInvalidMacro
		}
	}
	return nil
}

// Add returns the component-wise sum of m and o.
func (m Macros) Add(o Macros) Macros {
	return Macros{
		Kcal:     m.Kcal + o.Kcal,
		Proteins: m.Proteins + o.Proteins,
		Fats:     m.Fats + o.Fats,
		Carbs:    m.Carbs + o.Carbs,
	}
}

// Round rounds every component half away from zero to the given number of
// decimals.
func (m Macros) Round(decimals int) Macros {
	p := math.Pow(10, float64(decimals))
	r := func(v float64) float64 { return math.Round(v*p) / p }
	return Macros{Kcal: r(m.Kcal), Proteins: r(m.Proteins), Fats: r(m.Fats), Carbs: r(m.Carbs)}
}

// IsZero reports whether no intake was recorded.
func (m Macros) IsZero() bool {
	return m == Macros{}
}

func (d Dish) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	return d.Macros.Validate()
}

func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func ValidateGrams(grams float64) error {
	if math.IsNaN(grams) || math.IsInf(grams, 0) || grams <= 0 {
		return ErrInvalidGrams
	}
	return nil
}

// ParseDate parses a strict YYYY-MM-DD date. Surrounding whitespace is
// rejected so that a valid date is always the stored key.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func ValidateDate(s string) error {
	_, err := ParseDate(s)
	return err
}

// ValidateRange checks both bounds and that start is not after end.
func ValidateRange(start, end string) error {
	s, err := ParseDate(start)
	if err != nil {
		return err
	}
	e, err := ParseDate(end)
	if err != nil {
		return err
	}
	if s.After(e) {
		return ErrInvalidRange
	}
	return nil
}

// FormatDate renders t in the diary date layout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CaloriesFor returns the calories of grams of a dish with kcalPer100 per 100g.
func CaloriesFor(kcalPer100, grams float64) float64 {
	return kcalPer100 / 100 * grams
}
