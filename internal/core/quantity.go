// Package core provides quantity parsing and dish filtering utilities.
//
// This file contains functions for turning user-typed numeric text into
// float values and for matching dish names against a search string.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// ParseQuantity converts a decimal string to a float64.
//
// It accepts both dot (12.5) and comma (12,5) decimal separators. Signs,
// exponents and more than one separator are rejected, so the result is
// always a finite non-negative number.
//
// Examples:
//
//	ParseQuantity("130")   -> 130, nil
//	ParseQuantity("2,7")   -> 2.7, nil
//	ParseQuantity(" .5 ")  -> 0.5, nil
//	ParseQuantity("-1")    -> 0, ErrInvalidQuantity
func ParseQuantity(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidQuantity
	}
	s = strings.ReplaceAll(s, ",", ".")

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidQuantity
	}
	digits := 0
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return 0, ErrInvalidQuantity
			}
			digits++
		}
	}
	if digits == 0 {
		return 0, ErrInvalidQuantity
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, ErrInvalidQuantity
	}
	return v, nil
}

// ParseGrams parses a consumed quantity, which must be strictly positive.
func ParseGrams(s string) (float64, error) {
	g, err := ParseQuantity(s)
	if err != nil {
		return 0, err
	}
	if err := ValidateGrams(g); err != nil {
		return 0, err
	}
	return g, nil
}

// FilterDishes returns the dishes whose name contains query, ignoring case.
// Case folding is Unicode aware so Cyrillic names match regardless of case.
// The input order is preserved; an empty query returns every dish.
func FilterDishes(dishes []Dish, query string) []Dish {
	query = strings.TrimSpace(query)
	if query == "" {
		return dishes
	}
	fold := cases.Fold()
	needle := fold.String(query)

	out := make([]Dish, 0, len(dishes))
	for _, d := range dishes {
		if strings.Contains(fold.String(d.Name), needle) {
			out = append(out, d)
		}
	}
	return out
}
