package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kbju/internal/core"
)

func newParser(t *testing.T, body, contentType string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return NewRequestBodyParser(httptest.NewRecorder(), req)
}

func TestRequestBodyParser_JSON(t *testing.T) {
	parser := newParser(t, `{"name": " Гречка ", "kcal": 343, "fats": "3,4", "flag": true}`, "application/json")
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if name := parser.Get("name"); name != "Гречка" {
		t.Errorf("Get('name') = %q, want 'Гречка'", name)
	}
	if kcal := parser.Get("kcal"); kcal != "343" {
		t.Errorf("Get('kcal') = %q, want '343'", kcal)
	}
	if fats, err := parser.Quantity("fats"); err != nil || fats != 3.4 {
		t.Errorf("Quantity('fats') = %v, %v", fats, err)
	}
	if !parser.Has("flag") || parser.Has("carbs") {
		t.Error("Has() reports wrong presence")
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	parser := newParser(t, "dish=Rice&grams=200&date=2024-01-01", "application/x-www-form-urlencoded")
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if dish := parser.Get("dish"); dish != "Rice" {
		t.Errorf("Get('dish') = %q, want 'Rice'", dish)
	}
	if grams, err := parser.Quantity("grams"); err != nil || grams != 200 {
		t.Errorf("Quantity('grams') = %v, %v", grams, err)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	parser := newParser(t, "", "")
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
	if _, err := parser.Quantity("grams"); !errors.Is(err, core.ErrInvalidQuantity) {
		t.Errorf("Quantity() on missing field error = %v", err)
	}
}

func TestRequestBodyParser_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"broken json", `{"name": `},
		{"json array", `[1, 2]`},
		{"bad form escape", "name=%zz"},
		{"too large", "name=" + strings.Repeat("a", maxBodyBytes)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := newParser(t, tt.body, "")
			err := parser.Parse()
			if !errors.Is(err, errMalformedBody) {
				t.Fatalf("Parse() error = %v, want errMalformedBody", err)
			}
			if again := parser.Parse(); again != err {
				t.Fatal("Parse() must be idempotent")
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Rice  ", "Rice"},
		{"Ri\x00ce", "Rice"},
		{"line\tone", "line\tone"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
