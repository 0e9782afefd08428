package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kbju/internal/cache"
	"kbju/internal/core"
	applog "kbju/internal/log"
	"kbju/internal/services"
	"kbju/internal/storage"
)

func newTestServer(t *testing.T, opts Options) (*Server, *bytes.Buffer) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "diary.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelInfo, Output: &buf})
	diary := services.NewDiaryService(repo, logger,
		services.WithDayCache(cache.NewLRUCache[core.Macros](16, time.Minute)))

	srv, err := NewServer(":0", diary, logger, opts)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	srv.now = func() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) }
	return srv, &buf
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s missing request id", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("%s missing security headers", path)
		}
	}
}

type failingDiary struct{ Diary }

func (failingDiary) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyReportsStorageFailure(t *testing.T) {
	srv, err := NewServer(":0", failingDiary{}, applog.New(applog.Config{Output: io.Discard}), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown(context.Background())

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	if got := decode[map[string]any](t, rr)["status"]; got != "not_ready" {
		t.Fatalf("status field = %v", got)
	}
}

func TestRiceExampleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/dishes", `{"name":"Rice","kcal":130,"proteins":2.7,"fats":0.3,"carbs":28}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/api/entries", "dish=Rice&grams=200&date=2024-01-01")
	if rr.Code != http.StatusCreated {
		t.Fatalf("track status = %d: %s", rr.Code, rr.Body.String())
	}
	entry := decode[core.ConsumptionEntry](t, rr)
	if !near(entry.Calories, 260) || entry.ID == 0 || entry.DishName != "Rice" {
		t.Fatalf("entry = %+v", entry)
	}

	rr = do(t, srv, http.MethodGet, "/api/days/2024-01-01", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("day status = %d", rr.Code)
	}
	report := decode[services.DayReport](t, rr)
	want := core.Macros{Kcal: 260, Proteins: 5.4, Fats: 0.6, Carbs: 56}
	if report.Totals.Round(6) != want || len(report.Entries) != 1 {
		t.Fatalf("report = %+v", report)
	}

	rr = do(t, srv, http.MethodGet, "/api/trend?start=2023-12-31&end=2024-01-02", "")
	days := decode[[]core.DayTotals](t, rr)
	if len(days) != 1 || days[0].Date != "2024-01-01" || !near(days[0].Kcal, 260) {
		t.Fatalf("trend = %+v", days)
	}
}

func TestDishEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"create", http.MethodPost, "/api/dishes", "name=Гречка&kcal=343&proteins=13,3&fats=3,4&carbs=72,6", http.StatusCreated},
		{"duplicate", http.MethodPost, "/api/dishes", `{"name":"Гречка","kcal":1,"proteins":1,"fats":1,"carbs":1}`, http.StatusConflict},
		{"missing macro", http.MethodPost, "/api/dishes", `{"name":"Oats","kcal":370}`, http.StatusUnprocessableEntity},
		{"negative macro", http.MethodPost, "/api/dishes", `{"name":"Oats","kcal":-1,"proteins":1,"fats":1,"carbs":1}`, http.StatusUnprocessableEntity},
		{"empty name", http.MethodPost, "/api/dishes", `{"name":"  ","kcal":1,"proteins":1,"fats":1,"carbs":1}`, http.StatusUnprocessableEntity},
		{"malformed", http.MethodPost, "/api/dishes", `{"name":`, http.StatusBadRequest},
		{"get", http.MethodGet, "/api/dishes/" + url.PathEscape("Гречка"), "", http.StatusOK},
		{"get missing", http.MethodGet, "/api/dishes/Pizza", "", http.StatusNotFound},
		{"search", http.MethodGet, "/api/dishes?q=" + url.QueryEscape("гре"), "", http.StatusOK},
		{"rename", http.MethodPut, "/api/dishes/" + url.PathEscape("Гречка"), `{"name":"Buckwheat","kcal":343,"proteins":13.3,"fats":3.4,"carbs":72.6}`, http.StatusNoContent},
		{"old name gone", http.MethodGet, "/api/dishes/" + url.PathEscape("Гречка"), "", http.StatusNotFound},
		{"update keeps name", http.MethodPut, "/api/dishes/Buckwheat", `{"kcal":340,"proteins":13,"fats":3,"carbs":72}`, http.StatusNoContent},
		{"delete", http.MethodDelete, "/api/dishes/Buckwheat", "", http.StatusNoContent},
		{"deleted", http.MethodGet, "/api/dishes/Buckwheat", "", http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/api/dishes/Buckwheat", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		rr := do(t, srv, tt.method, tt.target, tt.body)
		if rr.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d: %s", tt.name, rr.Code, tt.status, rr.Body.String())
		}
		if tt.name == "search" {
			dishes := decode[[]core.Dish](t, rr)
			if len(dishes) != 1 || dishes[0].Name != "Гречка" {
				t.Fatalf("search = %+v", dishes)
			}
		}
	}
}

func TestRenameCollision(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	for _, name := range []string{"Rice", "Oats"} {
		do(t, srv, http.MethodPost, "/api/dishes", "name="+name+"&kcal=100&proteins=1&fats=1&carbs=1")
	}

	rr := do(t, srv, http.MethodPut, "/api/dishes/Rice", "name=Oats&kcal=100&proteins=1&fats=1&carbs=1")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestTrackCaloriesErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, srv, http.MethodPost, "/api/dishes", "name=Rice&kcal=130&proteins=2.7&fats=0.3&carbs=28")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown dish", "dish=Pizza&grams=100&date=2024-01-01", http.StatusNotFound},
		{"zero grams", "dish=Rice&grams=0&date=2024-01-01", http.StatusUnprocessableEntity},
		{"text grams", "dish=Rice&grams=lots&date=2024-01-01", http.StatusUnprocessableEntity},
		{"bad date", "dish=Rice&grams=100&date=01/01/2024", http.StatusUnprocessableEntity},
		{"default date", "dish=Rice&grams=100", http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/entries", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}

	rr := do(t, srv, http.MethodGet, "/api/days/today", "")
	report := decode[services.DayReport](t, rr)
	if report.Date != "2024-01-01" || !near(report.Totals.Kcal, 130) {
		t.Fatalf("today = %+v", report)
	}
}

func TestDayAndTrendValidation(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/api/days/2024-02-30", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid day status = %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/days/%202024-03-01", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("padded day status = %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/days/2024-03-01", "")
	report := decode[services.DayReport](t, rr)
	if !report.Totals.IsZero() || report.Entries == nil {
		t.Fatalf("empty day = %+v, body %s", report, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/trend?start=2024-02-01&end=2024-01-01", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("reversed range status = %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/trend?start=2024-01-01&end=2024-01-31", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty trend body = %q", rr.Body.String())
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimitPerMinute: 2})

	codes := []int{}
	for i := 0; i < 3; i++ {
		rr := do(t, srv, http.MethodPost, "/api/entries", "dish=Rice&grams=1")
		codes = append(codes, rr.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, third should be 429", codes)
	}

	if rr := do(t, srv, http.MethodGet, "/api/dishes", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rr.Code)
	}
}

func TestHealthReportsMetrics(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, srv, http.MethodGet, "/.env", "")

	rr := do(t, srv, http.MethodGet, "/healthz", "")
	body := decode[struct {
		Metrics map[string]int64 `json:"metrics"`
	}](t, rr)
	if body.Metrics["requests_total"] != 2 || body.Metrics["suspicious_requests"] != 1 {
		t.Fatalf("metrics = %v", body.Metrics)
	}
}

func TestNewServerRejectsBadProxy(t *testing.T) {
	_, err := NewServer(":0", failingDiary{}, applog.New(applog.Config{Output: io.Discard}), Options{TrustedProxies: []string{"nope"}})
	if err == nil {
		t.Fatal("expected error for invalid trusted proxy")
	}
}

func TestRequestLogging(t *testing.T) {
	srv, buf := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/api/dishes/Pizza", "")

	id := rr.Header().Get("X-Request-ID")
	out := buf.String()
	for _, want := range []string{"request_id=" + id, "status_code=404", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}
