package http

import (
	"net/http"

	applog "kbju/internal/log"
)

// handleTrackCalories logs grams of a dish. The date defaults to today.
func (s *Server) handleTrackCalories(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		errorResponse(r.Context(), err, applog.OpTrack).Write(w)
		return
	}

	grams, err := p.Quantity("grams")
	if err != nil {
		errorResponse(r.Context(), err, applog.OpTrack).Write(w)
		return
	}

	date := p.Get("date")
	if date == "" {
		date = s.today()
	}

	entry, err := s.diary.TrackCalories(r.Context(), p.Get("dish"), grams, date)
	if err != nil {
		errorResponse(r.Context(), err, applog.OpTrack).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(entry).Write(w)
}

// handleDay returns the totals and entries of one date.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if date == "today" {
		date = s.today()
	}

	report, err := s.diary.Day(r.Context(), date)
	if err != nil {
		errorResponse(r.Context(), err, applog.OpAggregate).Write(w)
		return
	}
	NewJSONResponse().Body(report).Write(w)
}

// handleTrend returns per-day totals for ?start=&end=, both inclusive.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := s.diary.Trend(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		errorResponse(r.Context(), err, applog.OpAggregate).Write(w)
		return
	}
	NewJSONResponse().Body(days).Write(w)
}
