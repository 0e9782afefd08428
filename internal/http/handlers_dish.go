package http

import (
	"net/http"

	"kbju/internal/core"
	applog "kbju/internal/log"
)

// handleListDishes lists every dish, or those whose name contains ?q=.
func (s *Server) handleListDishes(w http.ResponseWriter, r *http.Request) {
	dishes, err := s.diary.ListDishes(r.Context(), sanitizeInput(r.URL.Query().Get("q")))
	if err != nil {
		errorResponse(r.Context(), err, applog.OpList).Write(w)
		return
	}
	NewJSONResponse().Body(dishes).Write(w)
}

func (s *Server) handleCreateDish(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		errorResponse(r.Context(), err, applog.OpCreate).Write(w)
		return
	}

	d, err := parseDish(p, p.Get("name"))
	if err != nil {
		errorResponse(r.Context(), err, applog.OpCreate).Write(w)
		return
	}

	created, err := s.diary.AddDish(r.Context(), d)
	if err != nil {
		errorResponse(r.Context(), err, applog.OpCreate).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(created).Write(w)
}

func (s *Server) handleGetDish(w http.ResponseWriter, r *http.Request) {
	d, err := s.diary.GetDish(r.Context(), r.PathValue("name"))
	if err != nil {
		errorResponse(r.Context(), err, applog.OpRead).Write(w)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

// handleUpdateDish replaces a dish's macros and optionally renames it. The
// name field defaults to the name in the path.
func (s *Server) handleUpdateDish(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		errorResponse(r.Context(), err, applog.OpUpdate).Write(w)
		return
	}

	oldName := r.PathValue("name")
	newName := oldName
	if p.Has("name") {
		newName = p.Get("name")
	}

	d, err := parseDish(p, newName)
	if err != nil {
		errorResponse(r.Context(), err, applog.OpUpdate).Write(w)
		return
	}

	if err := s.diary.UpdateDish(r.Context(), oldName, d); err != nil {
		errorResponse(r.Context(), err, applog.OpUpdate).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDeleteDish(w http.ResponseWriter, r *http.Request) {
	if err := s.diary.DeleteDish(r.Context(), r.PathValue("name")); err != nil {
		errorResponse(r.Context(), err, applog.OpDelete).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// parseDish reads the four per-100g macros. All of them are required.
func parseDish(p *RequestBodyParser, name string) (core.Dish, error) {
	d := core.Dish{Name: name}
	fields := []struct {
		key string
		dst *float64
	}{
		{"kcal", &d.Kcal},
		{"proteins", &d.Proteins},
		{"fats", &d.Fats},
		{"carbs", &d.Carbs},
	}
	for _, f := range fields {
		v, err := p.Quantity(f.key)
		if err != nil {
			return core.Dish{}, err
		}
		*f.dst = v
	}
	return d, nil
}
