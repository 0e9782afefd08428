// Package http exposes the calorie diary as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kbju/internal/core"
	applog "kbju/internal/log"
	"kbju/internal/middleware/ratelimit"
	"kbju/internal/middleware/security"
	"kbju/internal/middleware/trace"
	"kbju/internal/services"
)

// Diary is the subset of the diary service the API serves.
type Diary interface {
	AddDish(ctx context.Context, d core.Dish) (core.Dish, error)
	ListDishes(ctx context.Context, query string) ([]core.Dish, error)
	GetDish(ctx context.Context, name string) (core.Dish, error)
	UpdateDish(ctx context.Context, oldName string, d core.Dish) error
	DeleteDish(ctx context.Context, name string) error
	TrackCalories(ctx context.Context, dishName string, grams float64, date string) (core.ConsumptionEntry, error)
	Day(ctx context.Context, date string) (services.DayReport, error)
	Trend(ctx context.Context, start, end string) ([]core.DayTotals, error)
	Ping(ctx context.Context) error
}

// Server wraps http.Server with the diary routes and the middleware that
// needs stopping on shutdown.
type Server struct {
	http.Server

	diary     Diary
	logger    *applog.Logger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	startedAt time.Time
	now       func() time.Time

	shutdownOnce sync.Once
}

// Options tunes the server. Zero values select defaults.
type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, diary Diary, logger *applog.Logger, opts Options) (*Server, error) {
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		diary:     diary,
		logger:    logger,
		limiter:   ratelimit.NewLimiter(rlConfig),
		detector:  detector,
		tracer:    trace.NewMiddleware(logger, detector.ExtractClientIP),
		startedAt: time.Now(),
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/dishes", s.handleListDishes)
	mux.HandleFunc("POST /api/dishes", s.handleCreateDish)
	mux.HandleFunc("GET /api/dishes/{name}", s.handleGetDish)
	mux.HandleFunc("PUT /api/dishes/{name}", s.handleUpdateDish)
	mux.HandleFunc("DELETE /api/dishes/{name}", s.handleDeleteDish)

	mux.HandleFunc("POST /api/entries", s.handleTrackCalories)
	mux.HandleFunc("GET /api/days/{date}", s.handleDay)
	mux.HandleFunc("GET /api/trend", s.handleTrend)

	s.Handler = s.chain(mux)
	return s, nil
}

// chain wraps h so that tracing runs first and rate limiting last.
func (s *Server) chain(h http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(h)
	h = s.detector.Middleware(limited)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.RequestIDMiddleware(s.logger, func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(h)
	return s.tracer.Middleware(h)
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// today returns the current date in the server's local time zone.
func (s *Server) today() string {
	return core.FormatDate(s.now())
}
