package http

import (
	"context"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check and reports request counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	requests := s.tracer.GetMetrics()
	limits := s.limiter.GetMetrics()
	detections := s.detector.GetMetrics()

	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"metrics": map[string]int64{
			"requests_total":      requests.TotalRequests,
			"server_errors":       requests.ServerErrors,
			"rate_limited":        limits.TotalHits,
			"rate_limit_clients":  limits.ClientCount,
			"suspicious_requests": detections.SuspiciousRequests,
		},
	}).Write(w)
}

// handleReady reports whether the diary store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"storage": "ok"}
	status, code := "ready", http.StatusOK
	if err := s.diary.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", "error", err)
		checks["storage"] = "unavailable"
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status": status,
		"checks": checks,
	}).Write(w)
}
