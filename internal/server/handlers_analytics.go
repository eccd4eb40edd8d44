package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"studio/internal/users"
)

const (
	dashboardRoute    = "/api/analytics/dashboard"
	costAnalysisRoute = "/api/cost/analysis"
)

// cached serves route from the response cache for the caller, computing and
// storing it on a miss. A payload computed across an invalidation is served
// but not stored.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, route string, compute func() (any, error)) {
	userID := callerID(r)
	generation := s.cache.Generation(userID)
	if body, ok := s.cache.Get(route, userID); ok {
		w.Header().Set("X-Cache", "HIT")
		s.writeRaw(w, http.StatusOK, body)
		return
	}
	payload, err := compute()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("encode %s: %w", route, err))
		return
	}
	body = append(body, '\n')
	s.cache.SetAt(route, userID, generation, body)
	if s.cache.Enabled() {
		w.Header().Set("X-Cache", "MISS")
	}
	s.writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, dashboardRoute, func() (any, error) {
		userID := callerID(r)
		if userID == users.DemoUserID {
			userID = ""
		}
		return s.analytics.Dashboard(r.Context(), userID)
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	usage, err := s.analytics.Usage(r.Context(), callerID(r), days)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleTopUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	top, err := s.analytics.TopUsers(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"top_users": top, "count": len(top)})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == users.DemoUserID {
		userID = ""
	}
	body, err := s.analytics.Export(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	name := "analytics_system.json"
	if userID != "" {
		name = "analytics_" + userID + ".json"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	s.writeRaw(w, http.StatusOK, body)
}
