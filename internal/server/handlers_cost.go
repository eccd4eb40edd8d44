package server

import (
	"net/http"

	"studio/internal/cost"
	"studio/internal/users"
)

func (s *Server) handleCostAnalysis(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, costAnalysisRoute, func() (any, error) {
		return s.cost.Analysis(r.Context(), callerID(r))
	})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req cost.OptimizeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.cost.Optimize(r.Context(), userID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.cache.Invalidate(userID, users.DemoUserID)
	s.writeJSON(w, http.StatusOK, result)
}
