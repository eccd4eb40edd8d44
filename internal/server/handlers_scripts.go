package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"studio/internal/ratelimit"
	"studio/internal/scripts"
	"studio/internal/users"
)

type scriptListResponse struct {
	Scripts any `json:"scripts"`
	Count   int `json:"count"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req scripts.Request
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.allow(w, r, ratelimit.ClassScriptGeneration) {
		return
	}
	req.UserID = callerID(r)
	script, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.cache.Invalidate(req.UserID, users.DemoUserID)
	s.writeJSON(w, http.StatusOK, script)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	list, err := s.generator.List(r.Context(), callerID(r), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scriptListResponse{Scripts: list, Count: len(list)})
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	script, err := s.generator.Get(r.Context(), mux.Vars(r)["script_id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, script)
}
