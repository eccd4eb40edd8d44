package server

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"studio/internal/analytics"
	"studio/internal/buildinfo"
	"studio/internal/config"
)

var (
	//go:embed assets/index.html
	landingPage []byte
	//go:embed assets/docs.html
	docsPage []byte
	//go:embed assets/redoc.html
	redocPage []byte
)

const healthPingTimeout = 2 * time.Second

type healthChecks struct {
	Storage   string   `json:"storage"`
	Providers []string `json:"providers"`
}

type healthResponse struct {
	Status      string       `json:"status"`
	Timestamp   time.Time    `json:"timestamp"`
	Service     string       `json:"service"`
	Version     string       `json:"version"`
	Uptime      string       `json:"uptime"`
	Environment string       `json:"environment"`
	Checks      healthChecks `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := append(s.generator.ProviderNames(), config.ProviderTemplate)
	resp := healthResponse{
		Status:      "healthy",
		Timestamp:   s.now(),
		Service:     buildinfo.ServiceName,
		Version:     buildinfo.Version,
		Uptime:      analytics.FormatUptime(s.analytics.Uptime()),
		Environment: s.cfg.Server.Environment,
		Checks:      healthChecks{Storage: "ok", Providers: providers},
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Checks.Storage = "unavailable"
		s.logger.Warn("storage health check failed", "error", err.Error())
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeHTML(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) handleLanding(w http.ResponseWriter, _ *http.Request) {
	s.writeHTML(w, landingPage)
}

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	s.writeHTML(w, docsPage)
}

func (s *Server) handleRedoc(w http.ResponseWriter, _ *http.Request) {
	s.writeHTML(w, redocPage)
}

func (s *Server) handleOpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	s.writeRaw(w, http.StatusOK, s.openapi)
}

func (s *Server) handleOpenAPIYAML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIYAML)
}
