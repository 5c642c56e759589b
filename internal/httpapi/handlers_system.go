package httpapi

import (
	"net/http"
	"strconv"

	"github.com/snapdog/snapdog/internal/buildinfo"
)

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	s.readyMu.Lock()
	state := s.readyState
	s.readyMu.Unlock()

	out := map[string]any{
		"state":   state.String(),
		"running": state.String() == "Running",
	}
	if s.services != nil {
		out["services"] = s.services.Status()
	}
	s.respondOK(w, out)
}

func (s *Server) handleSystemVersion(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, buildinfo.RuntimeInfo())
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, s.stats.Snapshot())
}

func (s *Server) handleSystemErrors(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondInvalid(w, "invalid limit %q", raw)
			return
		}
		limit = n
	}
	s.respondOK(w, s.errorLog.Last(limit))
}
