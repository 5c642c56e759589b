package httpapi

import (
	"fmt"
	"net/http"

	"github.com/snapdog/snapdog/internal/orchestrator"
	"github.com/snapdog/snapdog/internal/result"
)

// SnapcastGroupDTO is the wire representation of a grouping.SnapcastGroup.
type SnapcastGroupDTO struct {
	ID      string   `json:"id"`
	Stream  string   `json:"stream"`
	Clients []string `json:"clients"`
}

func (s *Server) handleSnapcastStatus(w http.ResponseWriter, r *http.Request) {
	if s.snapcast == nil {
		s.respondErr(w, result.New(result.Unavailable, "snapcast is not configured"))
		return
	}
	groups, err := s.snapcast.GetServerStatus(r.Context())
	if err != nil {
		s.respondErr(w, result.Wrap(result.Unavailable, err, "snapcast status unavailable"))
		return
	}
	out := make([]SnapcastGroupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, SnapcastGroupDTO{ID: g.ID, Stream: g.Stream, Clients: g.Clients})
	}
	s.respondOK(w, out)
}

func (s *Server) handleCoverArt(w http.ResponseWriter, r *http.Request) {
	if s.cover == nil {
		s.respondErr(w, result.New(result.NotFound, "cover art is not configured"))
		return
	}
	coverID := r.PathValue("coverId")
	art, errRes := s.cover.GetCoverArt(r.Context(), coverID)
	if errRes != nil {
		s.respondErr(w, errRes)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		s.logger.Debug("failed to write cover art response", "error", err)
	}
}

// handleIcons returns the configured per-zone and per-client icon URLs,
// keyed "zone_i"/"client_i" by 1-based configuration index.
func (s *Server) handleIcons(w http.ResponseWriter, r *http.Request) {
	zones := make(map[string]string, len(s.zoneCfg))
	for i, zc := range s.zoneCfg {
		if zc.IconURL == "" {
			continue
		}
		zones[fmt.Sprintf("zone_%d", i+1)] = zc.IconURL
	}
	clients := make(map[string]string, len(s.clientCfg))
	for i, cc := range s.clientCfg {
		if cc.IconURL == "" {
			continue
		}
		clients[fmt.Sprintf("client_%d", i+1)] = cc.IconURL
	}
	s.respondOK(w, map[string]any{
		"zones":   zones,
		"clients": clients,
	})
}

func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	s.readyMu.Lock()
	state := s.readyState
	s.readyMu.Unlock()

	if state != orchestrator.StateRunning {
		s.respondErr(w, result.New(result.Unavailable, "not ready: %s", state.String()))
		return
	}
	s.respondOK(w, map[string]string{"status": "ready"})
}

// handleHealthLive always reports 200 once the process is serving
// requests at all — liveness does not depend on startup completing,
// only on the HTTP server itself being responsive.
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, map[string]string{"status": "live"})
}
