package httpapi

import (
	"net/http"

	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/zone"
)

func (s *Server) handleZoneList(w http.ResponseWriter, r *http.Request) {
	out := make([]ZoneDTO, 0, len(s.zones.Indices()))
	for _, i := range s.zones.Indices() {
		zr := s.zones.GetZone(i)
		if !zr.IsOk() {
			continue
		}
		out = append(out, zoneToDTO(zr.Value))
	}
	s.respondOK(w, out)
}

func (s *Server) handleZoneGet(w http.ResponseWriter, r *http.Request) {
	i, ok := s.intPathParam(w, r, "i")
	if !ok {
		return
	}
	zr := s.zones.GetZone(i)
	if !zr.IsOk() {
		s.respondErr(w, zr.Err)
		return
	}
	s.respondOK(w, zoneToDTO(zr.Value))
}

func (s *Server) handleZoneVolume(w http.ResponseWriter, r *http.Request) {
	i, ok := s.intPathParam(w, r, "i")
	if !ok {
		return
	}
	var body struct {
		Volume int `json:"volume"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	if err := zone.ValidateVolume(body.Volume); err != nil {
		s.respondInvalid(w, "Volume must be between 0 and 100")
		return
	}
	res := mediator.Send[domain.Zone](r.Context(), s.med, commands.SetZoneVolume{
		ZoneIndex: i,
		Volume:    body.Volume,
		Source:    mediator.SourceAPI,
	})
	if !res.IsOk() {
		s.respondErr(w, res.Err)
		return
	}
	s.respondOK(w, zoneToDTO(res.Value))
}

func (s *Server) handleZoneMute(w http.ResponseWriter, r *http.Request) {
	i, ok := s.intPathParam(w, r, "i")
	if !ok {
		return
	}
	var body struct {
		Muted bool `json:"muted"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	res := mediator.Send[domain.Zone](r.Context(), s.med, commands.SetZoneMute{
		ZoneIndex: i,
		Muted:     body.Muted,
		Source:    mediator.SourceAPI,
	})
	if !res.IsOk() {
		s.respondErr(w, res.Err)
		return
	}
	s.respondOK(w, zoneToDTO(res.Value))
}

// handleZonePlayback returns a handler bound to one playback action, so
// Mux can register /play, /pause, /stop, /next, /prev off one factory
// instead of five near-identical handler bodies.
func (s *Server) handleZonePlayback(action commands.PlaybackAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, ok := s.intPathParam(w, r, "i")
		if !ok {
			return
		}
		res := mediator.Send[domain.Zone](r.Context(), s.med, commands.ZonePlayback{
			ZoneIndex: i,
			Action:    action,
			Source:    mediator.SourceAPI,
		})
		if !res.IsOk() {
			s.respondErr(w, res.Err)
			return
		}
		s.respondOK(w, zoneToDTO(res.Value))
	}
}

func (s *Server) handleZonePlaylist(w http.ResponseWriter, r *http.Request) {
	i, ok := s.intPathParam(w, r, "i")
	if !ok {
		return
	}
	var body struct {
		Index int `json:"index"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	res := mediator.Send[domain.Zone](r.Context(), s.med, commands.SetZonePlaylist{
		ZoneIndex:     i,
		PlaylistIndex: body.Index,
		Source:        mediator.SourceAPI,
	})
	if !res.IsOk() {
		s.respondErr(w, res.Err)
		return
	}
	s.respondOK(w, zoneToDTO(res.Value))
}
