package httpapi

import (
	"net/http"

	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/zone"
)

func (s *Server) handleClientList(w http.ResponseWriter, r *http.Request) {
	out := make([]ClientDTO, 0, len(s.clients.Indices()))
	for _, i := range s.clients.Indices() {
		cr := s.clients.GetClient(i)
		if !cr.IsOk() {
			continue
		}
		out = append(out, clientToDTO(cr.Value))
	}
	s.respondOK(w, out)
}

func (s *Server) handleClientGet(w http.ResponseWriter, r *http.Request) {
	i, ok := s.intPathParam(w, r, "i")
	if !ok {
		return
	}
	cr := s.clients.GetClient(i)
	if !cr.IsOk() {
		s.respondErr(w, cr.Err)
		return
	}
	s.respondOK(w, clientToDTO(cr.Value))
}

func (s *Server) handleClientVolume(w http.ResponseWriter, r *http.Request) {
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
	res := mediator.Send[domain.Client](r.Context(), s.med, commands.SetClientVolume{
		ClientIndex: i,
		Volume:      body.Volume,
		Source:      mediator.SourceAPI,
	})
	if !res.IsOk() {
		s.respondErr(w, res.Err)
		return
	}
	s.respondOK(w, clientToDTO(res.Value))
}

func (s *Server) handleClientMute(w http.ResponseWriter, r *http.Request) {
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
	res := mediator.Send[domain.Client](r.Context(), s.med, commands.SetClientMute{
		ClientIndex: i,
		Muted:       body.Muted,
		Source:      mediator.SourceAPI,
	})
	if !res.IsOk() {
		s.respondErr(w, res.Err)
		return
	}
	s.respondOK(w, clientToDTO(res.Value))
}

func (s *Server) handleClientZone(w http.ResponseWriter, r *http.Request) {
	i, ok := s.intPathParam(w, r, "i")
	if !ok {
		return
	}
	var body struct {
		ZoneIndex int `json:"zoneIndex"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	res := mediator.Send[domain.Client](r.Context(), s.med, commands.SetClientZoneAssignment{
		ClientIndex: i,
		ZoneIndex:   body.ZoneIndex,
		Source:      mediator.SourceAPI,
	})
	if !res.IsOk() {
		s.respondErr(w, res.Err)
		return
	}
	s.respondOK(w, clientToDTO(res.Value))
}
