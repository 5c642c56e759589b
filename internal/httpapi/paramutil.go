package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/snapdog/snapdog/internal/result"
)

// intPathParam parses the named path value as an int, writing a 404
// envelope and returning ok=false if it is missing or not numeric —
// an unparseable index can never address a real zone/client either
// way, so it is reported the same as NotFound.
func (s *Server) intPathParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.PathValue(name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		s.respondErr(w, result.New(result.NotFound, "%s %q not found", name, raw))
		return 0, false
	}
	return v, true
}

// decodeJSON decodes the request body into v, responding 400 Invalid
// on any decode failure. Returns false if the response has already
// been written.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondInvalid(w, "malformed request body: %v", err)
		return false
	}
	return true
}
