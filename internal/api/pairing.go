package api

import (
	"net/http"
	"time"
)

type pairingRequest struct {
	// TTLSeconds bounds the session; 0 uses the default.
	TTLSeconds int `json:"ttl_seconds"`
}

func (s *Server) handlePairingStatus(w http.ResponseWriter, r *http.Request) {
	if s.pairing == nil {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	resp := map[string]any{
		"available": true,
		"ready":     s.pairing.Ready(),
	}
	if sess, ok := s.pairing.CurrentSession(r.Context()); ok {
		resp["session"] = sess
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBeginPairing opens an operator pairing session. The station link
// and the messaging session are handed to the pairing channel until the
// session ends.
func (s *Server) handleBeginPairing(w http.ResponseWriter, r *http.Request) {
	if s.pairing == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "pairing channel not configured")
		return
	}
	var req pairingRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	if req.TTLSeconds < 0 {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "ttl_seconds must not be negative")
		return
	}
	sess, err := s.pairing.BeginSession(r.Context(), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleEndPairing(w http.ResponseWriter, r *http.Request) {
	if s.pairing == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "pairing channel not configured")
		return
	}
	if err := s.pairing.EndSession(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
