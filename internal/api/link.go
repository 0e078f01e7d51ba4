package api

import (
	"context"
	"net/http"

	"github.com/mobus-dev/mobus-core/internal/store"
)

type connectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	Save     bool   `json:"save"`
}

type manualOffRequest struct {
	Off bool `json:"off"`
}

// handleLinkStatus returns the link manager snapshot.
func (s *Server) handleLinkStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.link.Status())
}

// handleLinkConnect applies a station configuration. Completion is
// reported through the link status, not this response.
func (s *Server) handleLinkConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Save {
		if req.SSID == "" {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "ssid is required to save a network")
			return
		}
		if err := s.creds.Save(r.Context(), req.SSID, req.Password); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if err := s.link.ConfigureAndConnect(req.SSID, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.link.Status())
}

// handleLinkConnectSaved walks the saved networks in the background.
func (s *Server) handleLinkConnectSaved(w http.ResponseWriter, _ *http.Request) {
	if !s.scanning.TryLock() {
		writeError(w, http.StatusConflict, ErrCodeConflict, "saved-network scan already running")
		return
	}
	s.background(func(ctx context.Context) {
		defer s.scanning.Unlock()
		if err := s.link.ConnectToAnySaved(ctx, s.candidateTimeout); err != nil {
			s.logger.Warn("connect to saved networks failed", "error", err)
		}
	})
	writeJSON(w, http.StatusAccepted, s.link.Status())
}

// handleListNetworks lists saved network names. Secrets never leave the
// device.
func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	creds, err := s.creds.LoadAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	names := make([]string, 0, len(creds))
	for _, c := range creds {
		names = append(names, c.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": names})
}

// handleSetManualOff persists the user's link switch. Turning the link back
// on triggers a saved-network scan.
func (s *Server) handleSetManualOff(w http.ResponseWriter, r *http.Request) {
	var req manualOffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	value := "0"
	if req.Off {
		value = "1"
	}
	if err := s.kv.Set(r.Context(), store.KeyManualOff, value); err != nil {
		writeServiceError(w, err)
		return
	}
	if !req.Off && s.scanning.TryLock() {
		s.background(func(ctx context.Context) {
			defer s.scanning.Unlock()
			if err := s.link.ConnectToAnySaved(ctx, s.candidateTimeout); err != nil {
				s.logger.Warn("connect to saved networks failed", "error", err)
			}
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"manual_off": req.Off})
}
