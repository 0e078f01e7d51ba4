package api

import "net/http"

func (s *Server) handleNotificationStatus(w http.ResponseWriter, _ *http.Request) {
	if s.notify == nil {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, s.notify.Stats())
}

// handleExternalMessage raises a notification for a message that arrived
// outside the messaging runtime.
func (s *Server) handleExternalMessage(w http.ResponseWriter, _ *http.Request) {
	if s.notify == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "notifications not configured")
		return
	}
	s.notify.HandleExternalMessage()
	w.WriteHeader(http.StatusAccepted)
}

// handleConsumeHint reports and clears the external-message hint.
func (s *Server) handleConsumeHint(w http.ResponseWriter, _ *http.Request) {
	pending := false
	if s.notify != nil {
		pending = s.notify.ConsumeExternalHint()
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}
