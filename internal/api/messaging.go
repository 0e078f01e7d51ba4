package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mobus-dev/mobus-core/internal/store"
)

type principalRequest struct {
	PrincipalID string `json:"principal_id"`
}

type publishRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     *int   `json:"qos,omitempty"`
	Retain  bool   `json:"retain"`
}

type listenerRequest struct {
	Topic string `json:"topic"`
}

type payloadResponse struct {
	Payload string `json:"payload"`
}

// defaultPublishQoS applies when a publish request names none.
const defaultPublishQoS = 1

func (s *Server) handleMessagingStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.msg.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.msg.Pause()
	writeJSON(w, http.StatusOK, s.msg.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	if err := s.msg.Resume(); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.msg.Status())
}

// handleSetPrincipal switches the primary topic and persists the principal
// for the next boot.
func (s *Server) handleSetPrincipal(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.msg.UpdatePrincipal(req.PrincipalID); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.kv.Set(r.Context(), store.KeyPrincipalID, req.PrincipalID); err != nil {
		s.logger.Warn("persisting principal failed", "error", err)
	}
	writeJSON(w, http.StatusOK, s.msg.Status())
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "topic is required")
		return
	}
	qos := defaultPublishQoS
	if req.QoS != nil {
		qos = *req.QoS
	}
	if qos < 0 || qos > 2 {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "qos must be 0, 1 or 2")
		return
	}
	if err := s.msg.Publish(req.Topic, []byte(req.Payload), byte(qos), req.Retain); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handlePopPrimary dequeues one primary payload; 204 means empty.
func (s *Server) handlePopPrimary(w http.ResponseWriter, _ *http.Request) {
	payload, ok := s.msg.PopPrimary()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, payloadResponse{Payload: payload})
}

func (s *Server) handleListListeners(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"listeners": s.msg.Listeners()})
}

func (s *Server) handleAddListener(w http.ResponseWriter, r *http.Request) {
	var req listenerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	id, err := s.msg.AddListener(req.Topic)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "topic": req.Topic})
}

// handleRemoveListener is idempotent: unknown ids also answer 204.
func (s *Server) handleRemoveListener(w http.ResponseWriter, r *http.Request) {
	id, ok := listenerID(w, r)
	if !ok {
		return
	}
	s.msg.RemoveListener(id)
	w.WriteHeader(http.StatusNoContent)
}

// handlePopListener dequeues one listener payload; 204 means empty.
func (s *Server) handlePopListener(w http.ResponseWriter, r *http.Request) {
	id, ok := listenerID(w, r)
	if !ok {
		return
	}
	if !s.hasListener(id) {
		writeNotFound(w, "listener not found")
		return
	}
	payload, ok := s.msg.PopListener(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, payloadResponse{Payload: payload})
}

func (s *Server) hasListener(id int) bool {
	for _, l := range s.msg.Listeners() {
		if l.ID == id {
			return true
		}
	}
	return false
}

func listenerID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeBadRequest(w, "listener id must be a positive integer")
		return 0, false
	}
	return id, true
}
