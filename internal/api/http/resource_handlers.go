package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type resourceRequest struct {
	Intent string `json:"intent"`
}

func (s *Server) fileResource(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	id, err := s.sessions.FileResource(r.Context(), mustCaller(r), tenderParam(r), chi.URLParam(r, "lotId"), req.Intent)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"resource_id": id})
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) submitReasoning(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	resourceID := chi.URLParam(r, "resourceId")
	if err := s.sessions.SubmitReasoning(r.Context(), mustCaller(r), tenderParam(r), resourceID, req.Text); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"resource_id": resourceID, "status": "REASONED"})
}

func (s *Server) counterArgue(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	id, err := s.sessions.CounterArgue(r.Context(), mustCaller(r), tenderParam(r), chi.URLParam(r, "lotId"), req.Text)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"counter_argument_id": id})
}

func (s *Server) advanceResource(w http.ResponseWriter, r *http.Request) {
	tenderID := tenderParam(r)
	if err := s.sessions.AdvanceResource(r.Context(), mustCaller(r), tenderID, chi.URLParam(r, "lotId")); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondView(w, r, tenderID)
}

type decisionRequest struct {
	Outcome       string `json:"outcome"`
	Justification string `json:"justification"`
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	id, err := s.sessions.Decide(r.Context(), mustCaller(r), tenderParam(r), chi.URLParam(r, "resourceId"), req.Outcome, req.Justification)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"decision_id": id})
}
