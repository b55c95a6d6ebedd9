package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	appSession "github.com/canal-compras/disputa/internal/application/session"
	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/identity"
)

func mustCaller(r *http.Request) identity.Caller {
	c, _ := callerFromContext(r.Context())
	return c
}

func tenderParam(r *http.Request) string {
	return chi.URLParam(r, "tenderId")
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.OpenSession(r.Context(), mustCaller(r), tenderParam(r))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.View(mustCaller(r), tenderParam(r))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.sessions.History(mustCaller(r), tenderParam(r))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

func (s *Server) getJournal(w http.ResponseWriter, r *http.Request) {
	afterSeq := parseInt64Query(r, "after_seq", 0)
	entries, err := s.sessions.Journal(r.Context(), mustCaller(r), tenderParam(r), afterSeq, parseIntQuery(r, "limit", 0))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	next := afterSeq
	if n := len(entries); n > 0 {
		next = entries[n-1].Seq
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":          entries,
		"next_after_seq": next,
	})
}

type startDisputeRequest struct {
	LotID            string `json:"lot_id"`
	Mode             string `json:"mode"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	StageMinutes     int    `json:"stage_minutes"`
}

func (s *Server) startDispute(w http.ResponseWriter, r *http.Request) {
	var req startDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	tenderID := tenderParam(r)
	err := s.sessions.StartDispute(r.Context(), mustCaller(r), tenderID, appSession.StartInput{
		LotID:            req.LotID,
		Mode:             req.Mode,
		TimeLimitMinutes: req.TimeLimitMinutes,
		StageMinutes:     req.StageMinutes,
	})
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondView(w, r, tenderID)
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (s *Server) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	tenderID := tenderParam(r)
	if err := s.sessions.ChangeStatus(r.Context(), mustCaller(r), tenderID, req.Status, req.Reason); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondView(w, r, tenderID)
}

type toggleRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) toggleChat(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	enabled, err := s.sessions.ToggleChat(r.Context(), mustCaller(r), tenderParam(r), req.Reason)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"chat_enabled": enabled})
}

type messageRequest struct {
	LotID       string `json:"lot_id"`
	Content     string `json:"content"`
	Private     bool   `json:"private"`
	RecipientID string `json:"recipient_id"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	msg, err := s.sessions.SendMessage(r.Context(), mustCaller(r), tenderParam(r), appSession.MessageInput{
		LotID:       req.LotID,
		Content:     req.Content,
		Private:     req.Private,
		RecipientID: req.RecipientID,
	})
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) joinLot(w http.ResponseWriter, r *http.Request) {
	tenderID := tenderParam(r)
	if err := s.sessions.JoinLot(r.Context(), mustCaller(r), tenderID, chi.URLParam(r, "lotId")); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondView(w, r, tenderID)
}

func (s *Server) getRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := s.sessions.Ranking(mustCaller(r), tenderParam(r), chi.URLParam(r, "lotId"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": ranking})
}

// amount accepts "9,95", "9.95" or a JSON number.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("value must be a decimal amount")
	}
	*a = amount(n.String())
	return nil
}

type bidRequest struct {
	Value             amount `json:"value"`
	ObservedBestBidID string `json:"observed_best_bid_id"`
}

func (s *Server) submitBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	value, err := bid.ParseMoney(string(req.Value))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "INVALID_VALUE", err.Error())
		return
	}
	b, err := s.sessions.SubmitBid(r.Context(), mustCaller(r), tenderParam(r), chi.URLParam(r, "lotId"), value, req.ObservedBestBidID)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

type cancelBidRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelBid(w http.ResponseWriter, r *http.Request) {
	var req cancelBidRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	b, err := s.sessions.CancelBid(r.Context(), mustCaller(r), tenderParam(r), chi.URLParam(r, "bidId"), req.Reason)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

type classifyRequest struct {
	Status        string `json:"status"`
	Justification string `json:"justification"`
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	tenderID := tenderParam(r)
	err := s.sessions.Classify(r.Context(), mustCaller(r), tenderID, chi.URLParam(r, "lotId"), chi.URLParam(r, "supplierId"), req.Status, req.Justification)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondView(w, r, tenderID)
}

type winnerRequest struct {
	SupplierID string `json:"supplier_id"`
}

func (s *Server) declareWinner(w http.ResponseWriter, r *http.Request) {
	var req winnerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	tenderID := tenderParam(r)
	if err := s.sessions.DeclareWinner(r.Context(), mustCaller(r), tenderID, chi.URLParam(r, "lotId"), req.SupplierID); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondView(w, r, tenderID)
}

// respondView answers a write with the caller's view of the session.
func (s *Server) respondView(w http.ResponseWriter, r *http.Request, tenderID string) {
	view, err := s.sessions.View(mustCaller(r), tenderID)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
