// Package httpapi is the HTTP and SSE boundary of the dispute session.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	appSession "github.com/canal-compras/disputa/internal/application/session"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/identity"
	"github.com/canal-compras/disputa/internal/domain/notification"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessions  *appSession.Service
	sseHub    notification.SSEHub
	verifier  *TokenVerifier
	cluster   Cluster
	joinToken string
	nodeID    string
	authority func() bool
	logger    zerolog.Logger
}

type Option func(*Server)

// WithCluster exposes the raft membership endpoints.
func WithCluster(cluster Cluster, joinToken string) Option {
	return func(s *Server) {
		s.cluster = cluster
		s.joinToken = joinToken
	}
}

// WithNode reports the node id and authority on /healthz.
func WithNode(nodeID string, authority func() bool) Option {
	return func(s *Server) {
		s.nodeID = nodeID
		s.authority = authority
	}
}

func NewServer(
	sessions *appSession.Service,
	sseHub notification.SSEHub,
	verifier *TokenVerifier,
	logger zerolog.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		sessions: sessions,
		sseHub:   sseHub,
		verifier: verifier,
		logger:   logger.With().Str("component", "http").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireIdentity)
			// Streams stay open past the request timeout.
			r.Get("/tenders/{tenderId}/stream", s.streamTender)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/cluster/join", s.clusterJoin)

			r.Group(func(r chi.Router) {
				r.Use(s.requireIdentity)

				r.Route("/tenders/{tenderId}", func(r chi.Router) {
					r.Post("/session", s.openSession)
					r.Get("/session", s.getSession)
					r.Get("/history", s.getHistory)
					r.Get("/journal", s.getJournal)

					r.Post("/dispute/start", s.startDispute)
					r.Post("/dispute/status", s.changeStatus)
					r.Post("/chat/toggle", s.toggleChat)
					r.Post("/messages", s.sendMessage)

					r.Post("/lots/{lotId}/join", s.joinLot)
					r.Get("/lots/{lotId}/ranking", s.getRanking)
					r.Post("/lots/{lotId}/bids", s.submitBid)
					r.Post("/bids/{bidId}/cancel", s.cancelBid)
					r.Post("/lots/{lotId}/participants/{supplierId}/classify", s.classify)
					r.Post("/lots/{lotId}/winner", s.declareWinner)

					r.Post("/lots/{lotId}/resources", s.fileResource)
					r.Post("/resources/{resourceId}/reasoning", s.submitReasoning)
					r.Post("/lots/{lotId}/counter-arguments", s.counterArgue)
					r.Post("/lots/{lotId}/resource-phase/advance", s.advanceResource)
					r.Post("/resources/{resourceId}/decision", s.decide)
				})

				r.Route("/cluster", func(r chi.Router) {
					r.Use(s.requireAction(identity.ActionManageCluster))
					r.Get("/status", s.clusterStatus)
					r.Post("/remove", s.clusterRemove)
				})
			})
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if s.nodeID != "" {
		out["node_id"] = s.nodeID
	}
	if s.authority != nil {
		out["authority"] = s.authority()
	}
	respondJSON(w, http.StatusOK, out)
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindAuthorization:
		return http.StatusForbidden
	case failure.KindState, failure.KindConcurrency:
		return http.StatusConflict
	case failure.KindValidation:
		return http.StatusUnprocessableEntity
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	fe, ok := failure.As(err)
	if !ok {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	status := statusFor(fe.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Warn().Err(err).Str("code", fe.Code).Str("path", r.URL.Path).Msg("request unavailable")
	}
	if fe.Kind == failure.KindTransient {
		w.Header().Set("Retry-After", "1")
	}
	body := map[string]interface{}{
		"error":   fe.Code,
		"message": fe.Message,
	}
	if len(fe.Details) > 0 {
		body["details"] = fe.Details
	}
	respondJSON(w, status, body)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeBody(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func parseInt64Query(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseIntQuery(r *http.Request, key string, def int) int {
	return int(parseInt64Query(r, key, int64(def)))
}
