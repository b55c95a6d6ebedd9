package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/canal-compras/disputa/internal/dispute/consensus"
	"github.com/canal-compras/disputa/internal/domain/failure"
)

// ClusterTokenHeader authenticates node-to-node join requests.
const ClusterTokenHeader = "X-Cluster-Token"

// Cluster is the raft membership surface of a node.
type Cluster interface {
	Status() consensus.Status
	IsLeader() bool
	LeaderAddr() string
	LeaderNodeID() string
	AddVoter(ctx context.Context, nodeID, raftAddr string) error
	RemoveServer(ctx context.Context, nodeID string) error
}

var errNoCluster = failure.NotFound("CLUSTER_DISABLED", "node is running without replication")

func (s *Server) clusterStatus(w http.ResponseWriter, r *http.Request) {
	if s.cluster == nil {
		s.respondFailure(w, r, errNoCluster)
		return
	}
	respondJSON(w, http.StatusOK, s.cluster.Status())
}

type clusterJoinRequest struct {
	NodeID   string `json:"node_id"`
	RaftAddr string `json:"raft_addr"`
}

func (s *Server) clusterJoin(w http.ResponseWriter, r *http.Request) {
	if s.cluster == nil {
		s.respondFailure(w, r, errNoCluster)
		return
	}
	token := r.Header.Get(ClusterTokenHeader)
	if s.joinToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.joinToken)) != 1 {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid cluster token")
		return
	}
	if !s.cluster.IsLeader() {
		s.respondNotLeader(w)
		return
	}
	var req clusterJoinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if strings.TrimSpace(req.NodeID) == "" || strings.TrimSpace(req.RaftAddr) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "node_id and raft_addr are required")
		return
	}
	if err := s.cluster.AddVoter(r.Context(), req.NodeID, req.RaftAddr); err != nil {
		if isNotLeader(err) {
			s.respondNotLeader(w)
			return
		}
		respondError(w, http.StatusBadRequest, "JOIN_FAILED", err.Error())
		return
	}
	s.logger.Info().Str("node_id", req.NodeID).Str("raft_addr", req.RaftAddr).Msg("node joined cluster")
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

type clusterRemoveRequest struct {
	NodeID string `json:"node_id"`
}

func (s *Server) clusterRemove(w http.ResponseWriter, r *http.Request) {
	if s.cluster == nil {
		s.respondFailure(w, r, errNoCluster)
		return
	}
	if !s.cluster.IsLeader() {
		s.respondNotLeader(w)
		return
	}
	var req clusterRemoveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.cluster.RemoveServer(r.Context(), req.NodeID); err != nil {
		if isNotLeader(err) {
			s.respondNotLeader(w)
			return
		}
		respondError(w, http.StatusBadRequest, "REMOVE_FAILED", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) respondNotLeader(w http.ResponseWriter) {
	respondJSON(w, http.StatusConflict, map[string]any{
		"error":     "NOT_LEADER",
		"message":   "submit to leader",
		"leader":    s.cluster.LeaderAddr(),
		"leader_id": s.cluster.LeaderNodeID(),
	})
}

func isNotLeader(err error) bool {
	return errors.Is(err, &failure.Error{Kind: failure.KindTransient, Code: "NOT_LEADER"})
}
