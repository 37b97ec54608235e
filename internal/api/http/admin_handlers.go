package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hashicorp/raft"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

type givePrizeRequest struct {
	Target string `json:"target"`
}

func (s *Server) givePrizeGold(w http.ResponseWriter, r *http.Request) {
	var req givePrizeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	actor := actorFromContext(r.Context())
	target := identity.Identity(strings.TrimSpace(req.Target))

	ok := s.bridge.GivePrize(r.Context(), actor.Identity, target)
	s.logger.Info().Str("actor", actor.String()).Str("target", target.String()).Bool("success", ok).Msg("giveprizegold")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type raftJoinRequest struct {
	NodeID   string `json:"nodeId"`
	RaftAddr string `json:"raftAddr"`
}

type raftRemoveRequest struct {
	NodeID string `json:"nodeId"`
}

func (s *Server) raftStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"node_id":   s.raft.ID(),
		"raft_addr": s.raft.RaftAddr(),
		"state":     s.raft.State(),
		"leader":    s.raft.LeaderAddr(),
		"leader_id": s.raft.LeaderNodeID(),
		"is_leader": s.raft.IsLeader(),
		"claim":     s.raft.Snapshot(),
	})
}

func (s *Server) raftJoin(w http.ResponseWriter, r *http.Request) {
	if !s.raft.IsLeader() {
		s.notLeader(w)
		return
	}
	var req raftJoinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := s.raft.AddVoter(r.Context(), req.NodeID, req.RaftAddr); err != nil {
		if isLeadershipErr(err) {
			s.notLeader(w)
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "JOINED", "node_id": req.NodeID})
}

func (s *Server) raftRemove(w http.ResponseWriter, r *http.Request) {
	if !s.raft.IsLeader() {
		s.notLeader(w)
		return
	}
	var req raftRemoveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := s.raft.RemoveServer(r.Context(), req.NodeID); err != nil {
		if isLeadershipErr(err) {
			s.notLeader(w)
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "REMOVED", "node_id": req.NodeID})
}

func (s *Server) notLeader(w http.ResponseWriter) {
	respondJSON(w, http.StatusConflict, map[string]interface{}{
		"error":     "NOT_LEADER",
		"message":   "submit to leader",
		"leader":    s.raft.LeaderAddr(),
		"leader_id": s.raft.LeaderNodeID(),
	})
}

func isLeadershipErr(err error) bool {
	return errors.Is(err, raft.ErrNotLeader) ||
		errors.Is(err, raft.ErrLeadershipLost) ||
		errors.Is(err, raft.ErrLeadershipTransferInProgress)
}
