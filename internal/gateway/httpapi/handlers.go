package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/domain"
	"github.com/Xausdorf/votechain/internal/usecase"
)

type votingRef struct {
	Address string `json:"address"`
	Short   string `json:"short"`
}

type createRequest struct {
	Title      string   `json:"title"`
	Candidates []string `json:"candidates"`
	// Start and End take datetime-local or RFC3339 values.
	Start string `json:"start"`
	End   string `json:"end"`
}

type voteRequest struct {
	Candidate *int `json:"candidate"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, err error, fallback int) {
	status := errorStatus(err, fallback)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(err)})
}

func errorStatus(err error, fallback int) int {
	var verr *usecase.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrIdentityRequired):
		return http.StatusUnauthorized
	case errors.Is(err, usecase.ErrNotCreator):
		return http.StatusForbidden
	case errors.Is(err, usecase.ErrVotingNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrNoSuchCandidate), errors.Is(err, usecase.ErrNoSelection):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrNotEligible),
		errors.Is(err, usecase.ErrAlreadyVoted),
		errors.Is(err, usecase.ErrVotingNotActive),
		errors.Is(err, usecase.ErrVotingNotEnded),
		errors.Is(err, usecase.ErrAlreadyFinalized),
		errors.Is(err, usecase.ErrSubmissionPending):
		return http.StatusConflict
	}
	return fallback
}

// errorMessage keeps validation reasons verbatim and renders write failures the way the ballot does.
func errorMessage(err error) string {
	var verr *usecase.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return usecase.SubmissionMessage(err)
}

func refs(ids []string) []votingRef {
	out := make([]votingRef, len(ids))
	for i, id := range ids {
		out[i] = votingRef{Address: id, Short: domain.ShortAddress(id)}
	}
	return out
}

func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"instance": s.orch.Instance(),
		"sessions": s.orch.SessionCount(),
	})
}

func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.orch.AllVotings(r.Context())
	if err != nil {
		s.writeError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"votings": refs(ids)})
}

func (s *Server) HandleMine(w http.ResponseWriter, r *http.Request) {
	ids, err := s.orch.VotingsByCreator(r.Context(), s.auth.Identity(r))
	if err != nil {
		s.writeError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"votings": refs(ids)})
}

func (s *Server) HandleShow(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.Observe(r.Context(), mux.Vars(r)["id"], s.auth.Identity(r))
	if err != nil {
		s.writeError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) HandleCreate(w http.ResponseWriter, r *http.Request) {
	creator := s.auth.Identity(r)
	if creator.IsZero() {
		s.writeError(w, usecase.ErrIdentityRequired, http.StatusUnauthorized)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	start, err := domain.ParsePickerTime(req.Start, s.cfg.Location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start time"})
		return
	}
	end, err := domain.ParsePickerTime(req.End, s.cfg.Location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end time"})
		return
	}

	id, err := s.orch.CreateVoting(r.Context(), domain.VotingDraft{
		Title:          req.Title,
		CandidateNames: req.Candidates,
		Start:          start,
		End:            end,
	}, creator)
	if err != nil {
		s.writeError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, votingRef{Address: id, Short: domain.ShortAddress(id)})
}

func (s *Server) HandleVote(w http.ResponseWriter, r *http.Request) {
	voter := s.auth.Identity(r)
	if voter.IsZero() {
		s.writeError(w, usecase.ErrIdentityRequired, http.StatusUnauthorized)
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Candidate == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "candidate is required"})
		return
	}

	view, err := s.orch.Vote(r.Context(), mux.Vars(r)["id"], *req.Candidate, voter)
	if err != nil {
		s.writeError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orch.Finalize(r.Context(), id, s.auth.Identity(r)); err != nil {
		s.writeError(w, err, http.StatusBadGateway)
		return
	}
	view, err := s.orch.Observe(r.Context(), id, s.auth.Identity(r))
	if err != nil {
		s.writeError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
