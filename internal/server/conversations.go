package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lazypower/resonance/internal/model"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []model.Message `json:"messages"`
		Force    bool            `json:"force"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.AnalyzeConversation(r.Context(), chi.URLParam(r, "conversationID"), req.Messages, req.Force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.engine.Subjects(r.Context(), chi.URLParam(r, "conversationID"), queryBool(r, "archived"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subjects": subjects})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	history := queryBool(r, "history")
	latest, all, err := s.engine.Summary(r.Context(), chi.URLParam(r, "conversationID"), history)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{"summary": latest}
	if history {
		body["history"] = all
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleResonance(w http.ResponseWriter, r *http.Request) {
	hint, err := s.engine.Resonance(r.Context(), chi.URLParam(r, "conversationID"), r.URL.Query().Get("message"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hint": hint,
		"text": hint.String(),
	})
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.URL.Query().Get("subjects"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.GetProposals(r.Context(), chi.URLParam(r, "conversationID"), ids, queryBool(r, "refresh"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PastSubjectID uuid.UUID `json:"past_subject_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PastSubjectID == uuid.Nil {
		s.writeError(w, r, fmt.Errorf("%w: past_subject_id required", model.ErrValidation))
		return
	}
	if err := s.engine.DismissProposal(chi.URLParam(r, "conversationID"), req.PastSubjectID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To string `json:"to"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.engine.SwitchConversation(chi.URLParam(r, "conversationID"), req.To)
	writeJSON(w, http.StatusOK, map[string]string{"status": "switched"})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		A uuid.UUID `json:"a"`
		B uuid.UUID `json:"b"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	merged, err := s.engine.MergeSubjects(r.Context(), req.A, req.B)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": merged})
}

func (s *Server) handleGetProposalConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.ProposalConfig(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutProposalConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.ProposalConfig
	if err := decode(r, &cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.engine.UpdateProposalConfig(r.Context(), cfg.OwnerID, cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// parseIDs reads a comma-separated subject id list.
func parseIDs(raw string) ([]uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: subject id %q", model.ErrValidation, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
