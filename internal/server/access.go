package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleUpdateAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keyword       string `json:"keyword"`
		PrincipalID   string `json:"principal_id"`
		PrincipalType string `json:"principal_type"`
		State         string `json:"state"`
		UpdatedBy     string `json:"updated_by"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.UpdateAccessState(r.Context(), req.Keyword, req.PrincipalID, req.PrincipalType, req.State, req.UpdatedBy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleListAccess(w http.ResponseWriter, r *http.Request) {
	keyword := chi.URLParam(r, "keyword")
	if principal := r.URL.Query().Get("principal"); principal != "" {
		state, err := s.engine.LookupAccess(r.Context(), keyword, principal)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_state": state})
		return
	}
	listing, err := s.engine.ListAccess(r.Context(), keyword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.engine.GetAllKeywordsAggregated(r.Context(), r.URL.Query().Get("sort"), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePrincipals(w http.ResponseWriter, r *http.Request) {
	ps, err := s.engine.Principals(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"principals": ps})
}

func (s *Server) handleRegisterPrincipal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string   `json:"id"`
		Type        string   `json:"type"`
		DisplayName string   `json:"display_name"`
		Members     []string `json:"members"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.engine.RegisterPrincipal(r.Context(), req.ID, req.Type, req.DisplayName, req.Members)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
