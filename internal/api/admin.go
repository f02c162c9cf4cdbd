package api

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/auth"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/mutation"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string        `json:"token"`
	User  auth.Identity `json:"user"`
}

// Login checks the credentials with the store and sets the session cookie.
// Only the configured admin may sign in here.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err, false)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.fail(w, r, fmt.Errorf("%w: email and password are required", apperrors.ErrInvalid), false)
		return
	}

	id, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, apperrors.ErrUnauthorized) {
			s.fail(w, r, err, false)
			return
		}
		s.logger.Info("admin sign-in rejected", zap.String("email", req.Email))
		s.fail(w, r, auth.ErrInvalidCredentials, false)
		return
	}
	if !s.sessions.IsAdmin(id) {
		s.logger.Warn("non-admin sign-in", zap.String("email", id.Email))
		s.fail(w, r, auth.ErrInvalidCredentials, false)
		return
	}

	token, err := s.sessions.Issue(w, id)
	if err != nil {
		s.fail(w, r, err, false)
		return
	}
	s.respond(w, http.StatusOK, loginResponse{Token: token, User: id})
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.CurrentUser(r.Context())
	s.respond(w, http.StatusOK, id)
}

func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.Profile
	if err := decodeBody(w, r, &p); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.UpdateProfile(r.Context(), p)
	s.wrote(w, r, http.StatusOK, saved, err)
}

// wrote finishes a write handler.
func (s *Server) wrote(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err != nil {
		s.fail(w, r, err, false)
		return
	}
	if data == nil {
		w.WriteHeader(status)
		return
	}
	s.respond(w, status, data)
}

// Skills

func (s *Server) CreateSkill(w http.ResponseWriter, r *http.Request) {
	var in domain.Skill
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.CreateSkill(r.Context(), in)
	s.wrote(w, r, http.StatusCreated, saved, err)
}

func (s *Server) UpdateSkill(w http.ResponseWriter, r *http.Request) {
	var in domain.Skill
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.UpdateSkill(r.Context(), r.PathValue("id"), in)
	s.wrote(w, r, http.StatusOK, saved, err)
}

func (s *Server) DeleteSkill(w http.ResponseWriter, r *http.Request) {
	err := s.mutations.DeleteSkill(r.Context(), r.PathValue("id"))
	s.wrote(w, r, http.StatusNoContent, nil, err)
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) ReorderSkills(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err, false)
		return
	}
	err := s.mutations.ReorderSkills(r.Context(), req.IDs)
	s.wrote(w, r, http.StatusNoContent, nil, err)
}

func (s *Server) MoveSkill(w http.ResponseWriter, r *http.Request) {
	dir := mutation.Direction(r.URL.Query().Get("direction"))
	err := s.mutations.MoveSkill(r.Context(), r.PathValue("id"), dir)
	s.wrote(w, r, http.StatusNoContent, nil, err)
}

// Experience

func (s *Server) CreateExperience(w http.ResponseWriter, r *http.Request) {
	var in domain.Experience
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.CreateExperience(r.Context(), in)
	s.wrote(w, r, http.StatusCreated, saved, err)
}

func (s *Server) UpdateExperience(w http.ResponseWriter, r *http.Request) {
	var in domain.Experience
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.UpdateExperience(r.Context(), r.PathValue("id"), in)
	s.wrote(w, r, http.StatusOK, saved, err)
}

func (s *Server) DeleteExperience(w http.ResponseWriter, r *http.Request) {
	err := s.mutations.DeleteExperience(r.Context(), r.PathValue("id"))
	s.wrote(w, r, http.StatusNoContent, nil, err)
}

// Projects

func (s *Server) CreateProject(w http.ResponseWriter, r *http.Request) {
	var in domain.Project
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.CreateProject(r.Context(), in)
	s.wrote(w, r, http.StatusCreated, saved, err)
}

func (s *Server) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var in domain.Project
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.UpdateProject(r.Context(), r.PathValue("id"), in)
	s.wrote(w, r, http.StatusOK, saved, err)
}

func (s *Server) DeleteProject(w http.ResponseWriter, r *http.Request) {
	err := s.mutations.DeleteProject(r.Context(), r.PathValue("id"))
	s.wrote(w, r, http.StatusNoContent, nil, err)
}

// Social links

func (s *Server) ListAllSocialLinks(w http.ResponseWriter, r *http.Request) {
	res, err := s.query.SocialLinks(r.Context(), query.SocialLinkFilter{IncludeInactive: true})
	serveRead(s, w, r, res, err)
}

func (s *Server) CreateSocialLink(w http.ResponseWriter, r *http.Request) {
	var in domain.SocialLink
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.CreateSocialLink(r.Context(), in)
	s.wrote(w, r, http.StatusCreated, saved, err)
}

func (s *Server) UpdateSocialLink(w http.ResponseWriter, r *http.Request) {
	var in domain.SocialLink
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	saved, err := s.mutations.UpdateSocialLink(r.Context(), r.PathValue("id"), in)
	s.wrote(w, r, http.StatusOK, saved, err)
}

func (s *Server) DeleteSocialLink(w http.ResponseWriter, r *http.Request) {
	err := s.mutations.DeleteSocialLink(r.Context(), r.PathValue("id"))
	s.wrote(w, r, http.StatusNoContent, nil, err)
}

func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	res, err := s.query.Stats(r.Context())
	serveRead(s, w, r, res, err)
}

// Messages

// messageFilters are the inbox tabs.
var messageFilters = map[string]query.MessageFilter{
	"":       {},
	"all":    {},
	"unread": {UnreadOnly: true},
	"urgent": {Priority: domain.PriorityUrgent},
}

func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, ok := messageFilters[q.Get("filter")]
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: filter must be all, unread or urgent", apperrors.ErrInvalid), true)
		return
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		s.fail(w, r, err, true)
		return
	}
	f.Limit = limit

	res, err := s.query.Messages(r.Context(), f)
	serveRead(s, w, r, res, err)
}

func (s *Server) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	saved, err := s.mutations.MarkMessageRead(r.Context(), r.PathValue("id"))
	s.wrote(w, r, http.StatusOK, saved, err)
}

func (s *Server) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	err := s.mutations.DeleteMessage(r.Context(), r.PathValue("id"))
	s.wrote(w, r, http.StatusNoContent, nil, err)
}
