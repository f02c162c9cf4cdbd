package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/auth"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/mutation"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
)

func boolParam(q url.Values, name string) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", apperrors.ErrInvalid, name)
	}
	return b, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", apperrors.ErrInvalid, name)
	}
	return n, nil
}

func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	res, err := s.query.Profile(r.Context())
	serveRead(s, w, r, res, err)
}

func (s *Server) ListSkills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	featured, err := boolParam(q, "featured")
	if err != nil {
		s.fail(w, r, err, true)
		return
	}
	res, err := s.query.Skills(r.Context(), query.SkillFilter{
		Category:     domain.SkillCategory(q.Get("category")),
		FeaturedOnly: featured,
	})
	serveRead(s, w, r, res, err)
}

func (s *Server) ListExperience(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current, err := boolParam(q, "current")
	if err != nil {
		s.fail(w, r, err, true)
		return
	}
	res, err := s.query.Experience(r.Context(), query.ExperienceFilter{
		EmploymentType: domain.EmploymentType(q.Get("employment_type")),
		CurrentOnly:    current,
	})
	serveRead(s, w, r, res, err)
}

func (s *Server) ListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	featured, err := boolParam(q, "featured")
	if err != nil {
		s.fail(w, r, err, true)
		return
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		s.fail(w, r, err, true)
		return
	}
	res, err := s.query.Projects(r.Context(), query.ProjectFilter{
		Category:     domain.ProjectCategory(q.Get("category")),
		Status:       domain.ProjectStatus(q.Get("status")),
		FeaturedOnly: featured,
		Search:       q.Get("search"),
		Limit:        limit,
	})
	serveRead(s, w, r, res, err)
}

// GetProject serves a project with its related projects and counts the
// view. Views by the signed-in admin are not counted.
func (s *Server) GetProject(w http.ResponseWriter, r *http.Request) {
	res, err := s.query.ProjectDetail(r.Context(), r.PathValue("slug"))
	if err == nil && !s.viewerIsAdmin(r.Context()) {
		if verr := s.mutations.RecordProjectView(r.Context(), res.Data.ID); verr != nil {
			s.logger.Warn("failed to record project view",
				zap.String("project_id", res.Data.ID),
				zap.Error(verr))
		}
	}
	serveRead(s, w, r, res, err)
}

func (s *Server) viewerIsAdmin(ctx context.Context) bool {
	id, ok := auth.CurrentUser(ctx)
	return ok && s.sessions.IsAdmin(id)
}

func (s *Server) ListSocialLinks(w http.ResponseWriter, r *http.Request) {
	res, err := s.query.SocialLinks(r.Context(), query.SocialLinkFilter{})
	serveRead(s, w, r, res, err)
}

type contactResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var in mutation.ContactSubmission
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err, false)
		return
	}
	in.IPAddress = clientIP(r)
	in.UserAgent = r.UserAgent()

	m, err := s.mutations.SubmitContactMessage(r.Context(), in)
	if err != nil {
		s.fail(w, r, err, false)
		return
	}
	s.respond(w, http.StatusCreated, contactResponse{ID: m.ID, Status: "received"})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
