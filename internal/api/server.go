// Package api exposes the portfolio over HTTP: cached public reads, the
// contact form, the sitemap and the admin editing surface.
package api

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/auth"
	"github.com/aTrapDeer/portfolio-backend/internal/mutation"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
)

type Deps struct {
	Query     *query.Client
	Mutations *mutation.Service
	Sessions  *auth.Sessions
	Auth      auth.Provider
}

type Options struct {
	// SiteURL is the public frontend the sitemap points at.
	SiteURL        string
	AllowedOrigins []string
}

type Server struct {
	query     *query.Client
	mutations *mutation.Service
	sessions  *auth.Sessions
	auth      auth.Provider
	opts      Options
	logger    *zap.Logger
}

func New(d Deps, opts Options, logger *zap.Logger) *Server {
	opts.SiteURL = strings.TrimRight(opts.SiteURL, "/")
	return &Server{
		query:     d.Query,
		mutations: d.Mutations,
		sessions:  d.Sessions,
		auth:      d.Auth,
		opts:      opts,
		logger:    logger.Named("api"),
	}
}

// Handler returns the routed handler wrapped in CORS and session parsing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerPublic(mux)
	s.registerAdmin(mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Cache-Stale", "X-Cache-Error"},
		AllowCredentials: true,
	})
	return c.Handler(s.sessions.Authenticate(mux))
}

func (s *Server) registerPublic(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.Health)
	mux.HandleFunc("GET /sitemap.xml", s.Sitemap)

	mux.HandleFunc("GET /api/profile", s.GetProfile)
	mux.HandleFunc("GET /api/skills", s.ListSkills)
	mux.HandleFunc("GET /api/experience", s.ListExperience)
	mux.HandleFunc("GET /api/projects", s.ListProjects)
	mux.HandleFunc("GET /api/projects/{slug}", s.GetProject)
	mux.HandleFunc("GET /api/social-links", s.ListSocialLinks)
	mux.HandleFunc("POST /api/contact", s.SubmitContact)
}

func (s *Server) registerAdmin(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/login", s.Login)
	mux.HandleFunc("POST /api/admin/logout", s.Logout)

	admin := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.sessions.RequireAdmin(h))
	}
	admin("GET /api/admin/me", s.Me)
	admin("GET /api/admin/stats", s.Stats)
	admin("PUT /api/admin/profile", s.UpdateProfile)

	admin("POST /api/admin/skills", s.CreateSkill)
	admin("POST /api/admin/skills/reorder", s.ReorderSkills)
	admin("PUT /api/admin/skills/{id}", s.UpdateSkill)
	admin("DELETE /api/admin/skills/{id}", s.DeleteSkill)
	admin("POST /api/admin/skills/{id}/move", s.MoveSkill)

	admin("POST /api/admin/experience", s.CreateExperience)
	admin("PUT /api/admin/experience/{id}", s.UpdateExperience)
	admin("DELETE /api/admin/experience/{id}", s.DeleteExperience)

	admin("POST /api/admin/projects", s.CreateProject)
	admin("PUT /api/admin/projects/{id}", s.UpdateProject)
	admin("DELETE /api/admin/projects/{id}", s.DeleteProject)

	admin("GET /api/admin/social-links", s.ListAllSocialLinks)
	admin("POST /api/admin/social-links", s.CreateSocialLink)
	admin("PUT /api/admin/social-links/{id}", s.UpdateSocialLink)
	admin("DELETE /api/admin/social-links/{id}", s.DeleteSocialLink)

	admin("GET /api/admin/messages", s.ListMessages)
	admin("POST /api/admin/messages/{id}/read", s.MarkMessageRead)
	admin("DELETE /api/admin/messages/{id}", s.DeleteMessage)
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
