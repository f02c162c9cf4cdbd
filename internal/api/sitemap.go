package api

import (
	"encoding/xml"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	NS      string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod,omitempty"`
	ChangeFreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

var staticPages = []struct {
	path       string
	changeFreq string
	priority   float64
}{
	{"", "weekly", 1},
	{"/about", "monthly", 0.8},
	{"/projects", "weekly", 0.9},
	{"/contact", "monthly", 0.7},
}

// Sitemap lists the static pages and every completed project. If projects
// cannot be read the static pages are still served.
func (s *Server) Sitemap(w http.ResponseWriter, r *http.Request) {
	today := time.Now().UTC().Format(time.DateOnly)

	set := urlSet{NS: sitemapNS}
	for _, p := range staticPages {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.opts.SiteURL + p.path,
			LastMod:    today,
			ChangeFreq: p.changeFreq,
			Priority:   p.priority,
		})
	}

	res, err := s.query.Projects(r.Context(), query.ProjectFilter{Status: domain.StatusCompleted})
	if err != nil {
		s.logger.Warn("sitemap without projects", zap.Error(err))
	}
	for _, p := range res.Data {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.opts.SiteURL + "/projects/" + p.Slug,
			LastMod:    p.UpdatedAt.UTC().Format(time.DateOnly),
			ChangeFreq: "monthly",
			Priority:   0.6,
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(set); err != nil {
		s.logger.Error("failed to write sitemap", zap.Error(err))
	}
}
