package domain

import (
	"regexp"
	"strings"
	"time"
)

type ProjectCategory string

const (
	CategoryWeb     ProjectCategory = "web"
	CategoryMobile  ProjectCategory = "mobile"
	CategoryAPI     ProjectCategory = "api"
	CategoryDesktop ProjectCategory = "desktop"
	CategoryAIML    ProjectCategory = "ai-ml"
	CategoryOther   ProjectCategory = "other"
)

func (c ProjectCategory) Valid() bool {
	switch c {
	case CategoryWeb, CategoryMobile, CategoryAPI, CategoryDesktop, CategoryAIML, CategoryOther:
		return true
	}
	return false
}

type ProjectStatus string

const (
	StatusPlanning   ProjectStatus = "planning"
	StatusInProgress ProjectStatus = "in-progress"
	StatusCompleted  ProjectStatus = "completed"
	StatusArchived   ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusPlanning, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

type ProjectType string

const (
	TypePersonal   ProjectType = "personal"
	TypeWork       ProjectType = "work"
	TypeFreelance  ProjectType = "freelance"
	TypeOpenSource ProjectType = "open-source"
)

func (t ProjectType) Valid() bool {
	switch t {
	case TypePersonal, TypeWork, TypeFreelance, TypeOpenSource:
		return true
	}
	return false
}

type Project struct {
	ID               string          `json:"id" gorm:"primaryKey;type:text"`
	Title            string          `json:"title" gorm:"not null"`
	Slug             string          `json:"slug" gorm:"not null;uniqueIndex"`
	ShortDescription string          `json:"short_description"`
	FullDescription  *string         `json:"full_description"`
	CoverImageURL    *string         `json:"cover_image_url"`
	Images           []string        `json:"images" gorm:"serializer:json"`
	Technologies     []string        `json:"technologies" gorm:"serializer:json"`
	GithubURL        *string         `json:"github_url"`
	LiveDemoURL      *string         `json:"live_demo_url"`
	Category         ProjectCategory `json:"category" gorm:"not null;index"`
	ProjectType      ProjectType     `json:"project_type" gorm:"not null;default:personal"`
	Status           ProjectStatus   `json:"status" gorm:"not null;default:planning;index"`
	Featured         bool            `json:"featured" gorm:"not null;default:false"`
	StartDate        *Date           `json:"start_date" gorm:"type:date"`
	EndDate          *Date           `json:"end_date" gorm:"type:date"`
	OrderIndex       int             `json:"order_index" gorm:"not null;default:0"`
	ViewCount        int             `json:"view_count" gorm:"not null;default:0"`
	LikesCount       int             `json:"likes_count" gorm:"not null;default:0"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Project) TableName() string { return TableProjects }

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

func (p Project) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return invalid("title is required")
	}
	if !ValidSlug(p.Slug) {
		return invalid("slug %q must be lowercase letters, digits and single dashes", p.Slug)
	}
	if !p.Category.Valid() {
		return invalid("category %q is not a project category", p.Category)
	}
	if !p.Status.Valid() {
		return invalid("status %q is not a project status", p.Status)
	}
	if !p.ProjectType.Valid() {
		return invalid("project_type %q is not a project type", p.ProjectType)
	}
	if p.ViewCount < 0 || p.LikesCount < 0 {
		return invalid("counters must not be negative")
	}
	if p.StartDate != nil && p.EndDate != nil && !p.StartDate.IsZero() && !p.EndDate.IsZero() &&
		p.EndDate.Before(p.StartDate.Time) {
		return invalid("end_date %s is before start_date %s", p.EndDate, p.StartDate)
	}
	return nil
}

func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of characters outside
// [a-z0-9] into a single dash.
func Slugify(s string) string {
	slug := nonSlugRun.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}
