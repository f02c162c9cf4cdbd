package query

import (
	"context"

	"github.com/aTrapDeer/portfolio-backend/internal/domain"
)

const recentMessages = 5

// Stats summarizes the portfolio for the admin dashboard.
type Stats struct {
	TotalProjects     int `json:"total_projects"`
	FeaturedProjects  int `json:"featured_projects"`
	CompletedProjects int `json:"completed_projects"`

	TotalMessages  int `json:"total_messages"`
	UnreadMessages int `json:"unread_messages"`
	UrgentMessages int `json:"urgent_messages"`

	TotalSkills     int `json:"total_skills"`
	TotalExperience int `json:"total_experience"`

	RecentMessages []domain.ContactMessage `json:"recent_messages"`
}

// Stats is built from the unfiltered project, message, skill and experience
// lists. The result is stale if any of them is, and carries the first
// refresh error among them.
func (c *Client) Stats(ctx context.Context) (Result[Stats], error) {
	var out Result[Stats]
	note := func(stale bool, err error) {
		out.Stale = out.Stale || stale
		if out.Err == nil {
			out.Err = err
		}
	}

	projects, err := c.Projects(ctx, ProjectFilter{})
	if err != nil {
		return Result[Stats]{}, err
	}
	note(projects.Stale, projects.Err)
	out.FetchedAt = projects.FetchedAt
	for _, p := range projects.Data {
		if p.Featured {
			out.Data.FeaturedProjects++
		}
		if p.Status == domain.StatusCompleted {
			out.Data.CompletedProjects++
		}
	}
	out.Data.TotalProjects = len(projects.Data)

	messages, err := c.Messages(ctx, MessageFilter{})
	if err != nil {
		return Result[Stats]{}, err
	}
	note(messages.Stale, messages.Err)
	for _, m := range messages.Data {
		if !m.IsRead {
			out.Data.UnreadMessages++
		}
		if m.Priority == domain.PriorityUrgent {
			out.Data.UrgentMessages++
		}
	}
	out.Data.TotalMessages = len(messages.Data)
	recent := messages.Data[:min(recentMessages, len(messages.Data))]
	out.Data.RecentMessages = append(make([]domain.ContactMessage, 0, len(recent)), recent...)

	skills, err := c.Skills(ctx, SkillFilter{})
	if err != nil {
		return Result[Stats]{}, err
	}
	note(skills.Stale, skills.Err)
	out.Data.TotalSkills = len(skills.Data)

	experience, err := c.Experience(ctx, ExperienceFilter{})
	if err != nil {
		return Result[Stats]{}, err
	}
	note(experience.Stale, experience.Err)
	out.Data.TotalExperience = len(experience.Data)

	return out, nil
}
