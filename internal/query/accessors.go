package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

// Result is a typed read. Err carries the failure of the latest refresh
// when Data is the last good value.
type Result[T any] struct {
	Data      T
	Stale     bool
	Err       error
	FetchedAt time.Time
}

func read[T any](ctx context.Context, c *Client, key Key, fetch func(context.Context, store.Store) (T, error)) (Result[T], error) {
	snap, err := c.Fetch(ctx, key, func(ctx context.Context, s store.Store) (any, error) {
		return fetch(ctx, s)
	})
	if err != nil {
		return Result[T]{}, err
	}
	data, _ := snap.Data.(T)
	return Result[T]{Data: data, Stale: snap.Stale, Err: snap.Err, FetchedAt: snap.FetchedAt}, nil
}

func invalidFilter(name, value string) error {
	return fmt.Errorf("%w: unsupported %s filter %q", apperrors.ErrInvalid, name, value)
}

type validator interface {
	Validate() error
}

// decodeRows converts rows into T. Rows that fail to decode or validate are
// dropped and logged rather than failing the whole read.
func decodeRows[T validator](logger *zap.Logger, table string, rows []store.Row) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := store.Decode(row, &v); err != nil {
			logger.Warn("dropping undecodable row", zap.String("table", table), zap.String("id", row.ID()), zap.Error(err))
			continue
		}
		if err := v.Validate(); err != nil {
			logger.Warn("dropping invalid row", zap.String("table", table), zap.String("id", row.ID()), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// Profile reads the singleton profile row.
func (c *Client) Profile(ctx context.Context) (Result[domain.Profile], error) {
	return read(ctx, c, ProfileKey(), func(ctx context.Context, s store.Store) (domain.Profile, error) {
		row, err := s.Singleton(ctx, domain.TableProfile)
		if err != nil {
			return domain.Profile{}, err
		}
		var p domain.Profile
		if err := store.Decode(row, &p); err != nil {
			return domain.Profile{}, fmt.Errorf("%w: %v", apperrors.ErrInvalid, err)
		}
		if err := p.Validate(); err != nil {
			c.logger.Warn("stored profile is invalid", zap.Error(err))
			return domain.Profile{}, err
		}
		return p, nil
	})
}

func (c *Client) Skills(ctx context.Context, f SkillFilter) (Result[[]domain.Skill], error) {
	if err := f.Validate(); err != nil {
		return Result[[]domain.Skill]{}, err
	}
	return read(ctx, c, f.Key(), func(ctx context.Context, s store.Store) ([]domain.Skill, error) {
		q := store.Query{Order: []store.Order{store.Asc("order_index"), store.Asc("name")}}
		if f.Category != "" {
			q.Filters = append(q.Filters, store.Eq("category", string(f.Category)))
		}
		if f.FeaturedOnly {
			q.Filters = append(q.Filters, store.Eq("is_featured", true))
		}
		rows, err := s.Select(ctx, domain.TableSkills, q)
		if err != nil {
			return nil, err
		}
		return decodeRows[domain.Skill](c.logger, domain.TableSkills, rows), nil
	})
}

// Experience reads work history, newest first. Derived fields are computed
// against the current time on every call, cached or not.
func (c *Client) Experience(ctx context.Context, f ExperienceFilter) (Result[[]domain.ExperienceView], error) {
	if err := f.Validate(); err != nil {
		return Result[[]domain.ExperienceView]{}, err
	}
	raw, err := read(ctx, c, f.Key(), func(ctx context.Context, s store.Store) ([]domain.Experience, error) {
		q := store.Query{Order: []store.Order{store.Desc("start_date"), store.Asc("order_index")}}
		if f.EmploymentType != "" {
			q.Filters = append(q.Filters, store.Eq("employment_type", string(f.EmploymentType)))
		}
		if f.CurrentOnly {
			q.Filters = append(q.Filters, store.IsNull("end_date"))
		}
		rows, err := s.Select(ctx, domain.TableExperience, q)
		if err != nil {
			return nil, err
		}
		return decodeRows[domain.Experience](c.logger, domain.TableExperience, rows), nil
	})
	if err != nil {
		return Result[[]domain.ExperienceView]{}, err
	}

	now := c.now()
	views := make([]domain.ExperienceView, len(raw.Data))
	for i, e := range raw.Data {
		views[i] = domain.NewExperienceView(e, now)
	}
	return Result[[]domain.ExperienceView]{Data: views, Stale: raw.Stale, Err: raw.Err, FetchedAt: raw.FetchedAt}, nil
}

func (c *Client) Projects(ctx context.Context, f ProjectFilter) (Result[[]domain.Project], error) {
	if err := f.Validate(); err != nil {
		return Result[[]domain.Project]{}, err
	}
	f = f.normalized()
	return read(ctx, c, f.Key(), func(ctx context.Context, s store.Store) ([]domain.Project, error) {
		q := store.Query{
			Order: []store.Order{store.Asc("order_index"), store.Desc("created_at")},
			Limit: f.Limit,
		}
		if f.Category != "" {
			q.Filters = append(q.Filters, store.Eq("category", string(f.Category)))
		}
		if f.Status != "" {
			q.Filters = append(q.Filters, store.Eq("status", string(f.Status)))
		}
		if f.FeaturedOnly {
			q.Filters = append(q.Filters, store.Eq("featured", true))
		}
		if f.Search != "" {
			q.Filters = append(q.Filters, store.Search(f.Search, "title", "short_description"))
		}
		rows, err := s.Select(ctx, domain.TableProjects, q)
		if err != nil {
			return nil, err
		}
		return decodeRows[domain.Project](c.logger, domain.TableProjects, rows), nil
	})
}

// ProjectBySlug looks the project up in the unfiltered projects list, so
// detail pages share that entry's freshness.
func (c *Client) ProjectBySlug(ctx context.Context, slug string) (Result[domain.Project], error) {
	d, err := c.ProjectDetail(ctx, slug)
	if err != nil {
		return Result[domain.Project]{}, err
	}
	return Result[domain.Project]{Data: d.Data.Project, Stale: d.Stale, Err: d.Err, FetchedAt: d.FetchedAt}, nil
}

const maxRelated = 3

// ProjectDetail is a project with up to three others of the same category.
type ProjectDetail struct {
	domain.Project
	Related []domain.Project `json:"related"`
}

func (c *Client) ProjectDetail(ctx context.Context, slug string) (Result[ProjectDetail], error) {
	all, err := c.Projects(ctx, ProjectFilter{})
	if err != nil {
		return Result[ProjectDetail]{}, err
	}
	for _, p := range all.Data {
		if p.Slug != slug {
			continue
		}
		d := ProjectDetail{Project: p, Related: make([]domain.Project, 0, maxRelated)}
		for _, other := range all.Data {
			if len(d.Related) == maxRelated {
				break
			}
			if other.Category == p.Category && other.ID != p.ID {
				d.Related = append(d.Related, other)
			}
		}
		return Result[ProjectDetail]{Data: d, Stale: all.Stale, Err: all.Err, FetchedAt: all.FetchedAt}, nil
	}
	return Result[ProjectDetail]{}, fmt.Errorf("project %q: %w", slug, apperrors.ErrNotFound)
}

// SocialLinks reads active links unless the filter asks for all of them.
func (c *Client) SocialLinks(ctx context.Context, f SocialLinkFilter) (Result[[]domain.SocialLink], error) {
	return read(ctx, c, f.Key(), func(ctx context.Context, s store.Store) ([]domain.SocialLink, error) {
		q := store.Query{Order: []store.Order{store.Asc("order_index")}}
		if !f.IncludeInactive {
			q.Filters = append(q.Filters, store.Eq("is_active", true))
		}
		rows, err := s.Select(ctx, domain.TableSocialLinks, q)
		if err != nil {
			return nil, err
		}
		return decodeRows[domain.SocialLink](c.logger, domain.TableSocialLinks, rows), nil
	})
}

// Messages reads the contact inbox, newest first.
func (c *Client) Messages(ctx context.Context, f MessageFilter) (Result[[]domain.ContactMessage], error) {
	if err := f.Validate(); err != nil {
		return Result[[]domain.ContactMessage]{}, err
	}
	return read(ctx, c, f.Key(), func(ctx context.Context, s store.Store) ([]domain.ContactMessage, error) {
		q := store.Query{Order: []store.Order{store.Desc("created_at")}, Limit: f.Limit}
		if f.UnreadOnly {
			q.Filters = append(q.Filters, store.Eq("is_read", false))
		}
		if f.Priority != "" {
			q.Filters = append(q.Filters, store.Eq("priority", string(f.Priority)))
		}
		rows, err := s.Select(ctx, domain.TableContactMessages, q)
		if err != nil {
			return nil, err
		}
		return decodeRows[domain.ContactMessage](c.logger, domain.TableContactMessages, rows), nil
	})
}
