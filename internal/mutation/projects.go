package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

// ErrSlugTaken is returned when another project already uses the slug.
var ErrSlugTaken = fmt.Errorf("%w: slug is already taken", apperrors.ErrConflict)

// Counters are owned by the view procedure and never written by admins.
var projectCounters = []string{"view_count", "likes_count"}

func (s *Service) CreateProject(ctx context.Context, in domain.Project) (domain.Project, error) {
	in = withProjectDefaults(in)
	if err := in.Validate(); err != nil {
		return domain.Project{}, err
	}
	if err := s.checkSlug(ctx, in.Slug, ""); err != nil {
		return domain.Project{}, err
	}

	saved, err := insert(ctx, s.store, domain.TableProjects, in, projectCounters...)
	if err != nil {
		return domain.Project{}, slugError(in.Slug, err)
	}
	s.invalidate(domain.TableProjects)
	return saved, nil
}

func (s *Service) UpdateProject(ctx context.Context, id string, in domain.Project) (domain.Project, error) {
	in = withProjectDefaults(in)
	if err := in.Validate(); err != nil {
		return domain.Project{}, err
	}
	if err := s.checkSlug(ctx, in.Slug, id); err != nil {
		return domain.Project{}, err
	}

	saved, err := update(ctx, s.store, domain.TableProjects, id, in, projectCounters...)
	if err != nil {
		return domain.Project{}, slugError(in.Slug, err)
	}
	s.invalidate(domain.TableProjects)
	return saved, nil
}

func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.remove(ctx, domain.TableProjects, id); err != nil {
		return err
	}
	s.invalidate(domain.TableProjects)
	return nil
}

// RecordProjectView bumps the view counter. The cache is left alone: the
// counter is not worth a refetch, and the change feed reports it anyway.
func (s *Service) RecordProjectView(ctx context.Context, id string) error {
	return s.store.Call(ctx, "increment_project_views", store.Row{"project_id": id})
}

func withProjectDefaults(p domain.Project) domain.Project {
	if p.Slug == "" {
		p.Slug = domain.Slugify(p.Title)
	}
	if p.Status == "" {
		p.Status = domain.StatusPlanning
	}
	if p.ProjectType == "" {
		p.ProjectType = domain.TypePersonal
	}
	return p
}

// checkSlug fails fast when another project holds slug. The store's unique
// index remains the authority: two writers can both pass this check.
func (s *Service) checkSlug(ctx context.Context, slug, selfID string) error {
	q := store.Query{Filters: []store.Filter{store.Eq("slug", slug)}, Limit: 1}
	if selfID != "" {
		q.Filters = append(q.Filters, store.Neq("id", selfID))
	}
	rows, err := s.store.Select(ctx, domain.TableProjects, q)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return fmt.Errorf("project slug %q: %w", slug, ErrSlugTaken)
	}
	return nil
}

func slugError(slug string, err error) error {
	if errors.Is(err, apperrors.ErrConflict) {
		return fmt.Errorf("project slug %q: %w", slug, ErrSlugTaken)
	}
	return err
}
