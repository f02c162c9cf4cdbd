package mutation

import (
	"context"

	"github.com/aTrapDeer/portfolio-backend/internal/domain"
)

func (s *Service) CreateExperience(ctx context.Context, in domain.Experience) (domain.Experience, error) {
	if in.EmploymentType == "" {
		in.EmploymentType = domain.FullTime
	}
	if err := in.Validate(); err != nil {
		return domain.Experience{}, err
	}
	saved, err := insert(ctx, s.store, domain.TableExperience, in)
	if err != nil {
		return domain.Experience{}, err
	}
	s.invalidate(domain.TableExperience)
	return saved, nil
}

func (s *Service) UpdateExperience(ctx context.Context, id string, in domain.Experience) (domain.Experience, error) {
	if err := in.Validate(); err != nil {
		return domain.Experience{}, err
	}
	saved, err := update(ctx, s.store, domain.TableExperience, id, in)
	if err != nil {
		return domain.Experience{}, err
	}
	s.invalidate(domain.TableExperience)
	return saved, nil
}

func (s *Service) DeleteExperience(ctx context.Context, id string) error {
	if err := s.remove(ctx, domain.TableExperience, id); err != nil {
		return err
	}
	s.invalidate(domain.TableExperience)
	return nil
}

func (s *Service) CreateSocialLink(ctx context.Context, in domain.SocialLink) (domain.SocialLink, error) {
	if err := in.Validate(); err != nil {
		return domain.SocialLink{}, err
	}
	saved, err := insert(ctx, s.store, domain.TableSocialLinks, in)
	if err != nil {
		return domain.SocialLink{}, err
	}
	s.invalidate(domain.TableSocialLinks)
	return saved, nil
}

func (s *Service) UpdateSocialLink(ctx context.Context, id string, in domain.SocialLink) (domain.SocialLink, error) {
	if err := in.Validate(); err != nil {
		return domain.SocialLink{}, err
	}
	saved, err := update(ctx, s.store, domain.TableSocialLinks, id, in)
	if err != nil {
		return domain.SocialLink{}, err
	}
	s.invalidate(domain.TableSocialLinks)
	return saved, nil
}

func (s *Service) DeleteSocialLink(ctx context.Context, id string) error {
	if err := s.remove(ctx, domain.TableSocialLinks, id); err != nil {
		return err
	}
	s.invalidate(domain.TableSocialLinks)
	return nil
}
