package mutation

import (
	"context"

	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
)

// UpdateProfile replaces the singleton profile row. With no id the existing
// row is looked up first.
func (s *Service) UpdateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	if p.AvailabilityStatus == "" {
		p.AvailabilityStatus = domain.Available
	}
	if err := p.Validate(); err != nil {
		return domain.Profile{}, err
	}

	id := p.ID
	if id == "" {
		row, err := s.store.Singleton(ctx, domain.TableProfile)
		if err != nil {
			return domain.Profile{}, err
		}
		id = row.ID()
	}

	saved, err := update(ctx, s.store, domain.TableProfile, id, p)
	if err != nil {
		return domain.Profile{}, err
	}

	s.query.Merge(domain.TableProfile, func(query.Key, any) (any, bool) {
		return saved, true
	})
	return saved, nil
}
