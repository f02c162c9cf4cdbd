package mutation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

func (s *Service) CreateSkill(ctx context.Context, in domain.Skill) (domain.Skill, error) {
	if err := in.Validate(); err != nil {
		return domain.Skill{}, err
	}
	saved, err := insert(ctx, s.store, domain.TableSkills, in)
	if err != nil {
		return domain.Skill{}, err
	}
	s.invalidate(domain.TableSkills)
	return saved, nil
}

func (s *Service) UpdateSkill(ctx context.Context, id string, in domain.Skill) (domain.Skill, error) {
	if err := in.Validate(); err != nil {
		return domain.Skill{}, err
	}
	saved, err := update(ctx, s.store, domain.TableSkills, id, in)
	if err != nil {
		return domain.Skill{}, err
	}
	s.invalidate(domain.TableSkills)
	return saved, nil
}

func (s *Service) DeleteSkill(ctx context.Context, id string) error {
	if err := s.remove(ctx, domain.TableSkills, id); err != nil {
		return err
	}
	s.invalidate(domain.TableSkills)
	return nil
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MoveSkill swaps a skill with its neighbour within its category. Moving
// past either end is a no-op.
func (s *Service) MoveSkill(ctx context.Context, id string, dir Direction) error {
	if dir != Up && dir != Down {
		return fmt.Errorf("%w: direction must be up or down", apperrors.ErrInvalid)
	}

	current, err := s.currentSkills(ctx)
	if err != nil {
		return err
	}
	var target *domain.Skill
	for i := range current {
		if current[i].ID == id {
			target = &current[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("skill %s: %w", id, apperrors.ErrNotFound)
	}

	var ids []string
	for _, sk := range current {
		if sk.Category == target.Category {
			ids = append(ids, sk.ID)
		}
	}
	pos := indexOf(ids, id)
	next := pos - 1
	if dir == Down {
		next = pos + 1
	}
	if next < 0 || next >= len(ids) {
		return nil
	}
	ids[pos], ids[next] = ids[next], ids[pos]

	return s.reorder(ctx, current, ids)
}

// ReorderSkills gives each listed skill the order index of its position.
// Cached skill lists show the new order at once while the rows are written
// one by one. If a write fails, the rows already written are put back, the
// cached lists revert to their previous order and the error is returned.
func (s *Service) ReorderSkills(ctx context.Context, ids []string) error {
	current, err := s.currentSkills(ctx)
	if err != nil {
		return err
	}
	return s.reorder(ctx, current, ids)
}

func (s *Service) currentSkills(ctx context.Context) ([]domain.Skill, error) {
	rows, err := s.store.Select(ctx, domain.TableSkills, store.Query{
		Order: []store.Order{store.Asc("order_index"), store.Asc("name")},
	})
	if err != nil {
		return nil, err
	}
	skills := make([]domain.Skill, 0, len(rows))
	for _, row := range rows {
		var sk domain.Skill
		if err := store.Decode(row, &sk); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalid, err)
		}
		skills = append(skills, sk)
	}
	return skills, nil
}

type indexChange struct {
	id       string
	from, to int
}

func (s *Service) reorder(ctx context.Context, current []domain.Skill, ids []string) error {
	previous := make(map[string]int, len(current))
	for _, sk := range current {
		previous[sk.ID] = sk.OrderIndex
	}

	seen := make(map[string]bool, len(ids))
	var changes []indexChange
	target := make(map[string]int, len(ids))
	for i, id := range ids {
		from, ok := previous[id]
		if !ok {
			return fmt.Errorf("skill %s: %w", id, apperrors.ErrNotFound)
		}
		if seen[id] {
			return fmt.Errorf("%w: skill %s listed twice", apperrors.ErrInvalid, id)
		}
		seen[id] = true
		target[id] = i
		if from != i {
			changes = append(changes, indexChange{id: id, from: from, to: i})
		}
	}
	if len(changes) == 0 {
		return nil
	}

	rollback := s.query.Patch(domain.TableSkills, func(_ query.Key, data any) (any, bool) {
		skills, ok := data.([]domain.Skill)
		if !ok {
			return nil, false
		}
		return applyOrder(skills, target), true
	})

	for i, ch := range changes {
		_, err := s.store.Update(ctx, domain.TableSkills, store.Row{"order_index": ch.to}, store.ByID(ch.id))
		if err == nil {
			continue
		}

		s.logger.Warn("skill reorder failed, reverting",
			zap.String("id", ch.id), zap.Int("written", i), zap.Int("total", len(changes)), zap.Error(err))
		s.restore(ctx, changes[:i])
		rollback()
		return fmt.Errorf("reorder skills: %w", err)
	}

	s.invalidate(domain.TableSkills)
	return nil
}

// restore puts written rows back to their previous index. It runs even if
// ctx was cancelled, and only logs its own failures.
func (s *Service) restore(ctx context.Context, written []indexChange) {
	ctx = context.WithoutCancel(ctx)
	for _, ch := range written {
		if _, err := s.store.Update(ctx, domain.TableSkills, store.Row{"order_index": ch.from}, store.ByID(ch.id)); err != nil {
			s.logger.Error("failed to restore skill order", zap.String("id", ch.id), zap.Error(err))
		}
	}
}

// applyOrder returns a copy of skills with the new indexes applied, sorted
// for display.
func applyOrder(skills []domain.Skill, target map[string]int) []domain.Skill {
	out := make([]domain.Skill, len(skills))
	copy(out, skills)
	for i := range out {
		if idx, ok := target[out[i].ID]; ok {
			out[i].OrderIndex = idx
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
