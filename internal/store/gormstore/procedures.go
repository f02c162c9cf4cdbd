package gormstore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

// Procedure is a named server-side operation run inside one transaction. It
// returns the change events to announce once the transaction commits.
type Procedure func(tx *gorm.DB, args store.Row) ([]store.Event, error)

// RegisterProcedure adds or replaces a named procedure.
func (s *Store) RegisterProcedure(name string, proc Procedure) {
	s.procedures[name] = proc
}

// incrementProjectViews adds one to a project's view count without touching
// any other column.
func incrementProjectViews(tx *gorm.DB, args store.Row) ([]store.Event, error) {
	id, _ := args["project_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: project_id is required", apperrors.ErrInvalid)
	}

	res := tx.Model(&domain.Project{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("project %s: %w", id, apperrors.ErrNotFound)
	}

	var p domain.Project
	if err := tx.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	row, err := store.Encode(p)
	if err != nil {
		return nil, err
	}
	return []store.Event{{Table: domain.TableProjects, Type: store.EventUpdate, Record: row}}, nil
}
