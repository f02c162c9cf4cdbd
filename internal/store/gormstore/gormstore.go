// Package gormstore implements store.Store on a gorm database, by default a
// local sqlite file. Confirmed writes are announced on a change feed.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/feed"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

var models = map[string]any{
	domain.TableProfile:         domain.Profile{},
	domain.TableSkills:          domain.Skill{},
	domain.TableExperience:      domain.Experience{},
	domain.TableProjects:        domain.Project{},
	domain.TableSocialLinks:     domain.SocialLink{},
	domain.TableContactMessages: domain.ContactMessage{},
}

// Store is a store.Store backed by gorm.
type Store struct {
	db         *gorm.DB
	feed       feed.Feed
	logger     *zap.Logger
	procedures map[string]Procedure
}

// Open connects to the sqlite database at path and migrates the schema.
func Open(path string, f feed.Feed, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// sqlite allows one writer; a single connection also keeps an in-memory
	// database alive for the lifetime of the store.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return New(db, f, logger)
}

// New wraps an open gorm connection. f may be nil, in which case writes are
// not announced and Subscribe fails.
func New(db *gorm.DB, f feed.Feed, logger *zap.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		feed:   f,
		logger: logger.Named("gormstore"),
		procedures: map[string]Procedure{
			"increment_project_views": incrementProjectViews,
		},
	}

	if err := db.AutoMigrate(
		&domain.Profile{},
		&domain.Skill{},
		&domain.Experience{},
		&domain.Project{},
		&domain.SocialLink{},
		&domain.ContactMessage{},
		&domain.AdminUser{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	t, err := modelType(table)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalid, err)
	}

	dest := reflect.New(reflect.SliceOf(t))
	if err := applyQuery(s.db.WithContext(ctx), q).Find(dest.Interface()).Error; err != nil {
		return nil, translate(err)
	}
	return toRows(dest.Elem())
}

func (s *Store) Singleton(ctx context.Context, table string) (store.Row, error) {
	rows, err := s.Select(ctx, table, store.Query{Limit: 2})
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%s: %w", table, apperrors.ErrNotFound)
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", table, apperrors.ErrMultipleRows)
	}
}

func (s *Store) Insert(ctx context.Context, table string, payload store.Row) (store.Row, error) {
	t, err := modelType(table)
	if err != nil {
		return nil, err
	}

	model := reflect.New(t)
	if err := store.Decode(payload, model.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalid, err)
	}
	if id := model.Elem().FieldByName("ID"); id.String() == "" {
		id.SetString(uuid.NewString())
	}

	if err := s.db.WithContext(ctx).Create(model.Interface()).Error; err != nil {
		return nil, translate(err)
	}

	row, err := store.Encode(model.Interface())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, store.Event{Table: table, Type: store.EventInsert, Record: row})
	return row, nil
}

// Update loads the matched row, overlays payload onto it and saves the
// result, so the stored row is always superseded as a whole.
func (s *Store) Update(ctx context.Context, table string, payload store.Row, match store.Match) (store.Row, error) {
	t, err := modelType(table)
	if err != nil {
		return nil, err
	}
	if !store.ValidIdentifier(match.Column) {
		return nil, fmt.Errorf("%w: invalid match column %q", apperrors.ErrInvalid, match.Column)
	}

	patch := make(store.Row, len(payload))
	for k, v := range payload {
		patch[k] = v
	}
	delete(patch, "id")
	delete(patch, "created_at")

	var oldRow, newRow store.Row
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := reflect.New(t)
		if err := tx.Where(match.Column+" = ?", match.Value).First(model.Interface()).Error; err != nil {
			return err
		}
		if oldRow, err = store.Encode(model.Interface()); err != nil {
			return err
		}
		if err := store.Decode(patch, model.Interface()); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInvalid, err)
		}
		if err := tx.Save(model.Interface()).Error; err != nil {
			return err
		}
		newRow, err = store.Encode(model.Interface())
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	s.publish(ctx, store.Event{Table: table, Type: store.EventUpdate, Record: newRow, OldRecord: oldRow})
	return newRow, nil
}

func (s *Store) Delete(ctx context.Context, table string, match store.Match) error {
	t, err := modelType(table)
	if err != nil {
		return err
	}
	if !store.ValidIdentifier(match.Column) {
		return fmt.Errorf("%w: invalid match column %q", apperrors.ErrInvalid, match.Column)
	}

	var oldRow store.Row
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := reflect.New(t)
		if err := tx.Where(match.Column+" = ?", match.Value).First(model.Interface()).Error; err != nil {
			return err
		}
		if oldRow, err = store.Encode(model.Interface()); err != nil {
			return err
		}
		return tx.Where(match.Column+" = ?", match.Value).Delete(reflect.New(t).Interface()).Error
	})
	if err != nil {
		return translate(err)
	}

	s.publish(ctx, store.Event{Table: table, Type: store.EventDelete, OldRecord: oldRow})
	return nil
}

func (s *Store) Call(ctx context.Context, procedure string, args store.Row) error {
	proc, ok := s.procedures[procedure]
	if !ok {
		return fmt.Errorf("procedure %s: %w", procedure, apperrors.ErrNotFound)
	}

	var events []store.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		events, err = proc(tx, args)
		return err
	})
	if err != nil {
		return translate(err)
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, table string) (store.Subscription, error) {
	if _, err := modelType(table); err != nil {
		return nil, err
	}
	if s.feed == nil {
		return nil, fmt.Errorf("change feed: %w", apperrors.ErrNotConfigured)
	}
	return s.feed.Subscribe(ctx, table)
}

// publish announces a committed write. The write already happened, so a
// cancelled request must not suppress the event, and a feed failure is only
// logged.
func (s *Store) publish(ctx context.Context, ev store.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("failed to publish change event",
			zap.String("table", ev.Table),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}

func modelType(table string) (reflect.Type, error) {
	m, ok := models[table]
	if !ok {
		return nil, fmt.Errorf("table %q: %w", table, apperrors.ErrNotFound)
	}
	return reflect.TypeOf(m), nil
}

func applyQuery(tx *gorm.DB, q store.Query) *gorm.DB {
	for _, f := range q.Filters {
		switch f.Op {
		case store.OpEq:
			tx = tx.Where(f.Column+" = ?", f.Value)
		case store.OpNeq:
			tx = tx.Where(f.Column+" <> ?", f.Value)
		case store.OpIsNull:
			tx = tx.Where(f.Column + " IS NULL")
		case store.OpSearch:
			term, _ := f.Value.(string)
			pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
			clauses := make([]string, len(f.Columns))
			args := make([]any, len(f.Columns))
			for i, c := range f.Columns {
				clauses[i] = "LOWER(" + c + ") LIKE ? ESCAPE '\\'"
				args[i] = pattern
			}
			tx = tx.Where("("+strings.Join(clauses, " OR ")+")", args...)
		}
	}
	for _, o := range q.Order {
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		tx = tx.Order(o.Column + dir)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func toRows(slice reflect.Value) ([]store.Row, error) {
	rows := make([]store.Row, 0, slice.Len())
	for i := 0; i < slice.Len(); i++ {
		row, err := store.Encode(slice.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrInvalid), errors.Is(err, apperrors.ErrNotFound):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", apperrors.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", apperrors.ErrConflict, err)
	case strings.Contains(err.Error(), "CHECK constraint failed"):
		return fmt.Errorf("%w: %v", apperrors.ErrInvalid, err)
	default:
		return err
	}
}
