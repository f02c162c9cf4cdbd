package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/auth"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/feed"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

func setupStore(t *testing.T) (*Store, *feed.Broker) {
	t.Helper()
	broker := feed.NewBroker(zap.NewNop())
	s, err := Open(":memory:", broker, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = broker.Close()
		_ = s.Close()
	})
	return s, broker
}

func projectRow(title, slug string, category domain.ProjectCategory, order int) store.Row {
	return store.Row{
		"title":             title,
		"slug":              slug,
		"short_description": title + " description",
		"category":          string(category),
		"project_type":      string(domain.TypePersonal),
		"status":            string(domain.StatusCompleted),
		"technologies":      []string{"go"},
		"order_index":       order,
	}
}

func TestStore_InsertAndSelect(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	row, err := s.Insert(ctx, domain.TableProjects, projectRow("Demo", "demo", domain.CategoryWeb, 1))
	require.NoError(t, err)
	assert.NotEmpty(t, row.ID())
	assert.Equal(t, "demo", row["slug"])
	assert.EqualValues(t, 0, row["view_count"])

	_, err = s.Insert(ctx, domain.TableProjects, projectRow("Api Thing", "api-thing", domain.CategoryAPI, 0))
	require.NoError(t, err)

	rows, err := s.Select(ctx, domain.TableProjects, store.Query{Order: []store.Order{store.Asc("order_index")}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "api-thing", rows[0]["slug"])

	var p domain.Project
	require.NoError(t, store.Decode(rows[1], &p))
	assert.Equal(t, []string{"go"}, p.Technologies)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestStore_SelectFilters(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	web := projectRow("Portfolio Site", "portfolio-site", domain.CategoryWeb, 0)
	web["featured"] = true
	_, err := s.Insert(ctx, domain.TableProjects, web)
	require.NoError(t, err)
	_, err = s.Insert(ctx, domain.TableProjects, projectRow("Mobile App", "mobile-app", domain.CategoryMobile, 1))
	require.NoError(t, err)
	_, err = s.Insert(ctx, domain.TableProjects, projectRow("100% Coverage", "coverage", domain.CategoryOther, 2))
	require.NoError(t, err)

	tests := []struct {
		name  string
		query store.Query
		want  []string
	}{
		{"eq", store.Query{Filters: []store.Filter{store.Eq("category", "web")}}, []string{"portfolio-site"}},
		{"bool", store.Query{Filters: []store.Filter{store.Eq("featured", true)}}, []string{"portfolio-site"}},
		{"neq", store.Query{Filters: []store.Filter{store.Neq("slug", "mobile-app")}, Order: []store.Order{store.Asc("order_index")}}, []string{"portfolio-site", "coverage"}},
		{"search", store.Query{Filters: []store.Filter{store.Search("APP", "title", "short_description")}}, []string{"mobile-app"}},
		{"search escapes wildcards", store.Query{Filters: []store.Filter{store.Search("100%", "title")}}, []string{"coverage"}},
		{"limit", store.Query{Order: []store.Order{store.Desc("order_index")}, Limit: 1}, []string{"coverage"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Select(ctx, domain.TableProjects, tt.query)
			require.NoError(t, err)
			got := make([]string, len(rows))
			for i, r := range rows {
				got[i] = r["slug"].(string)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_SelectIsNull(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	base := store.Row{
		"company":         "Acme",
		"position":        "Engineer",
		"start_date":      "2020-01-01",
		"employment_type": "full-time",
	}
	_, err := s.Insert(ctx, domain.TableExperience, base)
	require.NoError(t, err)

	ended := store.Row{}
	for k, v := range base {
		ended[k] = v
	}
	ended["company"] = "Initech"
	ended["end_date"] = "2021-06-30"
	_, err = s.Insert(ctx, domain.TableExperience, ended)
	require.NoError(t, err)

	rows, err := s.Select(ctx, domain.TableExperience, store.Query{Filters: []store.Filter{store.IsNull("end_date")}})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var e domain.Experience
	require.NoError(t, store.Decode(rows[0], &e))
	assert.Equal(t, "Acme", e.Company)
	assert.Equal(t, "2020-01-01", e.StartDate.String())
	assert.True(t, e.IsCurrent())
}

func TestStore_UniqueSlug(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	_, err := s.Insert(ctx, domain.TableProjects, projectRow("Demo", "demo", domain.CategoryWeb, 0))
	require.NoError(t, err)

	_, err = s.Insert(ctx, domain.TableProjects, projectRow("Demo Again", "demo", domain.CategoryWeb, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	rows, err := s.Select(ctx, domain.TableProjects, store.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_UpdateOverlaysPayload(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	sub, err := s.Subscribe(ctx, domain.TableProjects)
	require.NoError(t, err)
	defer sub.Close()

	row, err := s.Insert(ctx, domain.TableProjects, projectRow("Demo", "demo", domain.CategoryWeb, 0))
	require.NoError(t, err)
	<-sub.Events()

	updated, err := s.Update(ctx, domain.TableProjects, store.Row{"title": "Demo 2", "id": "hijack"}, store.ByID(row.ID()))
	require.NoError(t, err)
	assert.Equal(t, row.ID(), updated.ID())
	assert.Equal(t, "Demo 2", updated["title"])
	assert.Equal(t, "demo", updated["slug"])

	ev := <-sub.Events()
	assert.Equal(t, store.EventUpdate, ev.Type)
	assert.Equal(t, "Demo", ev.OldRecord["title"])
	assert.Equal(t, "Demo 2", ev.Record["title"])

	_, err = s.Update(ctx, domain.TableProjects, store.Row{"title": "x"}, store.ByID("missing"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	sub, err := s.Subscribe(ctx, domain.TableSkills)
	require.NoError(t, err)
	defer sub.Close()

	row, err := s.Insert(ctx, domain.TableSkills, store.Row{"name": "Go", "category": "primary", "proficiency": 5})
	require.NoError(t, err)
	<-sub.Events()

	require.NoError(t, s.Delete(ctx, domain.TableSkills, store.ByID(row.ID())))
	ev := <-sub.Events()
	assert.Equal(t, store.EventDelete, ev.Type)
	assert.Equal(t, row.ID(), ev.OldRecord.ID())

	assert.ErrorIs(t, s.Delete(ctx, domain.TableSkills, store.ByID(row.ID())), apperrors.ErrNotFound)
}

func TestStore_CheckConstraint(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	_, err := s.Insert(ctx, domain.TableSkills, store.Row{"name": "Go", "category": "primary", "proficiency": 9})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestStore_Singleton(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	_, err := s.Singleton(ctx, domain.TableProfile)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, s.EnsureProfile(ctx, domain.Profile{Name: "Andrew", Title: "Engineer"}))
	require.NoError(t, s.EnsureProfile(ctx, domain.Profile{Name: "Someone Else", Title: "x"}))

	row, err := s.Singleton(ctx, domain.TableProfile)
	require.NoError(t, err)
	assert.Equal(t, "Andrew", row["name"])
	assert.Equal(t, "available", row["availability_status"])

	_, err = s.Insert(ctx, domain.TableProfile, store.Row{"name": "Dup", "title": "Dup"})
	require.NoError(t, err)
	_, err = s.Singleton(ctx, domain.TableProfile)
	assert.ErrorIs(t, err, apperrors.ErrMultipleRows)
}

func TestStore_IncrementProjectViews(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	row, err := s.Insert(ctx, domain.TableProjects, projectRow("Demo", "demo", domain.CategoryWeb, 0))
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, domain.TableProjects)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Call(ctx, "increment_project_views", store.Row{"project_id": row.ID()}))
	}

	rows, err := s.Select(ctx, domain.TableProjects, store.Query{Filters: []store.Filter{store.Eq("id", row.ID())}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows[0]["view_count"])

	select {
	case ev := <-sub.Events():
		assert.Equal(t, store.EventUpdate, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event for view increment")
	}

	assert.ErrorIs(t, s.Call(ctx, "increment_project_views", store.Row{"project_id": "nope"}), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Call(ctx, "drop_everything", nil), apperrors.ErrNotFound)
}

func TestStore_UnknownTable(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	_, err := s.Select(ctx, "admin_users", store.Query{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.Subscribe(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_SubscribeWithoutFeed(t *testing.T) {
	s, err := Open(":memory:", nil, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Subscribe(context.Background(), domain.TableProjects)
	assert.ErrorIs(t, err, apperrors.ErrNotConfigured)
}

func TestStore_SignIn(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	require.NoError(t, s.EnsureAdmin(ctx, "Admin@Example.com", "hunter2"))

	id, err := s.SignIn(ctx, "admin@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", id.Email)

	_, err = s.SignIn(ctx, "admin@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = s.SignIn(ctx, "nobody@example.com", "hunter2")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// re-provisioning rotates the password
	require.NoError(t, s.EnsureAdmin(ctx, "admin@example.com", "correct horse"))
	_, err = s.SignIn(ctx, "admin@example.com", "hunter2")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = s.SignIn(ctx, "admin@example.com", "correct horse")
	require.NoError(t, err)
}
