package mutation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
	"github.com/aTrapDeer/portfolio-backend/internal/store/gormstore"
	"github.com/aTrapDeer/portfolio-backend/internal/store/storetest"
)

type fixture struct {
	db    *gormstore.Store
	rec   *storetest.Recorder
	query *query.Client
	svc   *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gormstore.Open(":memory:", nil, zap.NewNop())
	require.NoError(t, err)
	rec := storetest.NewRecorder(db)
	q := query.New(rec, zap.NewNop(), query.Options{})
	t.Cleanup(func() {
		_ = q.Close()
		_ = db.Close()
	})
	return &fixture{db: db, rec: rec, query: q, svc: New(rec, q, zap.NewNop())}
}

func waitFresh(t *testing.T, q *query.Client, k query.Key) {
	t.Helper()
	require.Eventually(t, func() bool { return !q.Status(k).Fetching }, timeout, tick)
}

func TestProject_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.svc.CreateProject(ctx, domain.Project{Title: "Demo", Slug: "demo", Category: domain.CategoryWeb})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	list, err := f.query.Projects(ctx, query.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "demo", list.Data[0].Slug)
	assert.Equal(t, 0, list.Data[0].ViewCount)

	created.Title = "Demo Reloaded"
	_, err = f.svc.UpdateProject(ctx, created.ID, created)
	require.NoError(t, err)

	// the stale list is served while the refetch runs
	_, err = f.query.Projects(ctx, query.ProjectFilter{})
	require.NoError(t, err)
	waitFresh(t, f.query, query.ProjectFilter{}.Key())
	p, err := f.query.ProjectBySlug(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo Reloaded", p.Data.Title)

	require.NoError(t, f.svc.DeleteProject(ctx, created.ID))
	_, err = f.query.Projects(ctx, query.ProjectFilter{})
	require.NoError(t, err)
	waitFresh(t, f.query, query.ProjectFilter{}.Key())
	list, err = f.query.Projects(ctx, query.ProjectFilter{})
	require.NoError(t, err)
	assert.Empty(t, list.Data)
}

func TestCreateProject_DefaultsSlugFromTitle(t *testing.T) {
	f := setup(t)
	p, err := f.svc.CreateProject(context.Background(), domain.Project{Title: "My Cool Project!", Category: domain.CategoryAPI})
	require.NoError(t, err)
	assert.Equal(t, "my-cool-project", p.Slug)
	assert.Equal(t, domain.StatusPlanning, p.Status)
}

func TestCreateProject_SlugTaken(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	first, err := f.svc.CreateProject(ctx, domain.Project{Title: "Demo", Slug: "demo", Category: domain.CategoryWeb})
	require.NoError(t, err)

	_, err = f.svc.CreateProject(ctx, domain.Project{Title: "Other Demo", Slug: "demo", Category: domain.CategoryWeb})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlugTaken)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 1, f.rec.Calls(storetest.OpInsert, domain.TableProjects))

	// a project may keep its own slug
	first.Title = "Demo 2"
	_, err = f.svc.UpdateProject(ctx, first.ID, first)
	require.NoError(t, err)

	second, err := f.svc.CreateProject(ctx, domain.Project{Title: "Second", Category: domain.CategoryWeb})
	require.NoError(t, err)
	second.Slug = "demo"
	_, err = f.svc.UpdateProject(ctx, second.ID, second)
	assert.ErrorIs(t, err, ErrSlugTaken)

	rows, err := f.db.Select(ctx, domain.TableProjects, store.Query{Filters: []store.Filter{store.Eq("slug", "demo")}})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// blindSelect hides existing projects from the slug pre-check, as if a
// concurrent writer won the race.
type blindSelect struct {
	store.Store
}

func (b blindSelect) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if table == domain.TableProjects {
		return nil, nil
	}
	return b.Store.Select(ctx, table, q)
}

func TestCreateProject_StoreConstraintIsTheBackstop(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := New(blindSelect{f.db}, f.query, zap.NewNop())

	_, err := svc.CreateProject(ctx, domain.Project{Title: "Demo", Slug: "demo", Category: domain.CategoryWeb})
	require.NoError(t, err)
	_, err = svc.CreateProject(ctx, domain.Project{Title: "Demo", Slug: "demo", Category: domain.CategoryWeb})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestProject_CountersSurviveAdminUpdates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	p, err := f.svc.CreateProject(ctx, domain.Project{Title: "Demo", Category: domain.CategoryWeb, ViewCount: 99})
	require.NoError(t, err)
	assert.Equal(t, 0, p.ViewCount)

	require.NoError(t, f.svc.RecordProjectView(ctx, p.ID))
	require.NoError(t, f.svc.RecordProjectView(ctx, p.ID))

	p.ViewCount = 0
	p.Featured = true
	updated, err := f.svc.UpdateProject(ctx, p.ID, p)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ViewCount)
	assert.True(t, updated.Featured)

	assert.ErrorIs(t, f.svc.RecordProjectView(ctx, "missing"), apperrors.ErrNotFound)
}

func TestWrites_FailedWriteLeavesCacheAlone(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.query.Skills(ctx, query.SkillFilter{})
	require.NoError(t, err)

	_, err = f.svc.CreateSkill(ctx, domain.Skill{Name: "Go", Category: domain.SkillPrimary, Proficiency: 6})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
	assert.Equal(t, 0, f.rec.Calls(storetest.OpInsert, domain.TableSkills))

	boom := errors.New("connection reset")
	f.rec.On(storetest.OpInsert, func(context.Context, string, store.Row) error { return boom })
	_, err = f.svc.CreateSkill(ctx, domain.Skill{Name: "Go", Category: domain.SkillPrimary, Proficiency: 5})
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.query.Status(query.SkillFilter{}.Key()).Stale)
}

func seedSkills(t *testing.T, f *fixture, names ...string) []domain.Skill {
	t.Helper()
	var out []domain.Skill
	for i, n := range names {
		sk, err := f.svc.CreateSkill(context.Background(), domain.Skill{
			Name: n, Category: domain.SkillPrimary, Proficiency: 3, OrderIndex: i,
		})
		require.NoError(t, err)
		out = append(out, sk)
	}
	return out
}

func names(skills []domain.Skill) []string {
	out := make([]string, len(skills))
	for i, s := range skills {
		out[i] = s.Name
	}
	return out
}

func TestReorderSkills(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	skills := seedSkills(t, f, "a", "b", "c")

	_, err := f.query.Skills(ctx, query.SkillFilter{})
	require.NoError(t, err)

	require.NoError(t, f.svc.ReorderSkills(ctx, []string{skills[2].ID, skills[0].ID, skills[1].ID}))

	assert.True(t, f.query.Status(query.SkillFilter{}.Key()).Stale)
	_, err = f.query.Skills(ctx, query.SkillFilter{})
	require.NoError(t, err)
	waitFresh(t, f.query, query.SkillFilter{}.Key())
	got, err := f.query.Skills(ctx, query.SkillFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, names(got.Data))

	err = f.svc.ReorderSkills(ctx, []string{skills[0].ID, skills[0].ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
	err = f.svc.ReorderSkills(ctx, []string{"nope"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReorderSkills_FailureRevertsCacheAndRows(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	skills := seedSkills(t, f, "a", "b", "c", "d", "e")
	key := query.SkillFilter{}.Key()
	category := query.SkillFilter{Category: domain.SkillPrimary}.Key()

	_, err := f.query.Skills(ctx, query.SkillFilter{})
	require.NoError(t, err)
	_, err = f.query.Skills(ctx, query.SkillFilter{Category: domain.SkillPrimary})
	require.NoError(t, err)

	reversed := []string{skills[4].ID, skills[3].ID, skills[2].ID, skills[1].ID, skills[0].ID}

	var duringReorder []string
	writes := 0
	f.rec.On(storetest.OpUpdate, func(_ context.Context, _ string, _ store.Row) error {
		writes++
		switch writes {
		case 2:
			duringReorder = names(f.query.Status(key).Data.([]domain.Skill))
		case 3:
			return fmt.Errorf("write %d: connection reset", writes)
		}
		return nil
	})

	err = f.svc.ReorderSkills(ctx, reversed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, duringReorder)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names(f.query.Status(key).Data.([]domain.Skill)))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names(f.query.Status(category).Data.([]domain.Skill)))

	rows, err := f.db.Select(ctx, domain.TableSkills, store.Query{Order: []store.Order{store.Asc("order_index")}})
	require.NoError(t, err)
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r["name"].(string)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestMoveSkill(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	skills := seedSkills(t, f, "a", "b", "c")
	other, err := f.svc.CreateSkill(ctx, domain.Skill{Name: "docker", Category: domain.SkillTools, Proficiency: 4})
	require.NoError(t, err)

	require.NoError(t, f.svc.MoveSkill(ctx, skills[2].ID, Up))
	require.NoError(t, f.svc.MoveSkill(ctx, skills[0].ID, Up))
	require.NoError(t, f.svc.MoveSkill(ctx, other.ID, Down))

	got, err := f.query.Skills(ctx, query.SkillFilter{Category: domain.SkillPrimary})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, names(got.Data))

	assert.ErrorIs(t, f.svc.MoveSkill(ctx, skills[0].ID, "sideways"), apperrors.ErrInvalid)
	assert.ErrorIs(t, f.svc.MoveSkill(ctx, "missing", Down), apperrors.ErrNotFound)
}

func TestUpdateProfile_MergesConfirmedRow(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.db.EnsureProfile(ctx, domain.Profile{Name: "Andrew", Title: "Engineer"}))

	before, err := f.query.Profile(ctx)
	require.NoError(t, err)

	p := before.Data
	p.ID = ""
	p.Title = "Staff Engineer"
	p.AvailabilityStatus = domain.Busy
	saved, err := f.svc.UpdateProfile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, before.Data.ID, saved.ID)

	after, err := f.query.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Staff Engineer", after.Data.Title)
	assert.Equal(t, domain.Busy, after.Data.AvailabilityStatus)
	assert.False(t, after.Stale)
	// one read plus the id lookup, no refetch
	assert.Equal(t, 2, f.rec.Calls(storetest.OpSingleton, domain.TableProfile))

	p.AvailabilityStatus = "asleep"
	_, err = f.svc.UpdateProfile(ctx, p)
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestMessages_MergeIntoCachedLists(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	all := query.MessageFilter{}
	unread := query.MessageFilter{UnreadOnly: true}
	urgent := query.MessageFilter{Priority: domain.PriorityUrgent}
	for _, mf := range []query.MessageFilter{all, unread, urgent} {
		_, err := f.query.Messages(ctx, mf)
		require.NoError(t, err)
	}
	selects := f.rec.Calls(storetest.OpSelect, domain.TableContactMessages)

	m, err := f.svc.SubmitContactMessage(ctx, ContactSubmission{
		Name: "Ada", Email: "ada@example.com", Message: "Hello there", UserAgent: "test-agent", IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)
	assert.False(t, m.IsRead)
	assert.Equal(t, domain.SourceWebsite, m.Source)
	assert.Equal(t, domain.PriorityNormal, m.Priority)
	require.NotNil(t, m.UserAgent)
	assert.Equal(t, "test-agent", *m.UserAgent)

	inbox := func(mf query.MessageFilter) []domain.ContactMessage {
		r, err := f.query.Messages(ctx, mf)
		require.NoError(t, err)
		return r.Data
	}
	assert.Len(t, inbox(all), 1)
	assert.Len(t, inbox(unread), 1)
	assert.Empty(t, inbox(urgent))

	_, err = f.svc.MarkMessageRead(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, inbox(all), 1)
	assert.True(t, inbox(all)[0].IsRead)
	assert.Empty(t, inbox(unread))

	require.NoError(t, f.svc.DeleteMessage(ctx, m.ID))
	assert.Empty(t, inbox(all))
	assert.Equal(t, selects, f.rec.Calls(storetest.OpSelect, domain.TableContactMessages))

	_, err = f.svc.SubmitContactMessage(ctx, ContactSubmission{Name: "Bob", Email: "not-an-email", Message: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestMessages_LimitedListIsRefetchedAfterRemoval(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	m, err := f.svc.SubmitContactMessage(ctx, ContactSubmission{Name: "Ada", Email: "ada@example.com", Message: "one"})
	require.NoError(t, err)

	latest := query.MessageFilter{Limit: 1}
	_, err = f.query.Messages(ctx, latest)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteMessage(ctx, m.ID))
	assert.True(t, f.query.Status(latest.Key()).Stale)
}

func TestExperience_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	current := query.ExperienceFilter{CurrentOnly: true}

	_, err := f.query.Experience(ctx, current)
	require.NoError(t, err)

	end := domain.NewDate(2020, time.June, 1)
	_, err = f.svc.CreateExperience(ctx, domain.Experience{
		Company: "Acme", Position: "Engineer",
		StartDate: domain.NewDate(2021, time.January, 1), EndDate: &end,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
	assert.False(t, f.query.Status(current.Key()).Stale)

	e, err := f.svc.CreateExperience(ctx, domain.Experience{
		Company: "Acme", Position: "Engineer", StartDate: domain.NewDate(2021, time.January, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FullTime, e.EmploymentType)
	assert.True(t, f.query.Status(current.Key()).Stale)

	_, err = f.query.Experience(ctx, current)
	require.NoError(t, err)
	waitFresh(t, f.query, current.Key())
	got, err := f.query.Experience(ctx, current)
	require.NoError(t, err)
	require.Len(t, got.Data, 1)
	assert.True(t, got.Data[0].IsCurrent)

	end = domain.NewDate(2023, time.April, 1)
	e.EndDate = &end
	_, err = f.svc.UpdateExperience(ctx, e.ID, e)
	require.NoError(t, err)

	_, err = f.query.Experience(ctx, current)
	require.NoError(t, err)
	waitFresh(t, f.query, current.Key())
	got, err = f.query.Experience(ctx, current)
	require.NoError(t, err)
	assert.Empty(t, got.Data)

	require.NoError(t, f.svc.DeleteExperience(ctx, e.ID))
	assert.ErrorIs(t, f.svc.DeleteExperience(ctx, e.ID), apperrors.ErrNotFound)
}

// parkedSelect runs the real select on table, then holds the result until
// release is closed.
type parkedSelect struct {
	store.Store
	table   string
	read    chan struct{}
	release chan struct{}
}

func (p *parkedSelect) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	rows, err := p.Store.Select(ctx, table, q)
	if table == p.table {
		p.read <- struct{}{}
		<-p.release
	}
	return rows, err
}

func TestMessages_SubmitDuringColdReadIsNotLost(t *testing.T) {
	ctx := context.Background()
	db, err := gormstore.Open(":memory:", nil, zap.NewNop())
	require.NoError(t, err)
	parked := &parkedSelect{
		Store:   db,
		table:   domain.TableContactMessages,
		read:    make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	q := query.New(parked, zap.NewNop(), query.Options{})
	t.Cleanup(func() {
		_ = q.Close()
		_ = db.Close()
	})
	svc := New(db, q, zap.NewNop())
	inbox := query.MessageFilter{}

	first := make(chan int, 1)
	go func() {
		r, err := q.Messages(ctx, inbox)
		assert.NoError(t, err)
		first <- len(r.Data)
	}()
	<-parked.read

	m, err := svc.SubmitContactMessage(ctx, ContactSubmission{Name: "Ada", Email: "ada@example.com", Message: "Hello"})
	require.NoError(t, err)

	parked.table = ""
	close(parked.release)
	assert.Equal(t, 0, <-first)

	r, err := q.Messages(ctx, inbox)
	require.NoError(t, err)
	assert.True(t, r.Stale)
	waitFresh(t, q, inbox.Key())
	r, err = q.Messages(ctx, inbox)
	require.NoError(t, err)
	require.Len(t, r.Data, 1)
	assert.Equal(t, m.ID, r.Data[0].ID)
	assert.False(t, r.Stale)
}
