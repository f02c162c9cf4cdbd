package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Demo", "demo"},
		{"  My Cool Project! ", "my-cool-project"},
		{"AI/ML -- Pipeline v2", "ai-ml-pipeline-v2"},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("demo"))
	assert.True(t, ValidSlug("demo-2"))
	assert.False(t, ValidSlug("Demo"))
	assert.False(t, ValidSlug("demo--2"))
	assert.False(t, ValidSlug("-demo"))
	assert.False(t, ValidSlug(""))
}

func TestSkillValidate(t *testing.T) {
	s := Skill{Name: "Go", Category: SkillPrimary, Proficiency: 5}
	require.NoError(t, s.Validate())

	s.Proficiency = 6
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalid))

	s.Proficiency = 0
	require.Error(t, s.Validate())

	s.Proficiency = 3
	s.Category = "frameworks"
	require.Error(t, s.Validate())
}

func TestExperienceDerivedFields(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

	current := Experience{StartDate: NewDate(2022, time.March, 10)}
	assert.True(t, current.IsCurrent())
	assert.Equal(t, 27, current.DurationMonths(now))

	view := NewExperienceView(current, now)
	assert.True(t, view.IsCurrent)
	assert.Equal(t, "2 years, 3 months", view.Duration)

	// a month boundary changes the duration of a current row
	later := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 28, current.DurationMonths(later))

	end := NewDate(2023, time.March, 1)
	past := Experience{StartDate: NewDate(2022, time.March, 10), EndDate: &end}
	assert.False(t, past.IsCurrent())
	assert.Equal(t, 12, past.DurationMonths(now))
	assert.Equal(t, 12, past.DurationMonths(later))
}

func TestExperienceValidate(t *testing.T) {
	end := NewDate(2020, time.January, 1)
	e := Experience{
		Company:        "Acme",
		Position:       "Engineer",
		StartDate:      NewDate(2021, time.January, 1),
		EndDate:        &end,
		EmploymentType: FullTime,
	}
	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before start_date")

	e.EndDate = nil
	require.NoError(t, e.Validate())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0 months", FormatDuration(0))
	assert.Equal(t, "1 month", FormatDuration(1))
	assert.Equal(t, "1 year", FormatDuration(12))
	assert.Equal(t, "2 years, 1 month", FormatDuration(25))
}

func TestDateJSON(t *testing.T) {
	var e struct {
		Start Date  `json:"start"`
		End   *Date `json:"end"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2021-04-05","end":null}`), &e))
	assert.Equal(t, "2021-04-05", e.Start.String())
	assert.Nil(t, e.End)

	require.NoError(t, json.Unmarshal([]byte(`{"start":"2021-04-05T10:00:00Z"}`), &e))
	assert.Equal(t, "2021-04-05", e.Start.String())

	out, err := json.Marshal(e.Start)
	require.NoError(t, err)
	assert.JSONEq(t, `"2021-04-05"`, string(out))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2020-02-29"))
	assert.Equal(t, NewDate(2020, time.February, 29), d)

	require.NoError(t, d.Scan(time.Date(2019, time.May, 3, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2019-05-03", d.String())

	require.Error(t, d.Scan(42))
}

func TestProjectValidate(t *testing.T) {
	p := Project{
		Title:       "Demo",
		Slug:        "demo",
		Category:    CategoryWeb,
		Status:      StatusCompleted,
		ProjectType: TypePersonal,
	}
	require.NoError(t, p.Validate())

	p.Slug = "Not A Slug"
	require.Error(t, p.Validate())
}

func TestContactMessageValidate(t *testing.T) {
	m := ContactMessage{
		Name:     "Ada",
		Email:    "ada@example.com",
		Message:  "Hello",
		Priority: PriorityNormal,
		Source:   SourceWebsite,
	}
	require.NoError(t, m.Validate())

	m.Email = "not-an-email"
	require.Error(t, m.Validate())
}
