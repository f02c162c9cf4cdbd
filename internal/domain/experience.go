package domain

import (
	"strings"
	"time"
)

type EmploymentType string

const (
	FullTime   EmploymentType = "full-time"
	PartTime   EmploymentType = "part-time"
	Contract   EmploymentType = "contract"
	Internship EmploymentType = "internship"
)

func (t EmploymentType) Valid() bool {
	switch t {
	case FullTime, PartTime, Contract, Internship:
		return true
	}
	return false
}

type Experience struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	Company        string         `json:"company" gorm:"not null"`
	Position       string         `json:"position" gorm:"not null"`
	StartDate      Date           `json:"start_date" gorm:"type:date;not null"`
	EndDate        *Date          `json:"end_date" gorm:"type:date"`
	Description    *string        `json:"description"`
	Achievements   []string       `json:"achievements" gorm:"serializer:json"`
	Technologies   []string       `json:"technologies" gorm:"serializer:json"`
	Location       *string        `json:"location"`
	CompanyLogoURL *string        `json:"company_logo_url"`
	CompanyWebsite *string        `json:"company_website"`
	EmploymentType EmploymentType `json:"employment_type" gorm:"not null;default:full-time"`
	OrderIndex     int            `json:"order_index" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Experience) TableName() string { return TableExperience }

func (e Experience) Validate() error {
	if strings.TrimSpace(e.Company) == "" {
		return invalid("company is required")
	}
	if strings.TrimSpace(e.Position) == "" {
		return invalid("position is required")
	}
	if e.StartDate.IsZero() {
		return invalid("start_date is required")
	}
	if e.EndDate != nil && !e.EndDate.IsZero() && e.EndDate.Before(e.StartDate.Time) {
		return invalid("end_date %s is before start_date %s", e.EndDate, e.StartDate)
	}
	if !e.EmploymentType.Valid() {
		return invalid("employment_type %q is not an employment type", e.EmploymentType)
	}
	return nil
}

// IsCurrent reports whether the position is still held.
func (e Experience) IsCurrent() bool {
	return e.EndDate == nil || e.EndDate.IsZero()
}

// DurationMonths counts months from the start date to the end date, or to
// now for a current position.
func (e Experience) DurationMonths(now time.Time) int {
	end := now
	if !e.IsCurrent() {
		end = e.EndDate.Time
	}
	return MonthsBetween(e.StartDate.Time, end)
}

// ExperienceView is an Experience with the fields derived at read time.
// It is never persisted.
type ExperienceView struct {
	Experience
	IsCurrent      bool   `json:"is_current"`
	DurationMonths int    `json:"duration_months"`
	Duration       string `json:"duration"`
}

func NewExperienceView(e Experience, now time.Time) ExperienceView {
	months := e.DurationMonths(now)
	return ExperienceView{
		Experience:     e,
		IsCurrent:      e.IsCurrent(),
		DurationMonths: months,
		Duration:       FormatDuration(months),
	}
}
