// Package domain holds the portfolio's entity schemas. Each type doubles as
// the gorm model for its table and as the JSON shape served by the API.
package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
)

type AvailabilityStatus string

const (
	Available   AvailabilityStatus = "available"
	Busy        AvailabilityStatus = "busy"
	Unavailable AvailabilityStatus = "unavailable"
)

func (s AvailabilityStatus) Valid() bool {
	switch s {
	case Available, Busy, Unavailable:
		return true
	}
	return false
}

// Profile is the singleton row describing the site owner.
type Profile struct {
	ID                 string             `json:"id" gorm:"primaryKey;type:text"`
	Name               string             `json:"name" gorm:"not null"`
	Title              string             `json:"title" gorm:"not null"`
	Bio                *string            `json:"bio"`
	Email              *string            `json:"email"`
	Phone              *string            `json:"phone"`
	Location           *string            `json:"location"`
	AvatarURL          *string            `json:"avatar_url"`
	ResumeURL          *string            `json:"resume_url"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status" gorm:"not null;default:available"`
	YearsExperience    *int               `json:"years_experience"`
	GithubUsername     *string            `json:"github_username"`
	LinkedinUsername   *string            `json:"linkedin_username"`
	WebsiteURL         *string            `json:"website_url"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (Profile) TableName() string { return TableProfile }

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return invalid("title is required")
	}
	if !p.AvailabilityStatus.Valid() {
		return invalid("availability_status %q is not one of available, busy, unavailable", p.AvailabilityStatus)
	}
	if p.YearsExperience != nil && *p.YearsExperience < 0 {
		return invalid("years_experience must not be negative")
	}
	if p.Email != nil && *p.Email != "" {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			return invalid("email %q is not a valid address", *p.Email)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{apperrors.ErrInvalid}, args...)...)
}
